package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_HappyPath(t *testing.T) {
	m := NewStateMachine()
	assert.Equal(t, StateIdle, m.Current())

	for _, next := range []State{
		StateConnecting,
		StateWaitingForPeer,
		StateOffering,
		StateNegotiating,
		StateConnected,
		StateDetecting,
	} {
		require.NoError(t, m.Transition(next), "transition to %s", next)
	}
	assert.Equal(t, StateDetecting, m.Current())
}

func TestStateMachine_RejectsSkippedEdge(t *testing.T) {
	m := NewStateMachine()

	err := m.Transition(StateConnected)
	require.Error(t, err)
	assert.Equal(t, StateIdle, m.Current())
}

func TestStateMachine_PeerLossReturnsToWaiting(t *testing.T) {
	m := NewStateMachine()
	for _, next := range []State{StateConnecting, StateWaitingForPeer, StateOffering, StateNegotiating, StateConnected, StateDetecting} {
		require.NoError(t, m.Transition(next))
	}

	require.NoError(t, m.Transition(StateWaitingForPeer))
	assert.Equal(t, StateWaitingForPeer, m.Current())
}

func TestStateMachine_ClosedReachableFromAnywhere(t *testing.T) {
	m := NewStateMachine()
	require.NoError(t, m.Transition(StateConnecting))

	require.NoError(t, m.Transition(StateClosed))
	assert.Equal(t, StateClosed, m.Current())

	// Closed is terminal for everything but Closed itself.
	assert.Error(t, m.Transition(StateConnecting))
}

func TestStateMachine_DetectionPauseResumes(t *testing.T) {
	m := NewStateMachine()
	for _, next := range []State{StateConnecting, StateWaitingForPeer, StateOffering, StateNegotiating, StateConnected, StateDetecting} {
		require.NoError(t, m.Transition(next))
	}

	require.NoError(t, m.Transition(StateConnected))
	require.NoError(t, m.Transition(StateDetecting))
	assert.Equal(t, StateDetecting, m.Current())
}
