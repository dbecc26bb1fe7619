package services

import (
	"testing"
	"time"

	"detectmesh/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_AcceptsFirstFrame(t *testing.T) {
	th := NewThrottleService(100 * time.Millisecond)
	defer th.Stop()

	assert.True(t, th.Accept("room1", time.Now()))
}

func TestThrottle_IntervalBoundary(t *testing.T) {
	th := NewThrottleService(100 * time.Millisecond)
	defer th.Stop()

	base := time.Now()
	assert.True(t, th.Accept("room1", base))
	assert.False(t, th.Accept("room1", base.Add(99*time.Millisecond)))
	assert.True(t, th.Accept("room1", base.Add(101*time.Millisecond)))
}

func TestThrottle_ExactIntervalAccepted(t *testing.T) {
	th := NewThrottleService(100 * time.Millisecond)
	defer th.Stop()

	base := time.Now()
	assert.True(t, th.Accept("room1", base))
	assert.True(t, th.Accept("room1", base.Add(100*time.Millisecond)))
}

func TestThrottle_RoomsAreIndependent(t *testing.T) {
	th := NewThrottleService(100 * time.Millisecond)
	defer th.Stop()

	base := time.Now()
	assert.True(t, th.Accept("room1", base))
	assert.True(t, th.Accept("room2", base))
	assert.False(t, th.Accept("room1", base.Add(50*time.Millisecond)))
	assert.False(t, th.Accept("room2", base.Add(50*time.Millisecond)))
}

func TestThrottle_RejectionDoesNotResetWindow(t *testing.T) {
	th := NewThrottleService(100 * time.Millisecond)
	defer th.Stop()

	base := time.Now()
	assert.True(t, th.Accept("room1", base))
	assert.False(t, th.Accept("room1", base.Add(60*time.Millisecond)))
	// Window is measured from the accepted frame, not the rejected one.
	assert.True(t, th.Accept("room1", base.Add(110*time.Millisecond)))
}

func TestThrottle_ForgetClearsRoomState(t *testing.T) {
	th := NewThrottleService(100 * time.Millisecond)
	defer th.Stop()

	base := time.Now()
	assert.True(t, th.Accept("room1", base))
	th.Forget(domain.RoomID("room1"))
	assert.True(t, th.Accept("room1", base.Add(time.Millisecond)))
}

func TestThrottle_ReapKeepsActiveRooms(t *testing.T) {
	th := NewThrottleService(100 * time.Millisecond)
	defer th.Stop()

	base := time.Now()
	assert.True(t, th.Accept("room1", base))
	th.Reap()
	assert.False(t, th.Accept("room1", base.Add(50*time.Millisecond)))
}
