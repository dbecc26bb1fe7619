package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu      sync.Mutex
	batches [][]Operation
}

func (p *recordingProcessor) ProcessBatch(_ context.Context, ops []Operation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, ops)
	return nil
}

func (p *recordingProcessor) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

type noopOp struct{ id int }

func (noopOp) Execute(context.Context) error { return nil }

func TestBatcher_FlushesWhenFull(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher(3, time.Hour, proc)
	defer b.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Add(noopOp{id: i}))
	}

	assert.Eventually(t, func() bool { return proc.batchCount() == 1 }, time.Second, 5*time.Millisecond)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Len(t, proc.batches[0], 3)
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher(100, 10*time.Millisecond, proc)
	defer b.Stop()

	require.NoError(t, b.Add(noopOp{}))

	assert.Eventually(t, func() bool { return proc.batchCount() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, b.PendingCount())
}

func TestBatcher_StopDrainsRemainder(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher(100, time.Hour, proc)

	require.NoError(t, b.Add(noopOp{id: 1}))
	require.NoError(t, b.Add(noopOp{id: 2}))
	b.Stop()

	assert.Eventually(t, func() bool { return proc.batchCount() == 1 }, time.Second, 5*time.Millisecond)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Len(t, proc.batches[0], 2)
}

func TestBatcher_FlushEmptyIsNoop(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher(10, time.Hour, proc)
	defer b.Stop()

	require.NoError(t, b.Flush(context.Background()))
	assert.Zero(t, proc.batchCount())
}
