package batch

import (
	"context"
	"sync"
	"time"
)

// Operation is a single unit of deferred work.
type Operation interface {
	Execute(ctx context.Context) error
}

// Processor consumes a drained batch. The slice is owned by the callee.
type Processor interface {
	ProcessBatch(ctx context.Context, operations []Operation) error
}

// Batcher accumulates operations and hands them to a Processor either when
// the queue reaches its size limit or when the flush interval elapses,
// whichever comes first. A final drain happens on Stop.
type Batcher struct {
	limit     int
	interval  time.Duration
	processor Processor

	mu    sync.Mutex
	queue []Operation

	kick chan struct{}
	done chan struct{}
	once sync.Once
}

// NewBatcher starts a batcher flushing at the given size or interval.
func NewBatcher(limit int, interval time.Duration, processor Processor) *Batcher {
	b := &Batcher{
		limit:     limit,
		interval:  interval,
		processor: processor,
		queue:     make([]Operation, 0, limit),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go b.loop()
	return b
}

// Add enqueues op. When the queue reaches the size limit the flush is
// signalled asynchronously; Add itself never blocks on the processor.
func (b *Batcher) Add(op Operation) error {
	b.mu.Lock()
	b.queue = append(b.queue, op)
	full := len(b.queue) >= b.limit
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush drains the queue and hands the batch to the processor. A no-op when
// the queue is empty.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return nil
	}
	drained := b.queue
	b.queue = make([]Operation, 0, b.limit)
	b.mu.Unlock()

	return b.processor.ProcessBatch(ctx, drained)
}

// PendingCount reports how many operations await the next flush.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Stop drains any remaining operations and terminates the flush loop.
// Safe to call more than once.
func (b *Batcher) Stop() {
	b.once.Do(func() { close(b.done) })
}

func (b *Batcher) loop() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = b.Flush(context.Background())
		case <-b.kick:
			_ = b.Flush(context.Background())
		case <-b.done:
			_ = b.Flush(context.Background())
			return
		}
	}
}
