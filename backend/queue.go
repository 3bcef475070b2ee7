package backend

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultWriteQueueSize is the number of writes a WriteQueue buffers before
// Enqueue blocks.
const DefaultWriteQueueSize = 1024

// WriteQueue runs the writes of one connection on a single goroutine, in the
// order they were enqueued.
type WriteQueue struct {
	mu      sync.RWMutex
	ops     chan func()
	done    chan struct{}
	pending atomic.Int64
	closed  bool
}

// NewWriteQueue starts a queue buffering up to size writes.
func NewWriteQueue(size int) *WriteQueue {
	if size <= 0 {
		size = DefaultWriteQueueSize
	}
	q := &WriteQueue{
		ops:  make(chan func(), size),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *WriteQueue) run() {
	defer close(q.done)
	for op := range q.ops {
		op()
		q.pending.Add(-1)
	}
}

// Enqueue schedules op after every write enqueued before it. It blocks while
// the buffer is full and fails with ErrClosed once Close was called.
func (q *WriteQueue) Enqueue(op func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	q.pending.Add(1)
	q.ops <- op
	return nil
}

// Do enqueues fn and waits for its result, keeping it ordered with the
// fire-and-forget writes around it.
func (q *WriteQueue) Do(ctx context.Context, fn func(context.Context) error) error {
	errc := make(chan error, 1)
	if err := q.Enqueue(func() { errc <- fn(ctx) }); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the number of writes enqueued and not yet finished.
func (q *WriteQueue) Pending() int { return int(q.pending.Load()) }

// Close stops accepting writes and waits until the queued ones ran or ctx
// is done.
func (q *WriteQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ops)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
