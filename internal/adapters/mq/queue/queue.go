// Package queue carries committed change log entries from the engine to
// the feed workers.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Entry is the payload flowing through the queue.
type Entry = model.ChangeLogEntry

// Queue provides non-blocking publish and channel-based consumption.
type Queue interface {
	// Enqueue adds an entry without blocking. It fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, e Entry) error
	// Dequeue returns the channel consumers range over. It is closed by Close
	// once the remaining entries are drained.
	Dequeue() <-chan Entry
	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	entries  chan Entry
	capacity int
	mu       sync.RWMutex
	closed   bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.entries = make(chan Entry, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue adds an entry to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Entry) error { //nolint:gocritic // hugeParam: entries travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("enqueue %s: %w", e.ID, err)
	}

	select {
	case q.entries <- e:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the consumer channel.
func (q *InMemoryQueue) Dequeue() <-chan Entry {
	return q.entries
}

// Len returns the current number of queued entries.
func (q *InMemoryQueue) Len() int {
	q.observe()
	return len(q.entries)
}

func (q *InMemoryQueue) observe() {
	size := len(q.entries)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close stops accepting entries. Buffered entries stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.entries)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
