// Package queue defines the contract for buffering inbound position frames
// between the stream transport and the single consumer that applies them to
// the entity store. The bound gives the transport backpressure instead of
// unbounded memory growth during a burst.
package queue

import (
	"context"
	"sync"

	"github.com/vigilops/livetrack/internal/domain/model"
	"github.com/vigilops/livetrack/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 10_000
)

// Position is the payload type flowing through the queue.
type Position = model.LivePosition

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a position frame. Returns false when the queue is full
	// or closed; the frame is dropped in that case.
	Enqueue(ctx context.Context, p Position) bool

	// Dequeue returns a channel delivering frames in arrival order. The
	// channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Position

	// Len returns the current number of buffered frames.
	Len(ctx context.Context) int

	// Close shuts the queue down. After closing, Enqueue returns false and
	// the dequeue channel drains then closes.
	Close() error
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue struct {
	frames   chan Position
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of buffered frames.
func WithCapacity(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// NewInMemoryQueue creates a bounded in-memory frame queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.frames = make(chan Position, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a frame without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, p Position) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueDrop("closed")
		return false
	}

	select {
	case q.frames <- p:
		metrics.UpdateQueueSize(len(q.frames))
		return true
	case <-ctx.Done():
		metrics.RecordQueueDrop("context_cancelled")
		return false
	default:
		metrics.RecordQueueDrop("full")
		return false
	}
}

// Dequeue returns the frame channel.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Position {
	out := make(chan Position)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-q.frames:
				if !ok {
					return
				}
				select {
				case out <- p:
					metrics.UpdateQueueSize(len(q.frames))
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the current number of buffered frames.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.frames)
}

// Close shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.frames)
	q.closed = true
	return nil
}
