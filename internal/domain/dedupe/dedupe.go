// Package dedupe suppresses re-delivered position frames. After a reconnect
// or resubscribe the feed replays a snapshot of current positions, so the
// same (entity, timestamp) frame can arrive more than once; recording frame
// keys here keeps replays from re-animating markers or double-counting.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper records seen frame keys for at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records it
	// if not. Returns true if key was already seen.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord removes a key, allowing the frame to be processed again.
	Unrecord(ctx context.Context, key string)

	// Reset forgets every key. Called when the store is cleared: a snapshot
	// replayed after a clear must repopulate the store, not be suppressed.
	Reset(ctx context.Context)

	Size() int64
}

// defaultWindow holds a few snapshots' worth of frames.
const defaultWindow = 10_000

// frameDeduper implements Deduper with a bounded FIFO window: once the
// window fills, the oldest recorded key is forgotten. Forgetting old keys is
// safe here because replays arrive immediately after a resubscribe, never
// hours later.
type frameDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // keys in insertion order, oldest first; may hold unrecorded keys
	maxSize int
	size    atomic.Int64
}

// Option applies a configuration option to the frame deduper.
type Option func(*frameDeduper)

// WithWindow sets how many recent frame keys are remembered.
func WithWindow(n int) Option {
	return func(d *frameDeduper) {
		if n > 0 {
			d.maxSize = n
		}
	}
}

// New creates a bounded frame deduper.
func New(opts ...Option) Deduper {
	d := &frameDeduper{maxSize: defaultWindow}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{}, d.maxSize)
	d.order = make([]string, 0, d.maxSize)
	return d
}

func (d *frameDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}

	// evict oldest keys to make room, skipping keys already unrecorded
	for len(d.seen) >= d.maxSize && len(d.order) > 0 {
		oldest := d.order[0]
		d.order = d.order[1:]
		if _, ok := d.seen[oldest]; ok {
			delete(d.seen, oldest)
			d.size.Add(-1)
		}
	}
	d.order = append(d.order, key)
	d.seen[key] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *frameDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

func (d *frameDeduper) Reset(_ context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{}, d.maxSize)
	d.order = d.order[:0]
	d.size.Store(0)
}

func (d *frameDeduper) Size() int64 {
	return d.size.Load()
}
