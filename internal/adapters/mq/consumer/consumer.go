// Package consumer applies queued position frames to the entity store.
// A single consumer goroutine drains the queue so that frames for any given
// entity are applied in arrival order; the store has exactly one writer.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilops/livetrack/internal/domain/dedupe"
	"github.com/vigilops/livetrack/internal/domain/geo"
	"github.com/vigilops/livetrack/internal/domain/model"
	"github.com/vigilops/livetrack/internal/domain/roster"
	"github.com/vigilops/livetrack/pkg/logger"
	"github.com/vigilops/livetrack/pkg/metrics"
)

// Queue defines how the consumer receives frames.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.LivePosition
}

// Resolver gates and classifies an entity id against the active roster.
// Implemented by the tracking session, which swaps rosters on scope change.
type Resolver interface {
	Resolve(entityID string) roster.Resolution
}

// Tracker is the store surface the consumer writes to.
type Tracker interface {
	Get(entityID string) (model.TrackedEntity, bool)
	Upsert(entityID string, role model.Role, displayName string, pos model.LivePosition) (prev *model.TrailPoint, created bool)
}

// Animator starts marker glides for moved entities.
type Animator interface {
	Animate(entityID string, from, to geo.Point)
}

// Consumer drains the frame queue through match -> dedupe -> upsert.
type Consumer struct {
	queue    Queue
	resolver Resolver
	tracker  Tracker
	animator Animator
	deduper  dedupe.Deduper

	done chan struct{}

	logger logger.Logger
}

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a consumer. All collaborators are required.
func New(q Queue, r Resolver, t Tracker, a Animator, d dedupe.Deduper, opts ...Option) *Consumer {
	c := &Consumer{
		queue:    q,
		resolver: r,
		tracker:  t,
		animator: a,
		deduper:  d,
		done:     make(chan struct{}),
		logger:   logger.Get().Named("consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drains the queue until ctx is canceled or the queue closes.
func (c *Consumer) Run(ctx context.Context) {
	defer close(c.done)

	frames := c.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-frames:
			if !ok {
				return
			}
			c.apply(ctx, p)
		}
	}
}

// Shutdown waits for the consumer loop to finish.
func (c *Consumer) Shutdown(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("consumer shutdown timed out: %w", ctx.Err())
	}
}

// apply feeds one frame through roster gate -> dedupe -> store upsert.
// Every early return is a deliberate drop, never an error: unmatched and
// duplicate frames are normal feed traffic. The roster gate runs first so
// unmatched frames never enter the dedupe window; if the entity is assigned
// later, a replay of the same frame still applies.
func (c *Consumer) apply(ctx context.Context, p model.LivePosition) {
	res := c.resolver.Resolve(p.EntityID)
	if !res.Matched {
		metrics.RecordFrameUnmatched()
		c.logger.Debug(ctx, "dropping frame for unassigned entity",
			logger.String("entityID", p.EntityID),
		)
		return
	}

	if c.deduper.SeenAndRecord(ctx, frameKey(p)) {
		metrics.RecordFrameDuplicate()
		return
	}

	name := res.Record.Person.FullName
	if name == "" {
		name = p.EntityID
	}

	// animate from the currently displayed coordinate so a frame arriving
	// mid-glide continues smoothly instead of jumping back
	var from geo.Point
	existing, known := c.tracker.Get(p.EntityID)
	if known {
		from = geo.Point{Lat: existing.Displayed.Latitude, Lon: existing.Displayed.Longitude}
	}

	prev, created := c.tracker.Upsert(p.EntityID, res.Role, name, p)
	metrics.RecordFrameApplied()

	if created || prev == nil {
		// first position, or an unchanged one: nothing to animate from
		return
	}
	c.animator.Animate(p.EntityID, from, geo.Point{Lat: p.Latitude, Lon: p.Longitude})
}

// frameKey identifies one frame for replay suppression.
func frameKey(p model.LivePosition) string {
	return p.EntityID + "@" + p.Timestamp.UTC().Format(time.RFC3339Nano)
}
