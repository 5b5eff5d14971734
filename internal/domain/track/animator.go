package track

import (
	"context"
	"sync"
	"time"

	"github.com/vigilops/livetrack/internal/domain/geo"
	"github.com/vigilops/livetrack/pkg/metrics"
)

// Default animation timing constants.
const (
	defaultFrameInterval = 50 * time.Millisecond
	defaultAnimDuration  = time.Second
)

// animation is one in-flight marker interpolation.
type animation struct {
	from    geo.Point
	to      geo.Point
	started time.Time
}

// Animator smooths marker movement between successive raw positions. A
// single scheduler tick advances every active interpolation and removes
// completed ones; there is no per-entity timer. A newer position for an
// entity replaces its active animation (last writer cancels the previous),
// and animations for entities that disappeared from the store are dropped
// on the next frame.
type Animator struct {
	store    *Store
	frame    time.Duration
	duration time.Duration

	mu     sync.Mutex
	active map[string]*animation
	now    func() time.Time
}

// AnimatorOption applies a configuration option to the Animator.
type AnimatorOption func(*Animator)

// WithFrameInterval sets the scheduler tick interval.
func WithFrameInterval(d time.Duration) AnimatorOption {
	return func(a *Animator) {
		if d > 0 {
			a.frame = d
		}
	}
}

// WithAnimationDuration sets how long one position-to-position glide takes.
func WithAnimationDuration(d time.Duration) AnimatorOption {
	return func(a *Animator) {
		if d > 0 {
			a.duration = d
		}
	}
}

// withClock overrides the time source for tests.
func withClock(now func() time.Time) AnimatorOption {
	return func(a *Animator) { a.now = now }
}

// NewAnimator creates an animator writing smoothed coordinates into store.
func NewAnimator(store *Store, opts ...AnimatorOption) *Animator {
	a := &Animator{
		store:    store,
		frame:    defaultFrameInterval,
		duration: defaultAnimDuration,
		active:   make(map[string]*animation),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run drives the scheduler until ctx is canceled.
func (a *Animator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.Advance(now)
		}
	}
}

// Animate starts (or restarts) the glide for an entity. Restarting from the
// currently displayed coordinate rather than the stale raw position keeps a
// mid-animation update from jumping backward.
func (a *Animator) Animate(entityID string, from, to geo.Point) {
	a.mu.Lock()
	a.active[entityID] = &animation{from: from, to: to, started: a.now()}
	n := len(a.active)
	a.mu.Unlock()
	metrics.UpdateActiveAnimations(n)
}

// Cancel drops the active animation for one entity, if any.
func (a *Animator) Cancel(entityID string) {
	a.mu.Lock()
	delete(a.active, entityID)
	n := len(a.active)
	a.mu.Unlock()
	metrics.UpdateActiveAnimations(n)
}

// CancelAll drops every active animation. Called on store clear.
func (a *Animator) CancelAll() {
	a.mu.Lock()
	a.active = make(map[string]*animation)
	a.mu.Unlock()
	metrics.UpdateActiveAnimations(0)
}

// ActiveCount returns the number of in-flight animations.
func (a *Animator) ActiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

// Advance moves every active interpolation to its position at now, writing
// the eased coordinate into the store. Completed animations, and animations
// whose entity no longer exists, are removed from the active set.
func (a *Animator) Advance(now time.Time) {
	a.mu.Lock()
	type frame struct {
		id   string
		pos  geo.Point
		done bool
	}
	frames := make([]frame, 0, len(a.active))
	for id, anim := range a.active {
		elapsed := now.Sub(anim.started)
		pos := geo.Interpolate(anim.from, anim.to, elapsed, a.duration)
		frames = append(frames, frame{id: id, pos: pos, done: elapsed >= a.duration})
	}
	a.mu.Unlock()

	var finished []string
	for _, f := range frames {
		alive := a.store.SetDisplayed(f.id, f.pos.Lat, f.pos.Lon)
		if f.done || !alive {
			finished = append(finished, f.id)
		}
	}
	if len(finished) == 0 {
		return
	}

	a.mu.Lock()
	for _, id := range finished {
		delete(a.active, id)
	}
	n := len(a.active)
	a.mu.Unlock()
	metrics.UpdateActiveAnimations(n)
}
