// Package track holds the live entity state for an open tracking session:
// the single source of truth for who is currently visible and where.
package track

import (
	"sync"
	"time"

	"github.com/vigilops/livetrack/internal/domain/model"
	"github.com/vigilops/livetrack/pkg/metrics"
)

// Default store configuration constants.
const (
	// DefaultTrailCap bounds the per-entity position history.
	DefaultTrailCap = 50

	subscriberBuffer = 64
)

// Stats summarizes the current store contents. Recomputed on every upsert,
// so consumers needing live counts re-read instead of caching.
type Stats struct {
	Total      int `json:"total"`
	Moving     int `json:"moving"`
	Stopped    int `json:"stopped"`
	LowBattery int `json:"lowBattery"`
}

// ChangeKind enumerates store change notifications.
type ChangeKind string

// Change kinds delivered to subscribers.
const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeEvicted ChangeKind = "evicted"
	ChangeCleared ChangeKind = "cleared"
)

// Change is one store mutation event. EntityID is empty for ChangeCleared.
type Change struct {
	Kind     ChangeKind
	EntityID string
}

// Store is the in-memory entity state store. A single writer (the stream
// consumer) mutates it; renderers and stats readers take copies. Entities
// persist until Clear or, when a stale timeout is configured, until a sweep
// evicts them.
type Store struct {
	mu         sync.RWMutex
	entities   map[string]*model.TrackedEntity
	trailCap   int
	staleAfter time.Duration // zero disables stale eviction
	stats      Stats

	subMu   sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithTrailCap sets the maximum trail length per entity.
func WithTrailCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.trailCap = n
		}
	}
}

// WithStaleAfter enables eviction of entities silent for longer than d.
// Zero keeps the historical behavior: entities persist at their last
// position until the store is cleared.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// NewStore creates an empty store with configuration options.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entities: make(map[string]*model.TrackedEntity),
		trailCap: DefaultTrailCap,
		subs:     make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert records a new position for an entity, creating it on first sight.
// When the entity already exists and its position changed, the previous
// position is pushed onto the trail before being overwritten, respecting
// the trail cap with FIFO eviction. The returned previous point is nil for
// a first-ever position, so callers know there is nothing to animate from.
func (s *Store) Upsert(entityID string, role model.Role, displayName string, pos model.LivePosition) (prev *model.TrailPoint, created bool) {
	s.mu.Lock()

	ent, ok := s.entities[entityID]
	if !ok {
		ent = &model.TrackedEntity{
			EntityID:    entityID,
			Role:        role,
			DisplayName: displayName,
			Position:    pos,
			Displayed:   model.TrailPoint{Latitude: pos.Latitude, Longitude: pos.Longitude},
			Moving:      pos.Moving(),
			Trail:       nil,
		}
		ent.LastUpdateAt = pos.Timestamp
		s.entities[entityID] = ent
		s.recomputeStatsLocked()
		s.mu.Unlock()

		s.notify(Change{Kind: ChangeCreated, EntityID: entityID})
		return nil, true
	}

	old := model.TrailPoint{Latitude: ent.Position.Latitude, Longitude: ent.Position.Longitude}
	moved := old.Latitude != pos.Latitude || old.Longitude != pos.Longitude
	if moved {
		ent.Trail = append(ent.Trail, old)
		if len(ent.Trail) > s.trailCap {
			ent.Trail = ent.Trail[len(ent.Trail)-s.trailCap:]
		}
	}
	ent.Role = role
	ent.DisplayName = displayName
	ent.Position = pos
	ent.Moving = pos.Moving()
	ent.LastUpdateAt = pos.Timestamp
	s.recomputeStatsLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdated, EntityID: entityID})
	if !moved {
		return nil, false
	}
	return &old, false
}

// SetDisplayed updates the smoothed rendering coordinate for an entity.
// Returns false when the entity no longer exists, which tells the animator
// the animation has been superseded by a clear or eviction.
func (s *Store) SetDisplayed(entityID string, lat, lon float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.entities[entityID]
	if !ok {
		return false
	}
	ent.Displayed = model.TrailPoint{Latitude: lat, Longitude: lon}
	return true
}

// Get returns a copy of one entity.
func (s *Store) Get(entityID string) (model.TrackedEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.entities[entityID]
	if !ok {
		return model.TrackedEntity{}, false
	}
	return copyEntity(ent), true
}

// Snapshot returns a copy of every tracked entity. Trails are copied, so
// callers may hold the result across further upserts.
func (s *Store) Snapshot() []model.TrackedEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TrackedEntity, 0, len(s.entities))
	for _, ent := range s.entities {
		out = append(out, copyEntity(ent))
	}
	return out
}

// Stats returns the counts recomputed at the last mutation.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Count returns the number of tracked entities.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Clear atomically empties the store. Called synchronously before a new
// event scope is subscribed and on stream disconnect, so no entity from a
// previous scope can leak into the next one.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entities = make(map[string]*model.TrackedEntity)
	s.recomputeStatsLocked()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeCleared})
}

// SweepStale evicts entities whose last update is older than the configured
// stale timeout. A no-op when stale eviction is disabled. Returns the number
// of evicted entities.
func (s *Store) SweepStale(now time.Time) int {
	if s.staleAfter <= 0 {
		return 0
	}
	cutoff := now.Add(-s.staleAfter)

	s.mu.Lock()
	var evicted []string
	for id, ent := range s.entities {
		if ent.LastUpdateAt.Before(cutoff) {
			delete(s.entities, id)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		s.recomputeStatsLocked()
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.notify(Change{Kind: ChangeEvicted, EntityID: id})
	}
	return len(evicted)
}

// Subscribe registers a change listener. The returned cancel function must
// be called to release the subscription. Slow subscribers lose changes
// rather than blocking the writer.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Change, subscriberBuffer)
	s.subs[id] = ch
	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// recomputeStatsLocked rebuilds the stats counters. Caller holds s.mu.
func (s *Store) recomputeStatsLocked() {
	st := Stats{Total: len(s.entities)}
	for _, ent := range s.entities {
		if ent.Moving {
			st.Moving++
		} else {
			st.Stopped++
		}
		if ent.Position.BatteryLow() {
			st.LowBattery++
		}
	}
	s.stats = st

	metrics.UpdateTrackedEntities(st.Total)
	metrics.UpdateMovingEntities(st.Moving)
	metrics.UpdateLowBatteryEntities(st.LowBattery)
}

func copyEntity(ent *model.TrackedEntity) model.TrackedEntity {
	out := *ent
	out.Trail = make([]model.TrailPoint, len(ent.Trail))
	copy(out.Trail, ent.Trail)
	return out
}
