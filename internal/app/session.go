// Package service wires the tracking engine together: one TrackingSession
// owns the entity store, the frame pipeline, the feed connection, and the
// active roster, and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vigilops/livetrack/internal/adapters/mq/consumer"
	framequeue "github.com/vigilops/livetrack/internal/adapters/mq/queue"
	"github.com/vigilops/livetrack/internal/adapters/stream"
	"github.com/vigilops/livetrack/internal/domain/dedupe"
	"github.com/vigilops/livetrack/internal/domain/geo"
	"github.com/vigilops/livetrack/internal/domain/model"
	"github.com/vigilops/livetrack/internal/domain/roster"
	"github.com/vigilops/livetrack/internal/domain/track"
	"github.com/vigilops/livetrack/pkg/logger"
	"github.com/vigilops/livetrack/pkg/metrics"
)

// Default session configuration constants.
const (
	defaultQueueSize     = 10000
	defaultDedupeWindow  = 10000
	defaultSweepInterval = 30 * time.Second
	shutdownGrace        = 5 * time.Second
)

// RosterSource fetches event metadata and assignments from the backend.
type RosterSource interface {
	Event(ctx context.Context, eventID string) (model.EventScope, error)
	Assignments(ctx context.Context, eventID string) ([]model.AssignmentRecord, error)
}

// Feed is the live position connection. Satisfied by the websocket stream
// client; tests substitute a fake.
type Feed interface {
	Run(ctx context.Context) error
	SetScope(ctx context.Context, eventID string) error
	State() stream.State
}

// TrackingSession is one open tracking view over a single event scope. It is
// the session object the HTTP API and the feed both talk to: the feed pushes
// frames in through the Sink side, the API reads snapshots out.
type TrackingSession struct {
	mu sync.RWMutex

	// Core components
	store    *track.Store
	animator *track.Animator
	queue    framequeue.Queue
	deduper  dedupe.Deduper
	consumer *consumer.Consumer

	// Collaborators
	rosterAPI RosterSource
	feed      Feed

	// Scope state
	scope  model.EventScope
	roster *roster.Roster

	// Configuration
	id            string
	eventID       string
	queueSize     int
	dedupeWindow  int
	trailCap      int
	staleAfter    time.Duration
	frameInterval time.Duration
	animDuration  time.Duration
	sweepInterval time.Duration
	feedEndpoint  string
	identity      stream.Identity

	// Feed reconnect tuning; zero values keep the client defaults.
	reconnectAttempts int
	reconnectBase     time.Duration
	reconnectMax      time.Duration

	// State
	started    bool
	runCancel  context.CancelFunc
	consCancel context.CancelFunc
	scopeMu    sync.Mutex // serializes scope switches end to end

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the TrackingSession.
type Option func(*TrackingSession)

// WithRosterSource sets the backend the roster is fetched from.
func WithRosterSource(src RosterSource) Option {
	return func(s *TrackingSession) {
		if src != nil {
			s.rosterAPI = src
		}
	}
}

// WithFeed injects a feed connection directly, bypassing the websocket
// client construction. Used by tests and embedded deployments.
func WithFeed(f Feed) Option {
	return func(s *TrackingSession) {
		if f != nil {
			s.feed = f
		}
	}
}

// WithFeedEndpoint sets the websocket feed endpoint and the identity
// presented to it.
func WithFeedEndpoint(endpoint string, identity stream.Identity) Option {
	return func(s *TrackingSession) {
		s.feedEndpoint = endpoint
		s.identity = identity
	}
}

// WithReconnect tunes the feed connection's retry budget and backoff range.
// Zero or negative values keep the feed client defaults.
func WithReconnect(attempts int, base, max time.Duration) Option {
	return func(s *TrackingSession) {
		if attempts > 0 {
			s.reconnectAttempts = attempts
		}
		if base > 0 {
			s.reconnectBase = base
		}
		if max > 0 {
			s.reconnectMax = max
		}
	}
}

// WithEventID sets the initial event scope opened on Start.
func WithEventID(eventID string) Option {
	return func(s *TrackingSession) {
		s.eventID = eventID
	}
}

// WithQueueSize sets the maximum size of the frame queue.
func WithQueueSize(size int) Option {
	return func(s *TrackingSession) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeWindow sets the size of the frame replay suppression window.
func WithDedupeWindow(size int) Option {
	return func(s *TrackingSession) {
		if size > 0 {
			s.dedupeWindow = size
		}
	}
}

// WithTrailCap sets the per-entity trail length.
func WithTrailCap(n int) Option {
	return func(s *TrackingSession) {
		if n > 0 {
			s.trailCap = n
		}
	}
}

// WithStaleAfter enables eviction of entities silent for longer than d.
// Zero (the default) keeps entities at their last position until the scope
// changes.
func WithStaleAfter(d time.Duration) Option {
	return func(s *TrackingSession) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithAnimation sets the marker glide timing.
func WithAnimation(frameInterval, duration time.Duration) Option {
	return func(s *TrackingSession) {
		if frameInterval > 0 {
			s.frameInterval = frameInterval
		}
		if duration > 0 {
			s.animDuration = duration
		}
	}
}

// WithLogger sets a custom logger for the session.
func WithLogger(l logger.Logger) Option {
	return func(s *TrackingSession) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a TrackingSession with default configuration.
func New(opts ...Option) *TrackingSession {
	s := &TrackingSession{
		id:            uuid.NewString(),
		queueSize:     defaultQueueSize,
		dedupeWindow:  defaultDedupeWindow,
		trailCap:      track.DefaultTrailCap,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's unique identifier.
func (s *TrackingSession) ID() string { return s.id }

// Start builds the pipeline and opens the initial scope. The session is not
// usable before Start and not restartable after Stop.
func (s *TrackingSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("session")
	}

	s.store = track.NewStore(
		track.WithTrailCap(s.trailCap),
		track.WithStaleAfter(s.staleAfter),
	)
	animOpts := []track.AnimatorOption{}
	if s.frameInterval > 0 {
		animOpts = append(animOpts, track.WithFrameInterval(s.frameInterval))
	}
	if s.animDuration > 0 {
		animOpts = append(animOpts, track.WithAnimationDuration(s.animDuration))
	}
	s.animator = track.NewAnimator(s.store, animOpts...)
	s.queue = framequeue.NewInMemoryQueue(framequeue.WithCapacity(s.queueSize))
	s.deduper = dedupe.New(dedupe.WithWindow(s.dedupeWindow))
	s.mu.Unlock()

	if s.eventID != "" {
		scope, rst, err := s.fetchScope(ctx, s.eventID)
		if err != nil {
			return fmt.Errorf("open initial scope %q: %w", s.eventID, err)
		}
		s.mu.Lock()
		s.scope = scope
		s.roster = rst
		s.mu.Unlock()
		metrics.UpdateRosterSize(rst.Len())
	}

	s.mu.Lock()
	if s.feed == nil && s.feedEndpoint != "" {
		var feedOpts []stream.Option
		if s.reconnectAttempts > 0 {
			feedOpts = append(feedOpts, stream.WithMaxAttempts(s.reconnectAttempts))
		}
		if s.reconnectBase > 0 {
			feedOpts = append(feedOpts, stream.WithBackoff(s.reconnectBase, s.reconnectMax))
		}
		s.feed = stream.New(s.feedEndpoint, s.identity, s.eventID, s, feedOpts...)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	s.startConsumerLocked()
	go s.animator.Run(runCtx)
	if s.feed != nil {
		go s.runFeed(runCtx)
	}
	if s.staleAfter > 0 {
		go s.sweepLoop(runCtx)
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info(ctx, "tracking session started",
		logger.String("sessionID", s.id),
		logger.String("eventID", s.eventID),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeWindow", s.dedupeWindow),
		logger.Int("trailCap", s.trailCap),
	)
	return nil
}

// Stop gracefully shuts the session down.
func (s *TrackingSession) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	runCancel := s.runCancel
	consCancel := s.consCancel
	cons := s.consumer
	q := s.queue
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping tracking session", logger.String("sessionID", s.id))

	if runCancel != nil {
		runCancel()
	}
	if consCancel != nil {
		consCancel()
	}
	if closer, ok := q.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if cons != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
		defer cancel()
		if err := cons.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(ctx, "consumer did not stop cleanly", logger.Error(err))
		}
	}

	s.logger.Info(ctx, "tracking session stopped", logger.String("sessionID", s.id))
}

// startConsumerLocked launches a fresh consumer goroutine. Caller holds s.mu.
func (s *TrackingSession) startConsumerLocked() {
	consCtx, cancel := context.WithCancel(context.Background())
	s.consCancel = cancel
	s.consumer = consumer.New(s.queue, s, s.store, s.animator, s.deduper)
	go s.consumer.Run(consCtx)
}

// runFeed drives the feed connection and logs its terminal outcome.
func (s *TrackingSession) runFeed(ctx context.Context) {
	err := s.feed.Run(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error(ctx, "position feed terminated", logger.Error(err))
	}
}

// sweepLoop periodically evicts stale entities.
func (s *TrackingSession) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.store.SweepStale(now); n > 0 {
				s.logger.Info(ctx, "evicted stale entities", logger.Int("count", n))
			}
		}
	}
}

// fetchScope loads the event metadata and its trackable roster.
func (s *TrackingSession) fetchScope(ctx context.Context, eventID string) (model.EventScope, *roster.Roster, error) {
	if s.rosterAPI == nil {
		// No backend configured: open an empty scope. Every frame will be
		// unmatched until a roster arrives, which is the safe default.
		return model.EventScope{EventID: eventID}, roster.New(eventID, nil), nil
	}
	scope, err := s.rosterAPI.Event(ctx, eventID)
	if err != nil {
		metrics.RecordRosterRefreshError()
		return model.EventScope{}, nil, fmt.Errorf("fetch event: %w", err)
	}
	records, err := s.rosterAPI.Assignments(ctx, eventID)
	if err != nil {
		metrics.RecordRosterRefreshError()
		return model.EventScope{}, nil, fmt.Errorf("fetch assignments: %w", err)
	}
	return scope, roster.New(eventID, records), nil
}

// SetScope switches the session to a new event. The switch is atomic from
// the reader's point of view: the pipeline is paused, every entity of the
// old scope is dropped in one step, and only then do frames for the new
// scope start applying. On a fetch failure the old scope stays active.
func (s *TrackingSession) SetScope(ctx context.Context, eventID string) error {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()

	scope, rst, err := s.fetchScope(ctx, eventID)
	if err != nil {
		return fmt.Errorf("set scope %q: %w", eventID, err)
	}

	// Pause the pipeline so no in-flight frame straddles the clear.
	s.mu.RLock()
	started := s.started
	cons := s.consumer
	consCancel := s.consCancel
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	consCancel()
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	if err := cons.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("pause pipeline: %w", err)
	}

	s.mu.Lock()
	s.store.Clear()
	s.animator.CancelAll()
	s.deduper.Reset(ctx)
	s.scope = scope
	s.roster = rst
	s.eventID = eventID
	s.startConsumerLocked()
	feed := s.feed
	s.mu.Unlock()

	metrics.RecordScopeChange()
	metrics.UpdateRosterSize(rst.Len())
	s.logger.Info(ctx, "scope changed",
		logger.String("eventID", eventID),
		logger.Int("rosterSize", rst.Len()),
	)

	if feed != nil {
		if err := feed.SetScope(ctx, eventID); err != nil {
			// The connection will resubscribe with the stored scope on its
			// next session, so this is not fatal.
			s.logger.Warn(ctx, "resubscribe failed, awaiting reconnect", logger.Error(err))
		}
	}
	return nil
}

// RefreshRoster re-fetches the assignment list for the current scope without
// touching tracked state. Entities no longer on the roster stop receiving
// updates but stay visible until the next scope change or stale sweep.
func (s *TrackingSession) RefreshRoster(ctx context.Context) error {
	s.mu.RLock()
	eventID := s.eventID
	s.mu.RUnlock()
	if eventID == "" {
		return ErrNoScope
	}

	_, rst, err := s.fetchScope(ctx, eventID)
	if err != nil {
		return fmt.Errorf("refresh roster: %w", err)
	}

	s.mu.Lock()
	s.roster = rst
	s.mu.Unlock()
	metrics.UpdateRosterSize(rst.Len())
	return nil
}

// Resolve implements the consumer's roster gate against the active scope.
func (s *TrackingSession) Resolve(entityID string) roster.Resolution {
	s.mu.RLock()
	rst := s.roster
	s.mu.RUnlock()
	if rst == nil {
		return roster.Resolution{}
	}
	return rst.Resolve(entityID)
}

// HandlePosition implements the feed sink: frames go onto the queue and the
// consumer applies them. A full queue drops the frame; the next report for
// the same entity supersedes it anyway.
func (s *TrackingSession) HandlePosition(ctx context.Context, p model.LivePosition) {
	if !s.queue.Enqueue(ctx, p) {
		s.logger.Warn(ctx, "frame queue rejected position",
			logger.String("entityID", p.EntityID),
		)
	}
}

// HandleDisconnect implements the feed sink: a lost connection empties the
// tracked state so the map never shows positions the feed is no longer
// vouching for. The snapshot replayed on reconnect repopulates it.
func (s *TrackingSession) HandleDisconnect(ctx context.Context) {
	s.mu.Lock()
	if s.store != nil {
		s.store.Clear()
	}
	if s.animator != nil {
		s.animator.CancelAll()
	}
	if s.deduper != nil {
		s.deduper.Reset(ctx)
	}
	s.mu.Unlock()
	s.logger.Warn(ctx, "feed disconnected, tracked state cleared")
}

// Scope returns the active event scope.
func (s *TrackingSession) Scope() model.EventScope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

// Stats returns the live store counters.
func (s *TrackingSession) Stats() track.Stats {
	return s.store.Stats()
}

// Groups arranges the active roster into supervisor buckets.
func (s *TrackingSession) Groups() []roster.Group {
	s.mu.RLock()
	rst := s.roster
	s.mu.RUnlock()
	if rst == nil {
		return nil
	}
	return rst.GroupBySupervisor()
}

// EntityView is one tracked entity prepared for rendering: the smoothed
// coordinate with any co-location spread applied, plus its distance band
// relative to the event center.
type EntityView struct {
	model.TrackedEntity
	RenderLatitude  float64  `json:"renderLatitude"`
	RenderLongitude float64  `json:"renderLongitude"`
	DistanceBand    geo.Band `json:"distanceBand"`
	DistanceMeters  *float64 `json:"distanceMeters,omitempty"`
}

// Snapshot returns every tracked entity as a render-ready view, ordered by
// entity id. Co-located markers are spread so all stay visible.
func (s *TrackingSession) Snapshot(ctx context.Context) []EntityView {
	entities := s.store.Snapshot()
	sort.Slice(entities, func(i, j int) bool { return entities[i].EntityID < entities[j].EntityID })

	points := make([]geo.Point, len(entities))
	for i, ent := range entities {
		points[i] = geo.Point{Lat: ent.Displayed.Latitude, Lon: ent.Displayed.Longitude}
	}
	offsets := geo.ColocationOffsets(points, geo.DefaultColocationTolerance)

	scope := s.Scope()
	views := make([]EntityView, len(entities))
	for i, ent := range entities {
		views[i] = s.viewFor(ent, offsets[i], scope)
	}
	return views
}

// Entity returns the render-ready view of a single entity. The co-location
// spread is computed against the full store, so the view matches what a
// snapshot would show.
func (s *TrackingSession) Entity(ctx context.Context, entityID string) (EntityView, bool) {
	ent, ok := s.store.Get(entityID)
	if !ok {
		return EntityView{}, false
	}

	entities := s.store.Snapshot()
	points := make([]geo.Point, len(entities))
	idx := -1
	for i, e := range entities {
		points[i] = geo.Point{Lat: e.Displayed.Latitude, Lon: e.Displayed.Longitude}
		if e.EntityID == entityID {
			idx = i
		}
	}
	var offset geo.Offset
	if idx >= 0 {
		offset = geo.ColocationOffsets(points, geo.DefaultColocationTolerance)[idx]
	}
	return s.viewFor(ent, offset, s.Scope()), true
}

func (s *TrackingSession) viewFor(ent model.TrackedEntity, offset geo.Offset, scope model.EventScope) EntityView {
	view := EntityView{
		TrackedEntity:   ent,
		RenderLatitude:  ent.Displayed.Latitude + offset.Lat,
		RenderLongitude: ent.Displayed.Longitude + offset.Lon,
		DistanceBand:    geo.BandUnknown,
	}
	if scope.HasCenter() {
		d, ok := geo.DistanceMeters(ent.Position.Latitude, ent.Position.Longitude, *scope.Latitude, *scope.Longitude)
		view.DistanceBand = geo.BandFor(d, ok)
		if ok {
			view.DistanceMeters = &d
		}
	}
	return view
}

// GeofenceReport summarizes tracked entities against the scope's geofence
// and proximity bands.
type GeofenceReport struct {
	EventID      string           `json:"eventId"`
	RadiusMeters float64          `json:"radiusMeters,omitempty"`
	Inside       int              `json:"inside"`
	Outside      int              `json:"outside"`
	Unknown      int              `json:"unknown"`
	Bands        map[geo.Band]int `json:"bands"`
}

// GeofenceReport computes the current geofence summary. Without a scope
// center every entity counts as unknown; without a geofence radius the
// inside/outside split stays zero and only bands are reported.
func (s *TrackingSession) GeofenceReport(ctx context.Context) GeofenceReport {
	scope := s.Scope()
	report := GeofenceReport{
		EventID:      scope.EventID,
		RadiusMeters: scope.GeofenceRadiusMeters,
		Bands:        make(map[geo.Band]int),
	}

	for _, ent := range s.store.Snapshot() {
		if !scope.HasCenter() {
			report.Unknown++
			report.Bands[geo.BandUnknown]++
			continue
		}
		d, ok := geo.DistanceMeters(ent.Position.Latitude, ent.Position.Longitude, *scope.Latitude, *scope.Longitude)
		report.Bands[geo.BandFor(d, ok)]++
		switch {
		case !ok:
			report.Unknown++
		case scope.GeofenceRadiusMeters <= 0:
			report.Unknown++
		case d <= scope.GeofenceRadiusMeters:
			report.Inside++
		default:
			report.Outside++
		}
	}
	return report
}

// GetStats returns session statistics for monitoring.
func (s *TrackingSession) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"sessionId":    s.id,
		"started":      s.started,
		"eventId":      s.eventID,
		"queueSize":    s.queueSize,
		"dedupeWindow": s.dedupeWindow,
	}

	if s.started {
		ctx := context.Background()
		st := s.store.Stats()
		stats["queueLength"] = s.queue.Len(ctx)
		stats["dedupeSize"] = s.deduper.Size()
		stats["tracked"] = st.Total
		stats["moving"] = st.Moving
		stats["stopped"] = st.Stopped
		stats["lowBattery"] = st.LowBattery
		stats["activeAnimations"] = s.animator.ActiveCount()
		if s.feed != nil {
			stats["feedState"] = string(s.feed.State())
		}
		if s.roster != nil {
			stats["rosterSize"] = s.roster.Len()
		}
	}

	return stats
}
