// Package api declares HTTP contracts and route registration helpers for
// the tracking read surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/vigilops/livetrack/internal/app"
	"github.com/vigilops/livetrack/internal/domain/model"
	"github.com/vigilops/livetrack/internal/domain/roster"
	"github.com/vigilops/livetrack/internal/domain/track"
)

// Dependencies bundles what the handlers need from the tracking session.
// Using an interface keeps the handler layer loosely coupled to the session
// implementation.
type Dependencies interface {
	Snapshot(ctx context.Context) []service.EntityView
	Entity(ctx context.Context, entityID string) (service.EntityView, bool)
	Stats() track.Stats
	Groups() []roster.Group
	Scope() model.EventScope
	SetScope(ctx context.Context, eventID string) error
	RefreshRoster(ctx context.Context) error
	GeofenceReport(ctx context.Context) service.GeofenceReport
}

// StatsProvider exposes the monitoring blob served on /stats.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// Server wires HTTP routes for the tracking API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	entitiesHandler *EntitiesHandler
	groupsHandler   *GroupsHandler
	scopeHandler    *ScopeHandler
	geofenceHandler *GeofenceHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		entitiesHandler: NewEntitiesHandler(deps),
		groupsHandler:   NewGroupsHandler(deps),
		scopeHandler:    NewScopeHandler(deps),
		geofenceHandler: NewGeofenceHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/entities", MetricsMiddleware(s.entitiesHandler.HandleList, "entities"))
	mux.HandleFunc("/entities/", MetricsMiddleware(s.entitiesHandler.HandleGet, "entity"))
	mux.HandleFunc("/groups", MetricsMiddleware(s.groupsHandler.HandleGroups, "groups"))
	mux.HandleFunc("/scope", MetricsMiddleware(s.scopeHandler.HandleScope, "scope"))
	mux.HandleFunc("/scope/roster", MetricsMiddleware(s.scopeHandler.HandleRefresh, "roster"))
	mux.HandleFunc("/geofence", MetricsMiddleware(s.geofenceHandler.HandleReport, "geofence"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
