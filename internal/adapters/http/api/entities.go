package api

import (
	"context"
	"net/http"
	"strings"

	service "github.com/vigilops/livetrack/internal/app"
	"github.com/vigilops/livetrack/internal/domain/track"
)

// EntitiesDependencies defines the interface for entity read operations.
type EntitiesDependencies interface {
	Snapshot(ctx context.Context) []service.EntityView
	Entity(ctx context.Context, entityID string) (service.EntityView, bool)
	Stats() track.Stats
}

// EntitiesHandler handles tracked entity reads.
type EntitiesHandler struct {
	deps EntitiesDependencies
}

// NewEntitiesHandler creates a new entities handler.
func NewEntitiesHandler(deps EntitiesDependencies) *EntitiesHandler {
	return &EntitiesHandler{deps: deps}
}

// entitiesResponse is the list shape: the render-ready views plus the live
// counters, so a dashboard needs a single request per refresh.
type entitiesResponse struct {
	Entities []service.EntityView `json:"entities"`
	Stats    track.Stats          `json:"stats"`
}

// HandleList handles GET /entities requests.
func (h *EntitiesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	views := h.deps.Snapshot(r.Context())
	if views == nil {
		views = []service.EntityView{}
	}
	writeJSON(w, http.StatusOK, entitiesResponse{
		Entities: views,
		Stats:    h.deps.Stats(),
	})
}

// HandleGet handles GET /entities/{entity_id} requests.
func (h *EntitiesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_entity"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /entities/
	id := strings.TrimPrefix(r.URL.Path, "/entities/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	view, ok := h.deps.Entity(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, view)
}
