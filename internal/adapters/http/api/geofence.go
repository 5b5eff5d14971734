package api

import (
	"context"
	"net/http"

	service "github.com/vigilops/livetrack/internal/app"
)

// GeofenceDependencies defines the interface for geofence reporting.
type GeofenceDependencies interface {
	GeofenceReport(ctx context.Context) service.GeofenceReport
}

// GeofenceHandler handles geofence summary requests.
type GeofenceHandler struct {
	deps GeofenceDependencies
}

// NewGeofenceHandler creates a new geofence handler.
func NewGeofenceHandler(deps GeofenceDependencies) *GeofenceHandler {
	return &GeofenceHandler{deps: deps}
}

// HandleReport handles GET /geofence requests.
func (h *GeofenceHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.GeofenceReport(r.Context()))
}
