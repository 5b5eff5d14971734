package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vigilops/livetrack/internal/adapters/rest"
	"github.com/vigilops/livetrack/internal/domain/model"
)

// ScopeDependencies defines the interface for scope operations.
type ScopeDependencies interface {
	Scope() model.EventScope
	SetScope(ctx context.Context, eventID string) error
	RefreshRoster(ctx context.Context) error
}

// ScopeHandler handles event scope reads and switches.
type ScopeHandler struct {
	deps ScopeDependencies
}

// NewScopeHandler creates a new scope handler.
func NewScopeHandler(deps ScopeDependencies) *ScopeHandler {
	return &ScopeHandler{deps: deps}
}

// scopeRequest mirrors the body of POST /scope.
type scopeRequest struct {
	EventID string `json:"eventId"`
}

// HandleScope handles GET and POST /scope requests. GET returns the active
// scope; POST switches the session to a new event, dropping every tracked
// entity of the old one.
func (h *ScopeHandler) HandleScope(w http.ResponseWriter, r *http.Request) {
	const op = "api.scope"
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.deps.Scope())

	case http.MethodPost:
		var req scopeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if strings.TrimSpace(req.EventID) == "" {
			writeError(w, http.StatusBadRequest, "missing_event_id", NewKind(op, ErrBadRequest))
			return
		}
		if err := h.deps.SetScope(r.Context(), req.EventID); err != nil {
			if errors.Is(err, rest.ErrEventNotFound) {
				writeError(w, http.StatusNotFound, "event_not_found", err)
				return
			}
			writeError(w, http.StatusBadGateway, "scope_change_failed", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, h.deps.Scope())

	default:
		http.NotFound(w, r)
	}
}

// HandleRefresh handles POST /scope/roster requests, re-fetching the
// assignment list for the current scope.
func (h *ScopeHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_roster"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.RefreshRoster(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "roster_refresh_failed", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
