package api

import (
	"net/http"

	"github.com/vigilops/livetrack/internal/domain/roster"
)

// GroupsDependencies defines the interface for supervisor grouping reads.
type GroupsDependencies interface {
	Groups() []roster.Group
}

// GroupsHandler handles supervisor grouping requests.
type GroupsHandler struct {
	deps GroupsDependencies
}

// NewGroupsHandler creates a new groups handler.
func NewGroupsHandler(deps GroupsDependencies) *GroupsHandler {
	return &GroupsHandler{deps: deps}
}

type groupsResponse struct {
	Groups []roster.Group `json:"groups"`
}

// HandleGroups handles GET /groups requests.
func (h *GroupsHandler) HandleGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	groups := h.deps.Groups()
	if groups == nil {
		groups = []roster.Group{}
	}
	writeJSON(w, http.StatusOK, groupsResponse{Groups: groups})
}
