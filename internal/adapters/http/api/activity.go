package api

import (
	"net/http"
	"strings"

	"github.com/okian/ghpulse/internal/domain/types"
)

// ActivityHandler serves stored activity counters.
type ActivityHandler struct {
	deps Dependencies
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(deps Dependencies) *ActivityHandler {
	return &ActivityHandler{deps: deps}
}

// HandleGetActivity handles GET /activity/{userId} requests.
func (h *ActivityHandler) HandleGetActivity(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_activity"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/activity/")
	if userID == "" || strings.Contains(userID, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	acts, err := h.deps.Activity(r.Context(), userID)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if len(acts) == 0 {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	writeJSON(w, http.StatusOK, types.ActivityResponse{UserID: userID, Activities: acts})
}
