package api

import (
	"context"
	"net/http"
	"time"
)

// RunsHandler handles pipeline run requests.
type RunsHandler struct {
	deps    Dependencies
	timeout time.Duration
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps Dependencies, timeout time.Duration) *RunsHandler {
	return &RunsHandler{deps: deps, timeout: timeout}
}

// HandlePostRun handles POST /runs requests. The run is synchronous and the
// response carries the full result.
func (h *RunsHandler) HandlePostRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_run"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	accounts, err := decodeAccounts(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	res, err := h.deps.Run(ctx, accounts)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
