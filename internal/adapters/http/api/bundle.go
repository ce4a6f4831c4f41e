package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/ghpulse/internal/domain/silver"
)

// BundleHandler serves a preview of the normalized entities.
type BundleHandler struct {
	deps     Dependencies
	maxLimit int
}

// NewBundleHandler creates a new bundle handler.
func NewBundleHandler(deps Dependencies, maxLimit int) *BundleHandler {
	return &BundleHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetBundle handles GET /bundle?since=&until=&limit= requests. Bounds
// are RFC 3339 and either may be omitted.
func (h *BundleHandler) HandleGetBundle(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_bundle"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	win, err := h.window(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	b, err := h.deps.Bundle(r.Context(), win)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BundleHandler) window(q url.Values) (silver.Window, error) {
	var (
		win silver.Window
		err error
	)
	if s := q.Get("since"); s != "" {
		if win.Since, err = time.Parse(time.RFC3339, s); err != nil {
			return win, errors.New("invalid since; must be RFC3339")
		}
	}
	if s := q.Get("until"); s != "" {
		if win.Until, err = time.Parse(time.RFC3339, s); err != nil {
			return win, errors.New("invalid until; must be RFC3339")
		}
	}
	if !win.Since.IsZero() && !win.Until.IsZero() && !win.Since.Before(win.Until) {
		return win, errors.New("since must be before until")
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return win, errors.New("invalid limit")
		}
		win.Limit = n
	}
	if h.maxLimit > 0 && (win.Limit == 0 || win.Limit > h.maxLimit) {
		win.Limit = h.maxLimit
	}
	return win, nil
}
