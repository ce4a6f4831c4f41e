package api

import "net/http"

// AccountsHandler handles account removal.
type AccountsHandler struct {
	deps Dependencies
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(deps Dependencies) *AccountsHandler {
	return &AccountsHandler{deps: deps}
}

// HandleRemove handles POST /accounts/remove requests.
func (h *AccountsHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	const op = "api.remove_accounts"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	accounts, err := decodeAccounts(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.RemoveAccounts(r.Context(), accounts)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
