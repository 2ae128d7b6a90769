package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// MySessions lists the caller's sessions, newest first.
func (h *Handlers) MySessions(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	sessions, err := h.sessionService.List(r.Context(), claims.Sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// EndSession terminates one of the caller's sessions. Unknown or foreign ids
// end nothing and still return OK.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	sessionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id", "INVALID_INPUT")
		return
	}

	if err := h.sessionService.End(r.Context(), claims.Sub, sessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session ended"})
}
