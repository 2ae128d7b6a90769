package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// ApplyForAccess files the caller's access application for a library.
func (h *Handlers) ApplyForAccess(w http.ResponseWriter, r *http.Request) {
	principal, err := h.principal(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req struct {
		LibraryID int64  `json:"library_id"`
		Notes     string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LibraryID == 0 {
		writeError(w, http.StatusBadRequest, "library_id is required", "INVALID_INPUT")
		return
	}

	grant, err := h.accessService.Apply(r.Context(), principal, req.LibraryID, req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, grant)
}

// MyGrants lists the caller's grants, active and pending.
func (h *Handlers) MyGrants(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	grants, err := h.accessService.ListGrants(r.Context(), claims.Sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"grants": grants})
}

func (h *Handlers) GrantAccess(w http.ResponseWriter, r *http.Request) {
	principal, err := h.principal(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	grantID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid grant id", "INVALID_INPUT")
		return
	}

	grant, err := h.accessService.Grant(r.Context(), principal, grantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

func (h *Handlers) GrantAccessDirect(w http.ResponseWriter, r *http.Request) {
	principal, err := h.principal(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req struct {
		UserID     int64      `json:"user_id"`
		LibraryID  int64      `json:"library_id"`
		AccessType string     `json:"access_type"`
		ExpiresAt  *time.Time `json:"expires_at"`
		Notes      string     `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 || req.LibraryID == 0 {
		writeError(w, http.StatusBadRequest, "user_id and library_id are required", "INVALID_INPUT")
		return
	}

	grant, err := h.accessService.GrantDirect(r.Context(), principal, req.UserID, req.LibraryID, req.AccessType, req.ExpiresAt, req.Notes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, grant)
}

func (h *Handlers) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	principal, err := h.principal(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	grantID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid grant id", "INVALID_INPUT")
		return
	}

	if err := h.accessService.Revoke(r.Context(), principal, grantID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Access revoked"})
}

func (h *Handlers) ListUserGrants(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id", "INVALID_INPUT")
		return
	}

	grants, err := h.accessService.ListGrants(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"grants": grants})
}

func (h *Handlers) ApproveUser(w http.ResponseWriter, r *http.Request) {
	principal, err := h.principal(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id", "INVALID_INPUT")
		return
	}

	if err := h.accessService.ApproveUser(r.Context(), principal, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User approved"})
}

func (h *Handlers) RejectUser(w http.ResponseWriter, r *http.Request) {
	principal, err := h.principal(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id", "INVALID_INPUT")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	if err := h.accessService.RejectUser(r.Context(), principal, userID, req.Reason); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User rejected"})
}
