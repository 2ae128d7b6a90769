package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (h *Handlers) MyPoints(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	balance, err := h.loyaltyService.Balance(r.Context(), claims.Sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
}

func (h *Handlers) MyPointsHistory(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	limit, offset := parsePagination(r)

	history, err := h.loyaltyService.History(r.Context(), claims.Sub, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": history})
}

func (h *Handlers) RedeemPoints(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req struct {
		Points      int    `json:"points"`
		Description string `json:"description"`
		ReferenceID string `json:"reference_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Points <= 0 {
		writeError(w, http.StatusBadRequest, "points must be positive", "INVALID_INPUT")
		return
	}

	entry, err := h.loyaltyService.Redeem(r.Context(), claims.Sub, req.Points, req.Description, req.ReferenceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// AwardPoints credits points to a user. Admin only.
func (h *Handlers) AwardPoints(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id", "INVALID_INPUT")
		return
	}

	var req struct {
		Points      int    `json:"points"`
		Description string `json:"description"`
		ReferenceID string `json:"reference_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Points <= 0 {
		writeError(w, http.StatusBadRequest, "points must be positive", "INVALID_INPUT")
		return
	}

	entry, err := h.loyaltyService.Award(r.Context(), userID, req.Points, req.Description, req.ReferenceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}
