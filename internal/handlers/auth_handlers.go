package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cassaevelyn/smartlib/internal/domain"
	"github.com/cassaevelyn/smartlib/internal/service"
)

// Register handles full registration and placeholder completion.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	user, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Registration successful. Please check your email to activate your account.",
		"user":    user.ToUserInfo(),
	})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	resp, err := h.authService.Login(r.Context(), &req, &service.LoginContext{
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req struct {
		SessionID    int64  `json:"session_id"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	if err := h.authService.Logout(r.Context(), claims.Sub, req.SessionID, req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
		SessionID    int64  `json:"session_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required", "INVALID_INPUT")
		return
	}

	resp, err := h.authService.Refresh(r.Context(), req.RefreshToken, req.SessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// SendOTP starts the pre-registration email check.
func (h *Handlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required", "INVALID_INPUT")
		return
	}

	status, err := h.authService.SendOTP(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Email and code are required", "INVALID_INPUT")
		return
	}

	user, err := h.authService.VerifyOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		var ice *domain.InvalidCodeError
		if errors.As(err, &ice) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":              "Invalid verification code",
				"code":               "INVALID_CODE",
				"attempts_remaining": ice.AttemptsRemaining,
			})
			return
		}
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Email verified successfully",
		"user":    user.ToUserInfo(),
	})
}

// VerifyEmail handles the link-based activation path.
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			token = req.Token
		}
	}
	if token == "" {
		writeError(w, http.StatusBadRequest, "Missing verification token", "INVALID_INPUT")
		return
	}

	user, err := h.authService.VerifyEmailToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Account activated",
		"user":    user.ToUserInfo(),
	})
}

func (h *Handlers) ResendActivation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required", "INVALID_INPUT")
		return
	}

	if err := h.authService.ResendActivation(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Activation email sent"})
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req struct {
		OldPassword     string `json:"old_password"`
		NewPassword     string `json:"new_password"`
		PasswordConfirm string `json:"password_confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	if err := h.authService.ChangePassword(r.Context(), claims.Sub, req.OldPassword, req.NewPassword, req.PasswordConfirm); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (h *Handlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required", "INVALID_INPUT")
		return
	}

	if err := h.authService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Same body whether or not the account exists.
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If the account exists, a reset link has been sent.",
	})
}

func (h *Handlers) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token           string `json:"token"`
		NewPassword     string `json:"new_password"`
		PasswordConfirm string `json:"password_confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "Reset token is required", "INVALID_INPUT")
		return
	}

	if err := h.authService.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword, req.PasswordConfirm); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset"})
}

// Me returns the authenticated user's current profile.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	user, err := h.authService.GetUser(r.Context(), claims.Sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user.ToUserInfo())
}

// UpdateMe edits the caller's profile. Omitted fields are left unchanged.
func (h *Handlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)

	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	user, err := h.authService.UpdateProfile(r.Context(), claims.Sub, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user.ToUserInfo())
}

// MyActivity returns the caller's audit trail, newest first.
func (h *Handlers) MyActivity(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	limit, offset := parsePagination(r)

	entries, err := h.authService.ActivityHistory(r.Context(), claims.Sub, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"activities": entries})
}
