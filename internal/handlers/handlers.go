package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cassaevelyn/smartlib/internal/domain"
	"github.com/cassaevelyn/smartlib/internal/service"
	"github.com/cassaevelyn/smartlib/pkg/auth"
	"github.com/cassaevelyn/smartlib/pkg/config"
	"github.com/cassaevelyn/smartlib/pkg/logger"
)

type contextKey string

const claimsKey contextKey = "claims"

type Handlers struct {
	authService    service.AuthService
	accessService  service.AccessService
	sessionService service.SessionService
	loyaltyService service.LoyaltyService
	config         *config.Config
}

func New(
	authService service.AuthService,
	accessService service.AccessService,
	sessionService service.SessionService,
	loyaltyService service.LoyaltyService,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		authService:    authService,
		accessService:  accessService,
		sessionService: sessionService,
		loyaltyService: loyaltyService,
		config:         cfg,
	}
}

// RequireJWT authenticates the bearer access token and optionally enforces a
// role. SUPER_ADMIN passes every role check; ADMIN passes the ADMIN check.
func (h *Handlers) RequireJWT(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", "UNAUTHORIZED")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := auth.Parse(token, h.config.Auth.JWTSecret)
			if err != nil || claims.TokenType != auth.TokenTypeAccess {
				writeError(w, http.StatusUnauthorized, "Invalid token", "INVALID_TOKEN")
				return
			}

			if !roleSatisfies(claims.Role, requiredRole) {
				writeError(w, http.StatusForbidden, "Insufficient permissions", "FORBIDDEN")
				return
			}

			ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func roleSatisfies(have, want string) bool {
	switch want {
	case "":
		return true
	case domain.RoleAdmin:
		return have == domain.RoleAdmin || have == domain.RoleSuperAdmin
	case domain.RoleSuperAdmin:
		return have == domain.RoleSuperAdmin
	default:
		return have == want || have == domain.RoleSuperAdmin
	}
}

func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// principal loads the authenticated user's current row. Claims can be up to
// one access-token TTL stale; admin checks use the database state.
func (h *Handlers) principal(r *http.Request) (*domain.User, error) {
	claims := getClaims(r)
	if claims == nil {
		return nil, domain.ErrForbidden
	}
	return h.authService.GetUser(r.Context(), claims.Sub)
}

func getClientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if idx := strings.Index(xff, ","); idx != -1 {
			first = xff[:idx]
		}
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(r.RemoteAddr)
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
		"code":  code,
	})
}

// writeServiceError maps sentinel errors to HTTP responses. Anything
// unrecognized is a 500 with a generic body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMap {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.err.Error(), m.code)
			return
		}
	}
	logger.ErrorContext(r.Context(), "Unhandled service error", "error", err)
	writeError(w, http.StatusInternalServerError, "Internal server error", "INTERNAL")
}

var errorMap = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{domain.ErrAccountInactive, http.StatusForbidden, "ACCOUNT_INACTIVE"},
	{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{domain.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrVerificationNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrSessionNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrGrantNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrEmailExists, http.StatusConflict, "EMAIL_EXISTS"},
	{domain.ErrUsernameExists, http.StatusConflict, "USERNAME_EXISTS"},
	{domain.ErrGrantExists, http.StatusConflict, "GRANT_EXISTS"},
	{domain.ErrAlreadyVerified, http.StatusConflict, "ALREADY_VERIFIED"},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS"},
	{domain.ErrResendRateLimited, http.StatusTooManyRequests, "RESEND_RATE_LIMITED"},
	{domain.ErrInvalidCode, http.StatusBadRequest, "INVALID_CODE"},
	{domain.ErrCodeExpired, http.StatusBadRequest, "CODE_EXPIRED"},
	{domain.ErrInvalidToken, http.StatusBadRequest, "INVALID_TOKEN"},
	{domain.ErrWrongPassword, http.StatusBadRequest, "WRONG_PASSWORD"},
	{domain.ErrPasswordMismatch, http.StatusBadRequest, "PASSWORD_MISMATCH"},
	{domain.ErrPasswordPolicy, http.StatusBadRequest, "PASSWORD_POLICY"},
	{domain.ErrInvalidCRN, http.StatusBadRequest, "INVALID_CRN"},
	{domain.ErrInvalidEmail, http.StatusBadRequest, "INVALID_EMAIL"},
	{domain.ErrInvalidRole, http.StatusBadRequest, "INVALID_ROLE"},
	{domain.ErrInsufficientPoints, http.StatusBadRequest, "INSUFFICIENT_POINTS"},
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
