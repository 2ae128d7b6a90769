package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"

	"github.com/cassaevelyn/smartlib/internal/domain"
	"github.com/cassaevelyn/smartlib/internal/repository"
	"github.com/cassaevelyn/smartlib/internal/secrets"
	"github.com/cassaevelyn/smartlib/internal/verification"
	"github.com/cassaevelyn/smartlib/pkg/auth"
	"github.com/cassaevelyn/smartlib/pkg/config"
	"github.com/cassaevelyn/smartlib/pkg/events"
	"github.com/cassaevelyn/smartlib/pkg/logger"
)

// TokenRevoker blacklists a refresh token until its natural expiry and
// answers whether a token has been blacklisted.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenString string) error
	IsRevoked(ctx context.Context, claims *auth.Claims) (bool, error)
}

type LoginContext struct {
	IP         net.IP
	UserAgent  string
	DeviceInfo map[string]string
}

type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error)
	SendOTP(ctx context.Context, email string) (*domain.OTPStatus, error)
	VerifyOTP(ctx context.Context, email, code string) (*domain.User, error)
	Login(ctx context.Context, req *domain.LoginRequest, lc *LoginContext) (*domain.LoginResponse, error)
	Logout(ctx context.Context, principal, sessionID int64, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string, sessionID int64) (*domain.LoginResponse, error)
	VerifyEmailToken(ctx context.Context, token string) (*domain.User, error)
	ResendActivation(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, principal int64, oldPassword, newPassword, confirm string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword, confirm string) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	UpdateProfile(ctx context.Context, principal int64, req *domain.UpdateProfileRequest) (*domain.User, error)
	ActivityHistory(ctx context.Context, principal int64, limit, offset int) ([]domain.ActivityLogEntry, error)
}

type authService struct {
	users        repository.UserRepository
	sessions     repository.SessionRepository
	loyalty      repository.LoyaltyRepository
	activity     repository.ActivityRepository
	verification *verification.Engine
	revoker      TokenRevoker
	eventBus     events.Publisher
	config       *config.Config
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	loyalty repository.LoyaltyRepository,
	activity repository.ActivityRepository,
	engine *verification.Engine,
	revoker TokenRevoker,
	eventBus events.Publisher,
	cfg *config.Config,
) AuthService {
	return &authService{
		users:        users,
		sessions:     sessions,
		loyalty:      loyalty,
		activity:     activity,
		verification: engine,
		revoker:      revoker,
		eventBus:     eventBus,
		config:       cfg,
	}
}

// Register creates a full account, or completes an OTP placeholder when the
// request carries a user_id. The user row and its activation secret commit
// together; the activation email goes out only after that commit.
func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	minted, err := s.verification.Mint(0, domain.VerificationAccountActivation, s.config.Auth.ActivationTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to mint activation secret: %w", err)
	}

	user := &domain.User{
		ID:           req.UserID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		CRN:          req.CRN,
		Phone:        req.Phone,
		Role:         domain.RoleStudent,
	}

	if req.UserID != 0 {
		user, err = s.users.CompleteWithActivation(ctx, user, minted.Record)
	} else {
		user, err = s.users.CreateWithActivation(ctx, user, minted.Record)
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.UserRegistered, events.UserRegisteredEvent{
		UserID:    user.ID,
		Email:     user.Email,
		CRN:       user.CRN,
		CreatedAt: user.CreatedAt,
	})
	s.publish(ctx, events.NotifySend, events.NotificationEvent{
		Kind:      events.NotifyKindActivation,
		Recipient: user.Email,
		Name:      user.FullName(),
		Data: map[string]string{
			"verify_url": s.activationURL(minted.Token),
			"code":       minted.Code,
		},
	})
	s.logActivity(ctx, user.ID, domain.ActivityProfileUpdate, "Account registered", nil, "")

	logger.InfoContext(ctx, "User registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// SendOTP starts or refreshes the pre-registration email check. Unknown
// addresses get a placeholder account so the code has an owner; verified
// accounts are refused.
func (s *authService) SendOTP(ctx context.Context, email string) (*domain.OTPStatus, error) {
	email = domain.NormalizeEmail(email)
	if !domain.IsValidEmail(email) {
		return nil, domain.ErrInvalidEmail
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user != nil && user.IsVerified {
		return nil, domain.ErrAlreadyVerified
	}
	if user == nil {
		user, err = s.createPlaceholder(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	issued, err := s.verification.Resend(ctx, user.ID, domain.VerificationOTP, s.config.Auth.ActivationTTL)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NotifySend, events.NotificationEvent{
		Kind:      events.NotifyKindOTP,
		Recipient: email,
		Name:      user.FullName(),
		Data:      map[string]string{"code": issued.Code},
	})

	return &domain.OTPStatus{
		Email:                 email,
		ExpiresAt:             issued.Record.ExpiresAt,
		AttemptsRemaining:     issued.Record.AttemptsRemaining(),
		ResendCooldownSeconds: int(issued.Record.ResendCooldown().Seconds()),
	}, nil
}

func (s *authService) createPlaceholder(ctx context.Context, email string) (*domain.User, error) {
	// Placeholders cannot log in: the password is random and thrown away.
	// Register later replaces it along with the rest of the profile.
	random, err := secrets.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate placeholder password: %w", err)
	}
	passwordHash, err := argon2id.CreateHash(random, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder password: %w", err)
	}

	suffix, err := secrets.GenerateOTP(4)
	if err != nil {
		return nil, fmt.Errorf("failed to generate username suffix: %w", err)
	}
	local, _, _ := strings.Cut(email, "@")
	username := fmt.Sprintf("%s_%s", local, suffix)

	user, err := s.users.CreatePlaceholder(ctx, email, username, passwordHash)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Placeholder user created for OTP flow", "user_id", user.ID, "email", email)
	return user, nil
}

// VerifyOTP consumes the code; on success the account becomes verified and
// active and the welcome bonus is credited.
func (s *authService) VerifyOTP(ctx context.Context, email, code string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrVerificationNotFound
	}
	if user.IsVerified {
		return nil, domain.ErrAlreadyVerified
	}

	if rec, err := s.verification.AttemptCode(ctx, user.ID, domain.VerificationOTP, code); err != nil {
		if errors.Is(err, domain.ErrInvalidCode) && rec != nil {
			return nil, &domain.InvalidCodeError{AttemptsRemaining: rec.AttemptsRemaining()}
		}
		return nil, err
	}

	return s.finishVerification(ctx, user)
}

// VerifyEmailToken is the link-based activation path.
func (s *authService) VerifyEmailToken(ctx context.Context, token string) (*domain.User, error) {
	rec, err := s.verification.ConsumeToken(ctx, domain.VerificationAccountActivation, token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	if user.IsVerified {
		return nil, domain.ErrAlreadyVerified
	}

	return s.finishVerification(ctx, user)
}

func (s *authService) finishVerification(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := s.users.MarkVerifiedAndActive(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to mark user verified: %w", err)
	}
	user.IsVerified = true
	user.IsActive = true

	if _, err := s.loyalty.Append(ctx, &domain.LoyaltyTransaction{
		UserID:      user.ID,
		Points:      domain.WelcomeBonusPoints,
		Type:        domain.LoyaltyWelcomeBonus,
		Description: "Welcome bonus on account verification",
	}); err != nil {
		logger.ErrorContext(ctx, "Failed to credit welcome bonus", "error", err, "user_id", user.ID)
	}

	s.publish(ctx, events.UserVerified, events.UserVerifiedEvent{
		UserID:     user.ID,
		Email:      user.Email,
		VerifiedAt: time.Now(),
	})

	logger.InfoContext(ctx, "User verified", "user_id", user.ID)
	return user, nil
}

// ResendActivation regenerates the activation secret under the resend policy.
// Unknown addresses succeed silently so the endpoint cannot be used to probe
// for accounts.
func (s *authService) ResendActivation(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		logger.InfoContext(ctx, "Activation resend for unknown email", "email", email)
		return nil
	}
	if user.IsVerified {
		return domain.ErrAlreadyVerified
	}

	issued, err := s.verification.Resend(ctx, user.ID, domain.VerificationAccountActivation, s.config.Auth.ActivationTTL)
	if err != nil {
		return err
	}

	s.publish(ctx, events.NotifySend, events.NotificationEvent{
		Kind:      events.NotifyKindActivation,
		Recipient: user.Email,
		Name:      user.FullName(),
		Data: map[string]string{
			"verify_url": s.activationURL(issued.Token),
			"code":       issued.Code,
		},
	})
	return nil
}

// Login authenticates with one generic failure for bad email or bad password.
// A valid password against an inactive account re-issues the activation
// secret and reports the inactive state instead.
func (s *authService) Login(ctx context.Context, req *domain.LoginRequest, lc *LoginContext) (*domain.LoginResponse, error) {
	req.Normalize()
	if lc == nil {
		lc = &LoginContext{}
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrInvalidCredentials
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		if rerr := s.reissueActivation(ctx, user); rerr != nil {
			logger.ErrorContext(ctx, "Failed to re-issue activation on inactive login", "error", rerr, "user_id", user.ID)
		}
		return nil, domain.ErrAccountInactive
	}

	if err := s.users.RecordLogin(ctx, user.ID, lc.IP); err != nil {
		logger.ErrorContext(ctx, "Failed to record login", "error", err, "user_id", user.ID)
	}

	session, err := s.sessions.Create(ctx, uuid.NewString(), &domain.StartSessionInput{
		UserID:     user.ID,
		IPAddress:  lc.IP,
		UserAgent:  lc.UserAgent,
		DeviceInfo: lc.DeviceInfo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	accessToken, err := auth.NewAccessToken(user.ID, user.Email, user.Role, user.IsApproved, user.StudentID,
		s.config.Auth.JWTSecret, s.config.Auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refreshToken, err := auth.NewRefreshToken(user.ID, user.Email, s.config.Auth.JWTSecret, s.config.Auth.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	var ip string
	if lc.IP != nil {
		ip = lc.IP.String()
	}
	s.publish(ctx, events.UserLoggedIn, events.UserLoggedInEvent{
		UserID:    user.ID,
		SessionID: session.ID,
		IP:        ip,
		LoggedAt:  time.Now(),
	})
	s.logActivity(ctx, user.ID, domain.ActivityLogin, "User logged in", lc.IP, lc.UserAgent)

	logger.InfoContext(ctx, "User logged in", "user_id", user.ID, "session_id", session.ID)

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.Auth.AccessTokenTTL.Seconds()),
		SessionID:    session.ID,
		User:         user.ToUserInfo(),
	}, nil
}

func (s *authService) reissueActivation(ctx context.Context, user *domain.User) error {
	issued, err := s.verification.Issue(ctx, user.ID, domain.VerificationAccountActivation, s.config.Auth.ActivationTTL)
	if err != nil {
		return err
	}
	s.publish(ctx, events.NotifySend, events.NotificationEvent{
		Kind:      events.NotifyKindActivation,
		Recipient: user.Email,
		Name:      user.FullName(),
		Data: map[string]string{
			"verify_url": s.activationURL(issued.Token),
			"code":       issued.Code,
		},
	})
	return nil
}

// Logout ends the caller's session and blacklists the refresh token. Both
// halves are forgiving: an already-ended or foreign session is a no-op, and a
// blacklist failure only shortens nothing.
func (s *authService) Logout(ctx context.Context, principal, sessionID int64, refreshToken string) error {
	ended, err := s.sessions.End(ctx, principal, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if !ended {
		logger.DebugContext(ctx, "Logout matched no live session", "user_id", principal, "session_id", sessionID)
	}

	if refreshToken != "" {
		if err := s.revoker.Revoke(ctx, refreshToken); err != nil {
			logger.ErrorContext(ctx, "Failed to blacklist refresh token", "error", err, "user_id", principal)
		}
	}

	s.publish(ctx, events.UserLoggedOut, map[string]any{"user_id": principal, "session_id": sessionID})
	s.logActivity(ctx, principal, domain.ActivityLogout, "User logged out", nil, "")
	return nil
}

// Refresh trades an unrevoked refresh token for a fresh access token. The
// refresh token itself is returned unchanged. A session id, when supplied,
// marks that session as still active.
func (s *authService) Refresh(ctx context.Context, refreshToken string, sessionID int64) (*domain.LoginResponse, error) {
	claims, err := auth.Parse(refreshToken, s.config.Auth.JWTSecret)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh {
		return nil, domain.ErrInvalidToken
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if revoked {
		return nil, domain.ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, domain.ErrInvalidToken
	}

	accessToken, err := auth.NewAccessToken(user.ID, user.Email, user.Role, user.IsApproved, user.StudentID,
		s.config.Auth.JWTSecret, s.config.Auth.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	if sessionID > 0 {
		if err := s.sessions.Touch(ctx, sessionID); err != nil {
			logger.ErrorContext(ctx, "Failed to touch session", "error", err, "session_id", sessionID)
		}
	}

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.Auth.AccessTokenTTL.Seconds()),
		User:         user.ToUserInfo(),
	}, nil
}

func (s *authService) ChangePassword(ctx context.Context, principal int64, oldPassword, newPassword, confirm string) error {
	if newPassword != confirm {
		return domain.ErrPasswordMismatch
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, principal)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return domain.ErrUserNotFound
	}

	valid, err := argon2id.ComparePasswordAndHash(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return domain.ErrWrongPassword
	}

	passwordHash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logActivity(ctx, user.ID, domain.ActivityPasswordChange, "Password changed", nil, "")
	return nil
}

// RequestPasswordReset always reports success. The reset record and email
// only exist for live accounts; misses are logged, never surfaced.
func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !user.IsActive {
		logger.InfoContext(ctx, "Password reset for unknown or inactive email", "email", email)
		return nil
	}

	issued, err := s.verification.Issue(ctx, user.ID, domain.VerificationPasswordReset, s.config.Auth.PasswordResetTTL)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}

	s.publish(ctx, events.NotifySend, events.NotificationEvent{
		Kind:      events.NotifyKindPasswordReset,
		Recipient: user.Email,
		Name:      user.FullName(),
		Data:      map[string]string{"reset_url": s.resetURL(issued.Token)},
	})
	return nil
}

// ConfirmPasswordReset consumes the token exactly once. A dead token of any
// kind reads the same to the caller.
func (s *authService) ConfirmPasswordReset(ctx context.Context, token, newPassword, confirm string) error {
	if newPassword != confirm {
		return domain.ErrPasswordMismatch
	}
	if err := domain.ValidatePassword(newPassword); err != nil {
		return err
	}

	rec, err := s.verification.ConsumeToken(ctx, domain.VerificationPasswordReset, token)
	if err != nil {
		if errors.Is(err, domain.ErrCodeExpired) || errors.Is(err, domain.ErrTooManyAttempts) || errors.Is(err, domain.ErrAlreadyVerified) {
			return domain.ErrInvalidToken
		}
		return err
	}

	passwordHash, err := argon2id.CreateHash(newPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, rec.UserID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logActivity(ctx, rec.UserID, domain.ActivityPasswordReset, "Password reset via emailed token", nil, "")
	logger.InfoContext(ctx, "Password reset completed", "user_id", rec.UserID)
	return nil
}

func (s *authService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile changes the mutable profile fields. Blank fields keep their
// current values; email, CRN and role are not editable here.
func (s *authService) UpdateProfile(ctx context.Context, principal int64, req *domain.UpdateProfileRequest) (*domain.User, error) {
	req.Normalize()

	user, err := s.GetUser(ctx, principal)
	if err != nil {
		return nil, err
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}

	if err := s.users.UpdateProfile(ctx, user.ID, user.FirstName, user.LastName, user.Phone); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logActivity(ctx, user.ID, domain.ActivityProfileUpdate, "Profile updated", nil, "")
	return user, nil
}

func (s *authService) ActivityHistory(ctx context.Context, principal int64, limit, offset int) ([]domain.ActivityLogEntry, error) {
	return s.activity.ListByUser(ctx, principal, limit, offset)
}

func (s *authService) activationURL(token string) string {
	return fmt.Sprintf("%s/activate?token=%s", s.config.Frontend.BaseURL, token)
}

func (s *authService) resetURL(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", s.config.Frontend.BaseURL, token)
}

func (s *authService) publish(ctx context.Context, subject string, payload any) {
	if err := s.eventBus.Publish(ctx, subject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "error", err, "subject", subject)
	}
}

func (s *authService) logActivity(ctx context.Context, userID int64, activityType, description string, ip net.IP, userAgent string) {
	err := s.activity.Append(ctx, &domain.ActivityLogEntry{
		UserID:      userID,
		Type:        activityType,
		Description: description,
		IPAddress:   ip,
		UserAgent:   userAgent,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to write activity log", "error", err, "user_id", userID, "activity", activityType)
	}
}
