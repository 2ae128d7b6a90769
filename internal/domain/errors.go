package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors checked by tag across services and the HTTP layer.
var (
	// Credentials and account state
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account not active")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrUsernameExists     = errors.New("username already taken")
	ErrAlreadyVerified    = errors.New("account already verified")

	// Verification lifecycle
	ErrVerificationNotFound = errors.New("no verification found")
	ErrInvalidCode          = errors.New("invalid verification code")
	ErrCodeExpired          = errors.New("verification expired")
	ErrTooManyAttempts      = errors.New("verification attempts exceeded")
	ErrResendRateLimited    = errors.New("resend rate limited")
	ErrInvalidToken         = errors.New("invalid or expired token")

	// Password lifecycle
	ErrWrongPassword    = errors.New("current password is incorrect")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordPolicy   = errors.New("password does not meet policy")

	// Input validation
	ErrInvalidCRN   = errors.New("invalid CRN format, expected ICAP-CA-YYYY-####")
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidRole  = errors.New("invalid role")

	// Sessions, grants, loyalty
	ErrSessionNotFound    = errors.New("session not found")
	ErrGrantNotFound      = errors.New("library access grant not found")
	ErrGrantExists        = errors.New("library access grant already exists")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	ErrForbidden          = errors.New("operation not permitted")
)

// InvalidCodeError is ErrInvalidCode plus the attempts left before lockout.
// errors.Is(err, ErrInvalidCode) still matches.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("%v, %d attempts remaining", ErrInvalidCode, e.AttemptsRemaining)
}

func (e *InvalidCodeError) Unwrap() error { return ErrInvalidCode }
