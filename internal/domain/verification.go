package domain

import "time"

// Verification types
const (
	VerificationAccountActivation = "ACCOUNT_ACTIVATION"
	VerificationOTP               = "OTP"
	VerificationPasswordReset     = "PASSWORD_RESET"
)

const (
	DefaultMaxAttempts = 5

	// Resend policy: escalating cooldown with a hard hourly cap.
	MaxResendsPerHour = 5
	MaxCooldown       = 60 * time.Minute
	MinCooldown       = 1 * time.Minute
)

// VerificationRecord is the live (or terminal) secret for one (user, type)
// pair. At most one unverified record exists per pair; reissues supersede it
// in place. Failed attempts and resends are tracked separately: failing a
// code never throttles resends, and resending never counts toward lockout.
type VerificationRecord struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Type           string     `json:"verification_type"`
	Token          string     `json:"-"`
	CodeHash       string     `json:"-"`
	IsVerified     bool       `json:"is_verified"`
	ExpiresAt      time.Time  `json:"expires_at"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
	FailedAttempts int        `json:"failed_attempts"`
	MaxAttempts    int        `json:"max_attempts"`
	ResendCount    int        `json:"resend_count"`
	LastResendAt   *time.Time `json:"last_resend_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (v *VerificationRecord) IsExpired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

func (v *VerificationRecord) CanAttempt() bool {
	return !v.IsVerified && v.FailedAttempts < v.MaxAttempts
}

// ResendCooldown returns the wait required between resends. The window
// escalates with each resend: min(resend_count * 2, 60) minutes, never less
// than one minute.
func (v *VerificationRecord) ResendCooldown() time.Duration {
	cooldown := time.Duration(v.ResendCount) * 2 * time.Minute
	if cooldown < MinCooldown {
		cooldown = MinCooldown
	}
	if cooldown > MaxCooldown {
		cooldown = MaxCooldown
	}
	return cooldown
}

// CanResend applies the per-resend cooldown plus the hard hourly cap.
func (v *VerificationRecord) CanResend(now time.Time) bool {
	if v.IsVerified {
		return false
	}
	if v.LastResendAt == nil {
		return true
	}
	if v.ResendCount >= MaxResendsPerHour && now.Sub(*v.LastResendAt) < time.Hour {
		return false
	}
	return now.Sub(*v.LastResendAt) >= v.ResendCooldown()
}

// OTPStatus is returned from an OTP send so clients can show the expiry and
// the wait before another resend is allowed.
type OTPStatus struct {
	Email                 string    `json:"email"`
	ExpiresAt             time.Time `json:"expires_at"`
	AttemptsRemaining     int       `json:"attempts_remaining"`
	ResendCooldownSeconds int       `json:"resend_cooldown_seconds"`
}

// AttemptsRemaining is surfaced with attempt failures so callers can warn
// users before lockout.
func (v *VerificationRecord) AttemptsRemaining() int {
	remaining := v.MaxAttempts - v.FailedAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}
