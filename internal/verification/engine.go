// Package verification drives the lifecycle of time-boxed secrets: issue,
// resend under an escalating cooldown, bounded attempts, and a single
// transition into the terminal verified state.
package verification

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cassaevelyn/smartlib/internal/domain"
	"github.com/cassaevelyn/smartlib/internal/repository"
	"github.com/cassaevelyn/smartlib/internal/secrets"
)

// Issued carries the raw secrets exactly once, at mint time. Only the code
// hash is ever persisted.
type Issued struct {
	Record *domain.VerificationRecord
	Token  string
	Code   string
}

type Options struct {
	OTPLength   int
	MaxAttempts int
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	repo        repository.VerificationRepository
	otpLength   int
	maxAttempts int
	now         func() time.Time
}

func NewEngine(repo repository.VerificationRepository, opts Options) *Engine {
	e := &Engine{
		repo:        repo,
		otpLength:   opts.OTPLength,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
	}
	if e.otpLength <= 0 {
		e.otpLength = 6
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = domain.DefaultMaxAttempts
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Mint produces an unsaved record with fresh secrets. Registration uses this
// to write the record inside its own transaction.
func (e *Engine) Mint(userID int64, vtype string, ttl time.Duration) (*Issued, error) {
	token, err := secrets.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	code, err := secrets.GenerateOTP(e.otpLength)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash otp: %w", err)
	}

	rec := &domain.VerificationRecord{
		UserID:      userID,
		Type:        vtype,
		Token:       token,
		CodeHash:    string(codeHash),
		ExpiresAt:   e.now().Add(ttl),
		MaxAttempts: e.maxAttempts,
	}
	return &Issued{Record: rec, Token: token, Code: code}, nil
}

// Issue creates or supersedes the live record for (user, type). Any previous
// unverified secret stops working immediately.
func (e *Engine) Issue(ctx context.Context, userID int64, vtype string, ttl time.Duration) (*Issued, error) {
	minted, err := e.Mint(userID, vtype, ttl)
	if err != nil {
		return nil, err
	}

	saved, err := e.repo.UpsertLive(ctx, minted.Record)
	if err != nil {
		return nil, fmt.Errorf("persist verification: %w", err)
	}
	minted.Record = saved
	return minted, nil
}

// Resend regenerates the secrets for an existing live record, subject to the
// cooldown policy. With no live record it falls back to a fresh Issue.
func (e *Engine) Resend(ctx context.Context, userID int64, vtype string, ttl time.Duration) (*Issued, error) {
	rec, err := e.repo.GetLive(ctx, userID, vtype)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return e.Issue(ctx, userID, vtype, ttl)
	}

	if !rec.CanResend(e.now()) {
		return nil, domain.ErrResendRateLimited
	}

	minted, err := e.Mint(userID, vtype, ttl)
	if err != nil {
		return nil, err
	}

	updated, err := e.repo.MarkResent(ctx, rec.ID, minted.Token, minted.Record.CodeHash, minted.Record.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("persist resend: %w", err)
	}
	minted.Record = updated
	return minted, nil
}

// AttemptCode checks a supplied OTP against the live record for (user, type).
// Expiry and lockout are checked before the code itself, so a correct code
// never verifies a dead record.
func (e *Engine) AttemptCode(ctx context.Context, userID int64, vtype, code string) (*domain.VerificationRecord, error) {
	rec, err := e.repo.GetLive(ctx, userID, vtype)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrVerificationNotFound
	}

	if rec.IsExpired(e.now()) {
		return nil, domain.ErrCodeExpired
	}
	if !rec.CanAttempt() {
		return nil, domain.ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(code)) != nil {
		attempts, err := e.repo.RegisterFailedAttempt(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.FailedAttempts = attempts
		return rec, domain.ErrInvalidCode
	}

	ok, err := e.repo.MarkVerified(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAlreadyVerified
	}

	now := e.now()
	rec.IsVerified = true
	rec.VerifiedAt = &now
	return rec, nil
}

// ConsumeToken verifies a link or reset token. Lookup already filters
// verified records, so a consumed token behaves like a missing one.
func (e *Engine) ConsumeToken(ctx context.Context, vtype, token string) (*domain.VerificationRecord, error) {
	rec, err := e.repo.GetLiveByToken(ctx, vtype, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrInvalidToken
	}

	if rec.IsExpired(e.now()) {
		return nil, domain.ErrCodeExpired
	}
	if !rec.CanAttempt() {
		return nil, domain.ErrTooManyAttempts
	}

	ok, err := e.repo.MarkVerified(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAlreadyVerified
	}

	now := e.now()
	rec.IsVerified = true
	rec.VerifiedAt = &now
	return rec, nil
}
