package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassaevelyn/smartlib/internal/domain"
)

type VerificationRepository interface {
	// GetLive returns the single unverified record for (user, type), or nil.
	GetLive(ctx context.Context, userID int64, vtype string) (*domain.VerificationRecord, error)
	// GetLiveByToken looks up an unverified record by its opaque token.
	GetLiveByToken(ctx context.Context, vtype, token string) (*domain.VerificationRecord, error)
	// UpsertLive creates the live record for (user, type) or supersedes the
	// existing one in place, resetting both counters.
	UpsertLive(ctx context.Context, rec *domain.VerificationRecord) (*domain.VerificationRecord, error)
	// MarkResent swaps in fresh secrets, resets expiry and failed attempts,
	// and bumps the resend counter.
	MarkResent(ctx context.Context, id int64, token, codeHash string, expiresAt time.Time) (*domain.VerificationRecord, error)
	// RegisterFailedAttempt atomically increments failed_attempts and returns
	// the new count.
	RegisterFailedAttempt(ctx context.Context, id int64) (int, error)
	// MarkVerified transitions to the terminal verified state exactly once;
	// returns false if the record was already verified.
	MarkVerified(ctx context.Context, id int64) (bool, error)
}

type VerificationRepo struct{ pool *pgxpool.Pool }

func NewVerificationRepo(pool *pgxpool.Pool) *VerificationRepo {
	return &VerificationRepo{pool: pool}
}

const verificationColumns = `id, user_id, verification_type, token, code_hash, is_verified,
	expires_at, verified_at, failed_attempts, max_attempts, resend_count,
	last_resend_at, created_at, updated_at`

func scanVerification(row pgx.Row) (*domain.VerificationRecord, error) {
	var v domain.VerificationRecord
	err := row.Scan(
		&v.ID, &v.UserID, &v.Type, &v.Token, &v.CodeHash, &v.IsVerified,
		&v.ExpiresAt, &v.VerifiedAt, &v.FailedAttempts, &v.MaxAttempts,
		&v.ResendCount, &v.LastResendAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VerificationRepo) GetLive(ctx context.Context, userID int64, vtype string) (*domain.VerificationRecord, error) {
	const q = `
SELECT ` + verificationColumns + `
FROM user_verifications
WHERE user_id=$1 AND verification_type=$2 AND is_verified=false`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVerification(r.pool.QueryRow(ctx, q, userID, vtype))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *VerificationRepo) GetLiveByToken(ctx context.Context, vtype, token string) (*domain.VerificationRecord, error) {
	const q = `
SELECT ` + verificationColumns + `
FROM user_verifications
WHERE token=$1 AND verification_type=$2 AND is_verified=false`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVerification(r.pool.QueryRow(ctx, q, token, vtype))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *VerificationRepo) UpsertLive(ctx context.Context, rec *domain.VerificationRecord) (*domain.VerificationRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return upsertLiveVerification(ctx, r.pool, rec)
}

// upsertLiveVerification is shared with the users repo so registration can
// write the activation record inside its transaction.
func upsertLiveVerification(ctx context.Context, db querier, rec *domain.VerificationRecord) (*domain.VerificationRecord, error) {
	const q = `
INSERT INTO user_verifications
	(user_id, verification_type, token, code_hash, expires_at, max_attempts)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, verification_type) WHERE is_verified = false
DO UPDATE SET
	token = EXCLUDED.token,
	code_hash = EXCLUDED.code_hash,
	expires_at = EXCLUDED.expires_at,
	failed_attempts = 0,
	resend_count = 0,
	last_resend_at = NULL,
	updated_at = now()
RETURNING ` + verificationColumns

	maxAttempts := rec.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	return scanVerification(db.QueryRow(ctx, q,
		rec.UserID, rec.Type, rec.Token, rec.CodeHash, rec.ExpiresAt, maxAttempts,
	))
}

func (r *VerificationRepo) MarkResent(ctx context.Context, id int64, token, codeHash string, expiresAt time.Time) (*domain.VerificationRecord, error) {
	const q = `
UPDATE user_verifications
SET token = $2,
    code_hash = $3,
    expires_at = $4,
    failed_attempts = 0,
    resend_count = resend_count + 1,
    last_resend_at = now(),
    updated_at = now()
WHERE id = $1 AND is_verified = false
RETURNING ` + verificationColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVerification(r.pool.QueryRow(ctx, q, id, token, codeHash, expiresAt))
	if err == pgx.ErrNoRows {
		return nil, domain.ErrVerificationNotFound
	}
	return v, err
}

func (r *VerificationRepo) RegisterFailedAttempt(ctx context.Context, id int64) (int, error) {
	const q = `
UPDATE user_verifications
SET failed_attempts = failed_attempts + 1, updated_at = now()
WHERE id = $1 AND is_verified = false
RETURNING failed_attempts`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var attempts int
	err := r.pool.QueryRow(ctx, q, id).Scan(&attempts)
	if err == pgx.ErrNoRows {
		return 0, domain.ErrVerificationNotFound
	}
	return attempts, err
}

func (r *VerificationRepo) MarkVerified(ctx context.Context, id int64) (bool, error) {
	const q = `
UPDATE user_verifications
SET is_verified = true, verified_at = now(), updated_at = now()
WHERE id = $1 AND is_verified = false`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
