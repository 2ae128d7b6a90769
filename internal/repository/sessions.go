package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassaevelyn/smartlib/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, sessionKey string, in *domain.StartSessionInput) (*domain.Session, error)
	// End deactivates a session owned by userID. Returns false when nothing
	// matched (unknown id, someone else's session, or already ended).
	End(ctx context.Context, userID, sessionID int64) (bool, error)
	Touch(ctx context.Context, sessionID int64) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Session, error)
}

type SessionRepo struct{ pool *pgxpool.Pool }

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo { return &SessionRepo{pool: pool} }

const sessionColumns = `id, user_id, session_key, ip_address, user_agent, device_info,
	is_active, created_at, last_activity, logout_time`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.SessionKey, &s.IPAddress, &s.UserAgent,
		&s.DeviceInfo, &s.IsActive, &s.CreatedAt, &s.LastActivity, &s.LogoutTime,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Create(ctx context.Context, sessionKey string, in *domain.StartSessionInput) (*domain.Session, error) {
	const q = `
INSERT INTO user_sessions (user_id, session_key, ip_address, user_agent, device_info)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + sessionColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanSession(r.pool.QueryRow(ctx, q,
		in.UserID, sessionKey, in.IPAddress, in.UserAgent, in.DeviceInfo,
	))
}

func (r *SessionRepo) End(ctx context.Context, userID, sessionID int64) (bool, error) {
	const q = `
UPDATE user_sessions
SET is_active = false, logout_time = now()
WHERE id = $1 AND user_id = $2 AND is_active = true`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := r.pool.Exec(ctx, q, sessionID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepo) Touch(ctx context.Context, sessionID int64) error {
	const q = `UPDATE user_sessions SET last_activity = now() WHERE id = $1 AND is_active = true`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, sessionID)
	return err
}

func (r *SessionRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Session, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM user_sessions
WHERE user_id = $1
ORDER BY created_at DESC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
