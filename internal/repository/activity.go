package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassaevelyn/smartlib/internal/domain"
)

type ActivityRepository interface {
	// Append writes one audit entry; the log is append-only.
	Append(ctx context.Context, e *domain.ActivityLogEntry) error
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.ActivityLogEntry, error)
}

type ActivityRepo struct{ pool *pgxpool.Pool }

func NewActivityRepo(pool *pgxpool.Pool) *ActivityRepo { return &ActivityRepo{pool: pool} }

func (r *ActivityRepo) Append(ctx context.Context, e *domain.ActivityLogEntry) error {
	const q = `
INSERT INTO activity_logs (user_id, activity_type, description, ip_address, user_agent, metadata)
VALUES ($1, $2, $3, $4, $5, $6)`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, e.UserID, e.Type, e.Description, e.IPAddress, e.UserAgent, e.Metadata)
	return err
}

func (r *ActivityRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.ActivityLogEntry, error) {
	const q = `
SELECT id, user_id, activity_type, description, ip_address, user_agent, metadata, created_at
FROM activity_logs
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ActivityLogEntry
	for rows.Next() {
		var e domain.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Description, &e.IPAddress, &e.UserAgent, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
