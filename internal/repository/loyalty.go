package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassaevelyn/smartlib/internal/domain"
)

type LoyaltyRepository interface {
	// Append writes one immutable ledger entry. There is no update or delete.
	Append(ctx context.Context, t *domain.LoyaltyTransaction) (*domain.LoyaltyTransaction, error)
	Balance(ctx context.Context, userID int64) (int, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.LoyaltyTransaction, error)
}

type LoyaltyRepo struct{ pool *pgxpool.Pool }

func NewLoyaltyRepo(pool *pgxpool.Pool) *LoyaltyRepo { return &LoyaltyRepo{pool: pool} }

func (r *LoyaltyRepo) Append(ctx context.Context, t *domain.LoyaltyTransaction) (*domain.LoyaltyTransaction, error) {
	const q = `
INSERT INTO loyalty_transactions (user_id, points, transaction_type, description, reference_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, points, transaction_type, description, reference_id, created_at`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var out domain.LoyaltyTransaction
	err := r.pool.QueryRow(ctx, q, t.UserID, t.Points, t.Type, t.Description, t.ReferenceID).Scan(
		&out.ID, &out.UserID, &out.Points, &out.Type, &out.Description, &out.ReferenceID, &out.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *LoyaltyRepo) Balance(ctx context.Context, userID int64) (int, error) {
	const q = `SELECT COALESCE(SUM(points), 0) FROM loyalty_transactions WHERE user_id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var balance int
	err := r.pool.QueryRow(ctx, q, userID).Scan(&balance)
	return balance, err
}

func (r *LoyaltyRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.LoyaltyTransaction, error) {
	const q = `
SELECT id, user_id, points, transaction_type, description, reference_id, created_at
FROM loyalty_transactions
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

	var txs []domain.LoyaltyTransaction
	for rows.Next() {
		var t domain.LoyaltyTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Points, &t.Type, &t.Description, &t.ReferenceID, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
