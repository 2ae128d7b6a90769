package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassaevelyn/smartlib/internal/domain"
)

// GrantResult reports a grant mutation together with the owning user's
// approval state after the recompute ran in the same transaction.
type GrantResult struct {
	Grant           *domain.LibraryAccessGrant
	Approved        bool
	ApprovalChanged bool
}

type AccessRepository interface {
	// Apply creates a pending (inactive) grant application.
	Apply(ctx context.Context, userID, libraryID int64, notes string) (*domain.LibraryAccessGrant, error)
	// CreateActive inserts an active grant directly (admin action) and
	// recomputes the user's approval in the same transaction.
	CreateActive(ctx context.Context, userID, libraryID int64, accessType string, grantedBy int64, expiresAt *time.Time, notes string) (*GrantResult, error)
	// Activate flips an existing grant active and recomputes approval.
	Activate(ctx context.Context, grantID, grantedBy int64) (*GrantResult, error)
	// Revoke deactivates a grant and recomputes approval.
	Revoke(ctx context.Context, grantID int64) (*GrantResult, error)

	ListByUser(ctx context.Context, userID int64) ([]domain.LibraryAccessGrant, error)
}

type AccessRepo struct{ pool *pgxpool.Pool }

func NewAccessRepo(pool *pgxpool.Pool) *AccessRepo { return &AccessRepo{pool: pool} }

const grantColumns = `id, user_id, library_id, access_type, is_active, granted_by,
	granted_at, expires_at, notes, created_at, updated_at`

func scanGrant(row pgx.Row) (*domain.LibraryAccessGrant, error) {
	var g domain.LibraryAccessGrant
	err := row.Scan(
		&g.ID, &g.UserID, &g.LibraryID, &g.AccessType, &g.IsActive, &g.GrantedBy,
		&g.GrantedAt, &g.ExpiresAt, &g.Notes, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *AccessRepo) Apply(ctx context.Context, userID, libraryID int64, notes string) (*domain.LibraryAccessGrant, error) {
	const q = `
INSERT INTO library_access_grants (user_id, library_id, access_type, is_active, notes)
VALUES ($1, $2, $3, false, $4)
RETURNING ` + grantColumns
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	g, err := scanGrant(r.pool.QueryRow(ctx, q, userID, libraryID, domain.AccessStandard, notes))
	if err != nil {
		if isUniqueViolation(err, "library_access_grants_user_library_key") {
			return nil, domain.ErrGrantExists
		}
		return nil, err
	}
	return g, nil
}

func (r *AccessRepo) CreateActive(ctx context.Context, userID, libraryID int64, accessType string, grantedBy int64, expiresAt *time.Time, notes string) (*GrantResult, error) {
	const q = `
INSERT INTO library_access_grants
	(user_id, library_id, access_type, is_active, granted_by, granted_at, expires_at, notes)
VALUES ($1, $2, $3, true, $4, now(), $5, $6)
ON CONFLICT (user_id, library_id)
DO UPDATE SET
	access_type = EXCLUDED.access_type,
	is_active = true,
	granted_by = EXCLUDED.granted_by,
	granted_at = now(),
	expires_at = EXCLUDED.expires_at,
	notes = EXCLUDED.notes,
	updated_at = now()
RETURNING ` + grantColumns

	return r.mutateGrant(ctx, func(tx pgx.Tx) (*domain.LibraryAccessGrant, error) {
		return scanGrant(tx.QueryRow(ctx, q, userID, libraryID, accessType, grantedBy, expiresAt, notes))
	})
}

func (r *AccessRepo) Activate(ctx context.Context, grantID, grantedBy int64) (*GrantResult, error) {
	const q = `
UPDATE library_access_grants
SET is_active = true, granted_by = $2, granted_at = now(), updated_at = now()
WHERE id = $1
RETURNING ` + grantColumns

	return r.mutateGrant(ctx, func(tx pgx.Tx) (*domain.LibraryAccessGrant, error) {
		g, err := scanGrant(tx.QueryRow(ctx, q, grantID, grantedBy))
		if err == pgx.ErrNoRows {
			return nil, domain.ErrGrantNotFound
		}
		return g, err
	})
}

func (r *AccessRepo) Revoke(ctx context.Context, grantID int64) (*GrantResult, error) {
	const q = `
UPDATE library_access_grants
SET is_active = false, updated_at = now()
WHERE id = $1
RETURNING ` + grantColumns

	return r.mutateGrant(ctx, func(tx pgx.Tx) (*domain.LibraryAccessGrant, error) {
		g, err := scanGrant(tx.QueryRow(ctx, q, grantID))
		if err == pgx.ErrNoRows {
			return nil, domain.ErrGrantNotFound
		}
		return g, err
	})
}

// mutateGrant runs a grant mutation and the approval recompute in one
// transaction. The user row is locked first so concurrent grant changes for
// the same user serialize and cannot leave approval stale.
func (r *AccessRepo) mutateGrant(ctx context.Context, mutate func(tx pgx.Tx) (*domain.LibraryAccessGrant, error)) (*GrantResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin grant tx: %w", err)
	}
	defer rollback(ctx, tx)

	grant, err := mutate(tx)
	if err != nil {
		return nil, err
	}

	var role string
	var approved bool
	err = tx.QueryRow(ctx,
		`SELECT role, is_approved FROM users WHERE id = $1 FOR UPDATE`,
		grant.UserID,
	).Scan(&role, &approved)
	if err != nil {
		return nil, fmt.Errorf("lock user for approval recompute: %w", err)
	}

	var hasActive bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM library_access_grants WHERE user_id = $1 AND is_active = true)`,
		grant.UserID,
	).Scan(&hasActive)
	if err != nil {
		return nil, fmt.Errorf("count active grants: %w", err)
	}

	newApproved, changed := domain.ResolveApproval(role, hasActive, approved)
	if changed {
		_, err = tx.Exec(ctx, `
UPDATE users
SET is_approved = $2,
    approval_date = CASE WHEN $2 THEN now() ELSE NULL END,
    updated_at = now()
WHERE id = $1`, grant.UserID, newApproved)
		if err != nil {
			return nil, fmt.Errorf("update approval: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit grant tx: %w", err)
	}

	return &GrantResult{Grant: grant, Approved: newApproved, ApprovalChanged: changed}, nil
}

func (r *AccessRepo) ListByUser(ctx context.Context, userID int64) ([]domain.LibraryAccessGrant, error) {
	const q = `
SELECT ` + grantColumns + `
FROM library_access_grants
WHERE user_id = $1
ORDER BY created_at DESC`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []domain.LibraryAccessGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}
