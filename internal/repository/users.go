package repository

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cassaevelyn/smartlib/internal/domain"
)

type UserRepository interface {
	// CreateWithActivation inserts the user and its ACCOUNT_ACTIVATION record
	// in one transaction; nothing persists if either insert fails.
	CreateWithActivation(ctx context.Context, u *domain.User, rec *domain.VerificationRecord) (*domain.User, error)
	// CompleteWithActivation finishes an OTP placeholder user by id, same
	// all-or-nothing shape. Returns domain.ErrUserNotFound for unknown ids.
	CompleteWithActivation(ctx context.Context, u *domain.User, rec *domain.VerificationRecord) (*domain.User, error)
	// CreatePlaceholder inserts an inactive, unverified stub created during
	// OTP pre-registration.
	CreatePlaceholder(ctx context.Context, email, username, passwordHash string) (*domain.User, error)

	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)

	RecordLogin(ctx context.Context, userID int64, ip net.IP) error
	MarkVerifiedAndActive(ctx context.Context, userID int64) error
	UpdateProfile(ctx context.Context, userID int64, firstName, lastName, phone string) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	SetApproval(ctx context.Context, userID int64, approved bool, approvedBy *int64) error
	Deactivate(ctx context.Context, userID int64) error
}

type UserRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *UserRepo { return &UserRepo{pool: pool} }

const userColumns = `id, username, email, password_hash, first_name, last_name, crn, student_id,
	phone, role, is_active, is_verified, is_approved, approval_date, approved_by,
	login_count, last_login_ip, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.CRN, &u.StudentID, &u.Phone, &u.Role, &u.IsActive, &u.IsVerified,
		&u.IsApproved, &u.ApprovalDate, &u.ApprovedBy, &u.LoginCount,
		&u.LastLoginIP, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) CreateWithActivation(ctx context.Context, u *domain.User, rec *domain.VerificationRecord) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin registration tx: %w", err)
	}
	defer rollback(ctx, tx)

	created, err := insertUser(ctx, tx, u)
	if err != nil {
		return nil, err
	}

	rec.UserID = created.ID
	if _, err := upsertLiveVerification(ctx, tx, rec); err != nil {
		return nil, fmt.Errorf("create activation record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit registration: %w", err)
	}
	return created, nil
}

func (r *UserRepo) CompleteWithActivation(ctx context.Context, u *domain.User, rec *domain.VerificationRecord) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin registration tx: %w", err)
	}
	defer rollback(ctx, tx)

	const q = `
UPDATE users
SET username=$2, email=$3, password_hash=$4, first_name=$5, last_name=$6,
    crn=$7, phone=$8, updated_at=now()
WHERE id=$1
RETURNING ` + userColumns

	updated, err := scanUser(tx.QueryRow(ctx, q,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.CRN, u.Phone,
	))
	if err == pgx.ErrNoRows {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return nil, domain.ErrEmailExists
		}
		if isUniqueViolation(err, "users_username_key") {
			return nil, domain.ErrUsernameExists
		}
		return nil, err
	}

	rec.UserID = updated.ID
	if _, err := upsertLiveVerification(ctx, tx, rec); err != nil {
		return nil, fmt.Errorf("create activation record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit registration: %w", err)
	}
	return updated, nil
}

func insertUser(ctx context.Context, db querier, u *domain.User) (*domain.User, error) {
	const q = `
INSERT INTO users (username, email, password_hash, first_name, last_name, crn, phone, role, is_active, is_verified)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING ` + userColumns

	role := u.Role
	if role == "" {
		role = domain.RoleStudent
	}

	created, err := scanUser(db.QueryRow(ctx, q,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.CRN, u.Phone, role, u.IsActive, u.IsVerified,
	))
	if err != nil {
		if isUniqueViolation(err, "users_email_key") {
			return nil, domain.ErrEmailExists
		}
		if isUniqueViolation(err, "users_username_key") {
			return nil, domain.ErrUsernameExists
		}
		return nil, err
	}
	return created, nil
}

func (r *UserRepo) CreatePlaceholder(ctx context.Context, email, username, passwordHash string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return insertUser(ctx, r.pool, &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         domain.RoleStudent,
	})
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, email))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (r *UserRepo) RecordLogin(ctx context.Context, userID int64, ip net.IP) error {
	const q = `
UPDATE users
SET login_count = login_count + 1, last_login_ip = $2, updated_at = now()
WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID, ip)
	return err
}

func (r *UserRepo) MarkVerifiedAndActive(ctx context.Context, userID int64) error {
	const q = `
UPDATE users
SET is_verified = true, is_active = true, updated_at = now()
WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID)
	return err
}

func (r *UserRepo) UpdateProfile(ctx context.Context, userID int64, firstName, lastName, phone string) error {
	const q = `
UPDATE users
SET first_name = $2, last_name = $3, phone = $4, updated_at = now()
WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID, firstName, lastName, phone)
	return err
}

func (r *UserRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID, passwordHash)
	return err
}

func (r *UserRepo) SetApproval(ctx context.Context, userID int64, approved bool, approvedBy *int64) error {
	const q = `
UPDATE users
SET is_approved = $2,
    approval_date = CASE WHEN $2 THEN now() ELSE NULL END,
    approved_by = $3,
    updated_at = now()
WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID, approved, approvedBy)
	return err
}

func (r *UserRepo) Deactivate(ctx context.Context, userID int64) error {
	const q = `UPDATE users SET is_active = false, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, userID)
	return err
}
