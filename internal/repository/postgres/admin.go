package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/domain"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/database"
	apperrors "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/errors"
)

const adminColumns = `id, email, password_hash, name, role, is_active, last_login_at, created_at, updated_at`

// AdminRepository implements repository.AdminRepository using PostgreSQL.
type AdminRepository struct {
	db database.DBTX
}

// NewAdminRepository creates a new PostgreSQL-backed admin repository.
func NewAdminRepository(db database.DBTX) *AdminRepository {
	return &AdminRepository{db: db}
}

// Create inserts a new admin account.
func (r *AdminRepository) Create(ctx context.Context, a *domain.AdminUser) (err error) {
	query := `
		INSERT INTO admin_users (` + adminColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	ctx, end := database.TraceQuery(ctx, "admin_users.Create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		a.ID,
		a.Email,
		a.PasswordHash,
		a.Name,
		a.Role,
		a.IsActive,
		a.LastLoginAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("admin", "email", a.Email)
		}
		return fmt.Errorf("insert admin: %w", err)
	}

	return nil
}

// GetByID retrieves an admin by id.
func (r *AdminRepository) GetByID(ctx context.Context, id string) (*domain.AdminUser, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE id = $1`
	return r.scanAdmin(ctx, "admin_users.GetByID", query, id)
}

// GetByEmail retrieves an admin by email.
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*domain.AdminUser, error) {
	query := `SELECT ` + adminColumns + ` FROM admin_users WHERE email = $1`
	return r.scanAdmin(ctx, "admin_users.GetByEmail", query, email)
}

// UpdatePassword replaces the password hash of an admin.
func (r *AdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (err error) {
	query := `UPDATE admin_users SET password_hash = $1, updated_at = $2 WHERE id = $3`

	ctx, end := database.TraceQuery(ctx, "admin_users.UpdatePassword", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update admin password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("admin", id)
	}
	return nil
}

// UpdateLastLogin stamps last_login_at.
func (r *AdminRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) (err error) {
	query := `UPDATE admin_users SET last_login_at = $1 WHERE id = $2`

	ctx, end := database.TraceQuery(ctx, "admin_users.UpdateLastLogin", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("update admin last login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("admin", id)
	}
	return nil
}

func (r *AdminRepository) scanAdmin(ctx context.Context, operation, query string, args ...any) (_ *domain.AdminUser, err error) {
	ctx, end := database.TraceQuery(ctx, operation, query)
	defer func() { end(err) }()

	var a domain.AdminUser
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.Name,
		&a.Role,
		&a.IsActive,
		&a.LastLoginAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan admin: %w", err)
	}

	return &a, nil
}
