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

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a refresh token hash.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) (err error) {
	query := `
		INSERT INTO refresh_tokens (id, principal_id, principal_kind, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.Create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		t.ID,
		t.PrincipalID,
		string(t.PrincipalKind),
		t.TokenHash,
		t.ExpiresAt,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetByHash retrieves a refresh token record by its hash.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (_ *domain.RefreshToken, err error) {
	query := `
		SELECT id, principal_id, principal_kind, token_hash, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.GetByHash", query)
	defer func() { end(err) }()

	var (
		t    domain.RefreshToken
		kind string
	)
	err = r.db.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID,
		&t.PrincipalID,
		&kind,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.CreatedAt,
		&t.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	t.PrincipalKind = domain.Kind(kind)

	return &t, nil
}

// Revoke revokes a specific unrevoked refresh token.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) (err error) {
	query := `UPDATE refresh_tokens SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.Revoke", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, time.Now().UTC(), tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RevokeAllForPrincipal revokes every live refresh token of a principal.
func (r *RefreshTokenRepository) RevokeAllForPrincipal(ctx context.Context, principalID string, kind domain.Kind) (err error) {
	query := `
		UPDATE refresh_tokens SET revoked_at = $1
		WHERE principal_id = $2 AND principal_kind = $3 AND revoked_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.RevokeAllForPrincipal", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, time.Now().UTC(), principalID, string(kind)); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
