package repository

import (
	"context"
	"time"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/domain"
)

// UserRepository defines persistence for customer accounts.
type UserRepository interface {
	// Create inserts a new user. A duplicate email yields an AlreadyExists error.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by id.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// AdminRepository defines persistence for back-office accounts.
type AdminRepository interface {
	Create(ctx context.Context, admin *domain.AdminUser) error
	GetByID(ctx context.Context, id string) (*domain.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (*domain.AdminUser, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// UpdateLastLogin records a successful admin login.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// RefreshTokenRepository stores hashed refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// Revoke marks a single unrevoked token as revoked. It returns a NotFound
	// error when no unrevoked token with that hash exists, which lets callers
	// detect a token that was already rotated.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeAllForPrincipal revokes every live token of a principal.
	RevokeAllForPrincipal(ctx context.Context, principalID string, kind domain.Kind) error
}

// TokenDenylist holds the ids of access tokens revoked before their expiry.
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
