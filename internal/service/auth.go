package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/auth"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/domain"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/repository"
	apperrors "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/errors"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/validator"
)

// DefaultBcryptCost is the bcrypt cost used when none is configured.
const DefaultBcryptCost = 12

const passwordPolicy = "password must be at least 8 characters and contain upper-case, lower-case and a digit"

// EventPublisher publishes identity events. Failures never fail the caller.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishUserLoggedIn(ctx context.Context, user *domain.User) error
	PublishAdminLoggedIn(ctx context.Context, admin *domain.AdminUser) error
	PublishPasswordChanged(ctx context.Context, principal domain.Principal) error
}

// AuthService implements registration, login and token lifecycle for
// customers and admins.
type AuthService struct {
	users         repository.UserRepository
	admins        repository.AdminRepository
	refreshTokens repository.RefreshTokenRepository
	denylist      repository.TokenDenylist
	jwtManager    *auth.JWTManager
	events        EventPublisher
	bcryptCost    int
	logger        *slog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService creates an AuthService. denylist and events may be nil.
func NewAuthService(
	users repository.UserRepository,
	admins repository.AdminRepository,
	refreshTokens repository.RefreshTokenRepository,
	denylist repository.TokenDenylist,
	jwtManager *auth.JWTManager,
	events EventPublisher,
	bcryptCost int,
	logger *slog.Logger,
) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = DefaultBcryptCost
	}
	return &AuthService{
		users:         users,
		admins:        admins,
		refreshTokens: refreshTokens,
		denylist:      denylist,
		jwtManager:    jwtManager,
		events:        events,
		bcryptCost:    bcryptCost,
		logger:        logger,
	}
}

// RegisterInput holds the parameters for registering a customer.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// ChangePasswordInput holds the parameters for a password change.
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
}

// CreateAdminInput holds the parameters for creating an admin account.
type CreateAdminInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// --- Registration and login ---

// Register creates a customer account and signs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, *domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if name == "" {
		return nil, nil, apperrors.InvalidInput("name is required")
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         domain.RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.issueTokenPair(ctx, user.Principal())
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	s.publish(ctx, "user.registered", func(e EventPublisher) error {
		return e.PublishUserRegistered(ctx, user)
	})

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))

	return user, tokens, nil
}

// Login authenticates a customer. Unknown emails and wrong passwords yield
// the same error.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, fmt.Errorf("get user by email: %w", err)
		}
		s.burnCompare(input.Password)
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}

	if !s.passwordMatches(user.PasswordHash, input.Password) {
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}
	if !user.IsActive {
		return nil, nil, apperrors.Unauthorized("account is deactivated")
	}

	tokens, err := s.issueTokenPair(ctx, user.Principal())
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	s.publish(ctx, "user.logged_in", func(e EventPublisher) error {
		return e.PublishUserLoggedIn(ctx, user)
	})

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))

	return user, tokens, nil
}

// AdminLogin authenticates a back-office account.
func (s *AuthService) AdminLogin(ctx context.Context, input LoginInput) (*domain.AdminUser, *domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, fmt.Errorf("get admin by email: %w", err)
		}
		s.burnCompare(input.Password)
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}

	if !s.passwordMatches(admin.PasswordHash, input.Password) {
		return nil, nil, apperrors.Unauthorized("invalid email or password")
	}
	if !admin.IsActive {
		return nil, nil, apperrors.Forbidden("admin account is disabled")
	}

	tokens, err := s.issueTokenPair(ctx, admin.Principal())
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	now := time.Now().UTC()
	if err := s.admins.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to record admin login",
			slog.String("admin_id", admin.ID),
			slog.String("error", err.Error()),
		)
	} else {
		admin.LastLoginAt = &now
	}

	s.publish(ctx, "admin.logged_in", func(e EventPublisher) error {
		return e.PublishAdminLoggedIn(ctx, admin)
	})

	s.logger.InfoContext(ctx, "admin logged in", slog.String("admin_id", admin.ID))

	return admin, tokens, nil
}

// --- Token lifecycle ---

// Refresh exchanges a refresh token for a new pair and revokes the old one.
// Presenting an already revoked token revokes every token of its principal.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("refresh token is required")
	}

	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	hash := auth.HashToken(refreshToken)
	stored, err := s.refreshTokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("refresh token not found")
		}
		return nil, fmt.Errorf("get refresh token: %w", err)
	}

	if stored.PrincipalID != claims.Subject || stored.PrincipalKind != claims.Kind {
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}
	if stored.RevokedAt != nil {
		s.revokeAllOnReuse(ctx, stored)
		return nil, apperrors.Unauthorized("refresh token has been revoked")
	}
	if !stored.Usable(time.Now().UTC()) {
		return nil, apperrors.Unauthorized("refresh token has expired")
	}

	if err := s.refreshTokens.Revoke(ctx, hash); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Lost a race with a concurrent refresh of the same token.
			s.revokeAllOnReuse(ctx, stored)
			return nil, apperrors.Unauthorized("refresh token has been revoked")
		}
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	principal, err := s.loadPrincipal(ctx, stored.PrincipalID, stored.PrincipalKind)
	if err != nil {
		return nil, err
	}

	tokens, err := s.issueTokenPair(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("principal_id", principal.ID),
		slog.String("principal_kind", string(principal.Kind)),
	)

	return tokens, nil
}

func (s *AuthService) revokeAllOnReuse(ctx context.Context, stored *domain.RefreshToken) {
	s.logger.WarnContext(ctx, "refresh token reuse detected",
		slog.String("principal_id", stored.PrincipalID),
		slog.String("principal_kind", string(stored.PrincipalKind)),
	)
	if err := s.refreshTokens.RevokeAllForPrincipal(ctx, stored.PrincipalID, stored.PrincipalKind); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens after reuse",
			slog.String("principal_id", stored.PrincipalID),
			slog.String("error", err.Error()),
		)
	}
}

// loadPrincipal re-reads the account so a refreshed token carries current
// role and email, and a deactivated account cannot refresh.
func (s *AuthService) loadPrincipal(ctx context.Context, id string, kind domain.Kind) (domain.Principal, error) {
	switch kind {
	case domain.KindUser:
		user, err := s.users.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return domain.Principal{}, apperrors.Unauthorized("account no longer exists")
			}
			return domain.Principal{}, fmt.Errorf("get user for token refresh: %w", err)
		}
		if !user.IsActive {
			return domain.Principal{}, apperrors.Unauthorized("account is deactivated")
		}
		return user.Principal(), nil
	case domain.KindAdmin:
		admin, err := s.admins.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return domain.Principal{}, apperrors.Unauthorized("account no longer exists")
			}
			return domain.Principal{}, fmt.Errorf("get admin for token refresh: %w", err)
		}
		if !admin.IsActive {
			return domain.Principal{}, apperrors.Forbidden("admin account is disabled")
		}
		return admin.Principal(), nil
	default:
		return domain.Principal{}, apperrors.Unauthorized("invalid or expired refresh token")
	}
}

// Logout revokes the given refresh token, if any, and denylists the access
// token until it expires.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims, refreshToken string) error {
	if refreshToken != "" {
		rc, err := s.jwtManager.ValidateRefreshToken(refreshToken)
		if err != nil {
			return apperrors.InvalidInput("invalid refresh token")
		}
		if rc.Subject != claims.UserID || rc.Kind != claims.Kind {
			return apperrors.Forbidden("refresh token belongs to another account")
		}
		if err := s.refreshTokens.Revoke(ctx, auth.HashToken(refreshToken)); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}

	if s.denylist != nil && claims.ID != "" && claims.ExpiresAt != nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if err := s.denylist.Revoke(ctx, claims.ID, ttl); err != nil {
			s.logger.ErrorContext(ctx, "failed to denylist access token",
				slog.String("principal_id", claims.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "logged out",
		slog.String("principal_id", claims.UserID),
		slog.String("principal_kind", string(claims.Kind)),
	)
	return nil
}

// --- Profiles ---

// GetProfile returns a customer account.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	return user, nil
}

// GetAdminProfile returns an admin account.
func (s *AuthService) GetAdminProfile(ctx context.Context, adminID string) (*domain.AdminUser, error) {
	admin, err := s.admins.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("admin", adminID)
		}
		return nil, fmt.Errorf("get admin profile: %w", err)
	}
	return admin, nil
}

// ChangePassword verifies the current password, stores the new one and
// signs the principal out everywhere else by revoking its refresh tokens.
func (s *AuthService) ChangePassword(ctx context.Context, principal domain.Principal, input ChangePasswordInput) error {
	if input.CurrentPassword == "" {
		return apperrors.InvalidInput("current password is required")
	}
	if input.CurrentPassword == input.NewPassword {
		return apperrors.InvalidInput("new password must be different from current password")
	}

	var (
		currentHash string
		update      func(ctx context.Context, id, hash string) error
	)
	switch principal.Kind {
	case domain.KindUser:
		user, err := s.GetProfile(ctx, principal.ID)
		if err != nil {
			return err
		}
		currentHash, update = user.PasswordHash, s.users.UpdatePassword
	case domain.KindAdmin:
		admin, err := s.GetAdminProfile(ctx, principal.ID)
		if err != nil {
			return err
		}
		currentHash, update = admin.PasswordHash, s.admins.UpdatePassword
	default:
		return apperrors.Unauthorized("unknown principal kind")
	}

	if !s.passwordMatches(currentHash, input.CurrentPassword) {
		return apperrors.Unauthorized("current password is incorrect")
	}

	newHash, err := s.hashPassword(input.NewPassword)
	if err != nil {
		return err
	}
	if err := update(ctx, principal.ID, newHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.refreshTokens.RevokeAllForPrincipal(ctx, principal.ID, principal.Kind); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens after password change",
			slog.String("principal_id", principal.ID),
			slog.String("error", err.Error()),
		)
	}

	s.publish(ctx, "user.password_changed", func(e EventPublisher) error {
		return e.PublishPasswordChanged(ctx, principal)
	})

	s.logger.InfoContext(ctx, "password changed",
		slog.String("principal_id", principal.ID),
		slog.String("principal_kind", string(principal.Kind)),
	)
	return nil
}

// CreateAdmin creates a back-office account. Only superadmins may call it.
func (s *AuthService) CreateAdmin(ctx context.Context, actor domain.Principal, input CreateAdminInput) (*domain.AdminUser, error) {
	if !actor.IsSuperAdmin() {
		return nil, apperrors.Forbidden("only superadmins can create admin accounts")
	}
	if input.Role == "" {
		input.Role = domain.RoleAdmin
	}
	return s.createAdmin(ctx, input, actor.ID)
}

// EnsureSuperAdmin creates a superadmin with the given credentials unless an
// admin with that email already exists. The boolean reports whether an
// account was created. It backs the seed-admin command.
func (s *AuthService) EnsureSuperAdmin(ctx context.Context, input CreateAdminInput) (*domain.AdminUser, bool, error) {
	existing, err := s.admins.GetByEmail(ctx, normalizeEmail(input.Email))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, fmt.Errorf("get admin by email: %w", err)
	}

	input.Role = domain.RoleSuperAdmin
	admin, err := s.createAdmin(ctx, input, "seed")
	if err != nil {
		return nil, false, err
	}
	return admin, true, nil
}

func (s *AuthService) createAdmin(ctx context.Context, input CreateAdminInput, createdBy string) (*domain.AdminUser, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if name == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if !domain.IsValidAdminRole(input.Role) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid admin role %q", input.Role))
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	admin := &domain.AdminUser{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         input.Role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	s.logger.InfoContext(ctx, "admin created",
		slog.String("admin_id", admin.ID),
		slog.String("role", admin.Role),
		slog.String("created_by", createdBy),
	)
	return admin, nil
}

// --- Helpers ---

func (s *AuthService) issueTokenPair(ctx context.Context, p domain.Principal) (*domain.TokenPair, error) {
	access, _, err := s.jwtManager.GenerateAccessToken(p)
	if err != nil {
		return nil, err
	}

	refresh, refreshClaims, err := s.jwtManager.GenerateRefreshToken(p.ID, p.Kind)
	if err != nil {
		return nil, err
	}

	stored := &domain.RefreshToken{
		ID:            uuid.NewString(),
		PrincipalID:   p.ID,
		PrincipalKind: p.Kind,
		TokenHash:     auth.HashToken(refresh),
		ExpiresAt:     refreshClaims.ExpiresAt.Time,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.refreshTokens.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtManager.AccessExpiry().Seconds()),
	}, nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	if !validator.StrongPassword(password) {
		return "", apperrors.InvalidInput(passwordPolicy)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperrors.InvalidInput("password must be at most 72 bytes")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) passwordMatches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// burnCompare spends the same time as a real comparison so response timing
// does not reveal whether an email is registered.
func (s *AuthService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.bcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

func (s *AuthService) publish(ctx context.Context, name string, fn func(EventPublisher) error) {
	if s.events == nil {
		return
	}
	if err := fn(s.events); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("event", name),
			slog.String("error", err.Error()),
		)
	}
}
