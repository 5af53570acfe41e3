package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/domain"
)

// TokenType is carried in the "typ" claim so a refresh token can never be
// used as an access token and vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims are the claims of an access token.
type Claims struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   string      `json:"role"`
	Kind   domain.Kind `json:"kind"`
	Type   TokenType   `json:"typ"`
	jwt.RegisteredClaims
}

// Principal returns the identity the token was issued for.
func (c *Claims) Principal() domain.Principal {
	return domain.Principal{ID: c.UserID, Email: c.Email, Role: c.Role, Kind: c.Kind}
}

// RefreshClaims are the claims of a refresh token. The principal id is the subject.
type RefreshClaims struct {
	Kind domain.Kind `json:"kind"`
	Type TokenType   `json:"typ"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 tokens.
type JWTManager struct {
	secret        []byte
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	parser        *jwt.Parser
	now           func() time.Time
}

// NewJWTManager creates a JWTManager.
func NewJWTManager(secret, issuer string, accessExpiry, refreshExpiry time.Duration) *JWTManager {
	m := &JWTManager{
		secret:        []byte(secret),
		issuer:        issuer,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		now:           time.Now,
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return m.now() }),
	)
	return m
}

// AccessExpiry returns the lifetime of access tokens.
func (m *JWTManager) AccessExpiry() time.Duration { return m.accessExpiry }

// RefreshExpiry returns the lifetime of refresh tokens.
func (m *JWTManager) RefreshExpiry() time.Duration { return m.refreshExpiry }

func (m *JWTManager) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := m.now().UTC()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// GenerateAccessToken signs an access token for p.
func (m *JWTManager) GenerateAccessToken(p domain.Principal) (string, *Claims, error) {
	claims := &Claims{
		UserID:           p.ID,
		Email:            p.Email,
		Role:             p.Role,
		Kind:             p.Kind,
		Type:             TokenTypeAccess,
		RegisteredClaims: m.registered(p.ID, m.accessExpiry),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// GenerateRefreshToken signs a refresh token for the given principal.
func (m *JWTManager) GenerateRefreshToken(principalID string, kind domain.Kind) (string, *RefreshClaims, error) {
	claims := &RefreshClaims{
		Kind:             kind,
		Type:             TokenTypeRefresh,
		RegisteredClaims: m.registered(principalID, m.refreshExpiry),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, claims, nil
}

// ValidateAccessToken verifies signature, issuer, expiry and token type.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	if claims.UserID == "" || claims.UserID != claims.Subject || !claims.Kind.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefreshToken verifies signature, issuer, expiry and token type.
func (m *JWTManager) ValidateRefreshToken(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" || !claims.Kind.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *JWTManager) parse(tokenString string, claims jwt.Claims) error {
	_, err := m.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// HashToken returns the hex SHA-256 of a token, the form refresh tokens are
// stored in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
