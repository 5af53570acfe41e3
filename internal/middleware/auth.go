package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/auth"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/domain"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/repository"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/httputil"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/logger"
)

// Trusted identity headers forwarded to the storefront API. Inbound values
// are always discarded.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
	HeaderUserKind  = "X-User-Kind"
)

var trustedHeaders = []string{HeaderUserID, HeaderUserEmail, HeaderUserRole, HeaderUserKind}

type claimsKey struct{}

// WithClaims stores verified access token claims in ctx.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims attached by Authenticate.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok && c != nil
}

type route struct {
	method string
	path   string
	exact  bool
}

func (rt route) matches(method, p string) bool {
	if rt.method != method {
		return false
	}
	if rt.exact {
		return p == rt.path
	}
	return hasPathPrefix(p, rt.path)
}

// credentialRoutes exchange credentials or refresh tokens for a token pair.
var credentialRoutes = []route{
	{method: http.MethodPost, path: "/api/users", exact: true},
	{method: http.MethodPost, path: "/api/users/login", exact: true},
	{method: http.MethodPost, path: "/api/users/admin/login", exact: true},
	{method: http.MethodPost, path: "/api/users/refresh", exact: true},
}

// publicRoutes do not require a token.
var publicRoutes = append([]route{
	{method: http.MethodGet, path: "/api/products"},
	{method: http.MethodGet, path: "/api/reviews"},
	{method: http.MethodGet, path: "/health"},
}, credentialRoutes...)

func matchAny(routes []route, method, urlPath string) bool {
	p := routePath(urlPath)
	for _, rt := range routes {
		if rt.matches(method, p) {
			return true
		}
	}
	return false
}

// IsCredentialRoute reports whether method and path are a register, login or
// refresh call.
func IsCredentialRoute(method, urlPath string) bool {
	return matchAny(credentialRoutes, method, urlPath)
}

// IsPublicRoute reports whether method and path may be served anonymously.
// HEAD follows GET.
func IsPublicRoute(method, urlPath string) bool {
	if method == http.MethodOptions {
		return true
	}
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return matchAny(publicRoutes, method, urlPath)
}

// RequiresAdmin reports whether method and path are reserved for admin principals.
func RequiresAdmin(method, urlPath string) bool {
	p := routePath(urlPath)
	if hasPathPrefix(p, "/api/admin") {
		return true
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return hasPathPrefix(p, "/api/products") || hasPathPrefix(p, "/api/discounts")
	}
	return false
}

// routePath folds urlPath the way the storefront router matches it: case
// insensitive, with an optional trailing slash.
func routePath(urlPath string) string {
	p := strings.ToLower(urlPath)
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// IsCanonicalPath reports whether path has no empty, "." or ".." segments
// apart from a single trailing slash.
func IsCanonicalPath(p string) bool {
	if p == "" || p == "*" {
		return true
	}
	clean := path.Clean(p)
	return p == clean || p == clean+"/"
}

func hasPathPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// TokenValidator verifies access tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// Auth is the JWT gate in front of every /api route.
type Auth struct {
	tokens   TokenValidator
	denylist repository.TokenDenylist
	logger   *slog.Logger
}

// NewAuth creates the gate. denylist may be nil, in which case revocation is
// not checked.
func NewAuth(tokens TokenValidator, denylist repository.TokenDenylist, l *slog.Logger) *Auth {
	return &Auth{tokens: tokens, denylist: denylist, logger: l}
}

// Authenticate verifies the bearer token, attaches its claims and rewrites
// the trusted identity headers. Public routes pass without a token; a bad
// token on a public route is ignored rather than rejected.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range trustedHeaders {
			r.Header.Del(h)
		}

		if !IsCanonicalPath(r.URL.Path) {
			httputil.WriteErrorCode(w, r, http.StatusBadRequest, "INVALID_INPUT", "invalid request path")
			return
		}

		public := IsPublicRoute(r.Method, r.URL.Path)

		header := r.Header.Get("Authorization")
		if header == "" {
			if public {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			if public {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid authorization header format")
			return
		}

		claims, err := a.tokens.ValidateAccessToken(token)
		if err != nil {
			if public {
				next.ServeHTTP(w, r)
				return
			}
			loggerFor(r, a.logger).WarnContext(r.Context(), "invalid access token",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			message := "invalid or expired token"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "token expired"
			}
			httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", message)
			return
		}

		if a.revoked(r, claims) {
			if public {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "token has been revoked")
			return
		}

		r.Header.Set(HeaderUserID, claims.UserID)
		r.Header.Set(HeaderUserEmail, claims.Email)
		r.Header.Set(HeaderUserRole, claims.Role)
		r.Header.Set(HeaderUserKind, string(claims.Kind))

		ctx := WithClaims(r.Context(), claims)
		ctx = logger.WithPrincipal(ctx, claims.UserID, string(claims.Kind))
		ctx = logger.NewContext(ctx, loggerFor(r, a.logger).With(
			slog.String("principal_id", claims.UserID),
			slog.String("principal_kind", string(claims.Kind)),
		))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// revoked checks the denylist. A denylist outage is logged and the token is
// treated as live.
func (a *Auth) revoked(r *http.Request, claims *auth.Claims) bool {
	if a.denylist == nil || claims.ID == "" {
		return false
	}
	revoked, err := a.denylist.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		loggerFor(r, a.logger).WarnContext(r.Context(), "token denylist unavailable",
			slog.String("error", err.Error()),
		)
		return false
	}
	return revoked
}

// RequireAdmin rejects non-admin principals on admin-only routes. It must
// run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !RequiresAdmin(r.Method, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		if claims.Kind != domain.KindAdmin {
			httputil.WriteErrorCode(w, r, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}
