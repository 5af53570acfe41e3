package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/auth"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/domain"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/httputil"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDenylist struct {
	revoked map[string]bool
	err     error
}

func (f *fakeDenylist) Revoke(_ context.Context, jti string, _ time.Duration) error {
	f.revoked[jti] = true
	return nil
}

func (f *fakeDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

func newTestGate(t *testing.T) (*Auth, *auth.JWTManager, *fakeDenylist) {
	t.Helper()
	jwtm := auth.NewJWTManager(testSecret, "elitereplicas", 15*time.Minute, time.Hour)
	deny := &fakeDenylist{revoked: map[string]bool{}}
	return NewAuth(jwtm, deny, newTestLogger()), jwtm, deny
}

func issue(t *testing.T, m *auth.JWTManager, kind domain.Kind, role string) (string, *auth.Claims) {
	t.Helper()
	token, claims, err := m.GenerateAccessToken(domain.Principal{ID: "p-1", Email: "p1@example.com", Role: role, Kind: kind})
	require.NoError(t, err)
	return token, claims
}

// headerCaptureHandler echoes the trusted identity headers it received.
func headerCaptureHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers := map[string]string{
			"X-User-ID":    r.Header.Get(HeaderUserID),
			"X-User-Email": r.Header.Get(HeaderUserEmail),
			"X-User-Role":  r.Header.Get(HeaderUserRole),
			"X-User-Kind":  r.Header.Get(HeaderUserKind),
		}
		httputil.WriteJSON(w, http.StatusOK, headers)
	}
}

func decodeHeaders(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var got map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	return got
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestIsPublicRoute(t *testing.T) {
	tests := []struct {
		method, path string
		want bool
	}{
		{http.MethodGet, "/api/products", true},
		{http.MethodGet, "/api/products/123", true},
		{http.MethodGet, "/api/productsfoo", false},
		{http.MethodGet, "/api/reviews/product/9", true},
		{http.MethodPost, "/api/users", true},
		{http.MethodPost, "/api/users/login", true},
		{http.MethodPost, "/api/users/admin/login", true},
		{http.MethodPost, "/api/users/refresh", true},
		{http.MethodGet, "/health/ready", true},
		{http.MethodOptions, "/api/orders", true},
		{http.MethodPost, "/api/products", false},
		{http.MethodGet, "/api/users/profile", false},
		{http.MethodPost, "/api/users/logout", false},
		{http.MethodPost, "/api/users/admin", false},
		{http.MethodGet, "/api/orders", false},
		{http.MethodPost, "/api/users/", true},
		{http.MethodPost, "/api/Users/Login", true},
		{http.MethodGet, "/API/Products/123", true},
		{http.MethodHead, "/api/products", true},
		{http.MethodHead, "/api/orders", false},
		{http.MethodPost, "/api/users/login/extra", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPublicRoute(tt.method, tt.path))
		})
	}
}

func TestRequiresAdmin(t *testing.T) {
	tests := []struct {
		method, path string
		want bool
	}{
		{http.MethodGet, "/api/admin/orders", true},
		{http.MethodPost, "/api/products", true},
		{http.MethodDelete, "/api/products/1", true},
		{http.MethodPatch, "/api/discounts/SUMMER", true},
		{http.MethodGet, "/api/products/1", false},
		{http.MethodGet, "/api/discounts", false},
		{http.MethodPost, "/api/orders", false},
		{http.MethodGet, "/api/administrators", false},
		{http.MethodHead, "/api/products", false},

		{http.MethodGet, "/api/Admin/orders", true},
		{http.MethodGet, "/API/ADMIN", true},
		{http.MethodPost, "/api/Products", true},
		{http.MethodDelete, "/api/PRODUCTS/42", true},
		{http.MethodPost, "/api/Discounts", true},
		{http.MethodPost, "/api/products/", true},
		{http.MethodGet, "/api/admin/", true},
		{http.MethodPut, "/api/discounts/summer/", true},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiresAdmin(tt.method, tt.path))
		})
	}
}

func TestIsCredentialRoute(t *testing.T) {
	assert.True(t, IsCredentialRoute(http.MethodPost, "/api/users"))
	assert.True(t, IsCredentialRoute(http.MethodPost, "/api/users/"))
	assert.True(t, IsCredentialRoute(http.MethodPost, "/api/users/LOGIN"))
	assert.True(t, IsCredentialRoute(http.MethodPost, "/api/users/admin/login"))
	assert.True(t, IsCredentialRoute(http.MethodPost, "/api/users/refresh"))
	assert.False(t, IsCredentialRoute(http.MethodGet, "/api/users/login"))
	assert.False(t, IsCredentialRoute(http.MethodPost, "/api/users/logout"))
	assert.False(t, IsCredentialRoute(http.MethodGet, "/api/products"))
}

func TestIsCanonicalPath(t *testing.T) {
	for _, p := range []string{"/", "/api/products", "/api/products/", "*", ""} {
		assert.True(t, IsCanonicalPath(p), p)
	}
	for _, p := range []string{"//api/admin", "/api//admin", "/api/products/../admin", "/api/./admin", "/api/admin/..", "/api/products//"} {
		assert.False(t, IsCanonicalPath(p), p)
	}
}

func TestAuthenticate_NonCanonicalPathRejected(t *testing.T) {
	gate, jwtm, _ := newTestGate(t)
	token, _ := issue(t, jwtm, domain.KindUser, domain.RoleCustomer)

	for _, p := range []string{"/api/products/../admin/orders", "/api//admin/orders", "/api/./orders"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.URL.Path = p
		req.Header.Set("Authorization", "Bearer "+token)

		gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, p)
		assert.Equal(t, "INVALID_INPUT", errorCode(t, rr), p)
	}
}

func TestRequireAdmin_MixedCasePaths(t *testing.T) {
	gate, jwtm, _ := newTestGate(t)
	token, _ := issue(t, jwtm, domain.KindUser, domain.RoleCustomer)
	handler := gate.Authenticate(RequireAdmin(headerCaptureHandler()))

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/Products"},
		{http.MethodDelete, "/api/PRODUCTS/42"},
		{http.MethodGet, "/api/Admin/orders"},
		{http.MethodPost, "/api/Discounts"},
	} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+token)

		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, tc.method+" "+tc.path)
	}
}

func TestAuthenticate_ProtectedRouteWithoutToken(t *testing.T) {
	gate, _, _ := newTestGate(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)

	gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rr))
}

func TestAuthenticate_MalformedHeader(t *testing.T) {
	gate, jwtm, _ := newTestGate(t)
	token, _ := issue(t, jwtm, domain.KindUser, domain.RoleCustomer)

	for _, header := range []string{token, "Basic " + token, "Bearer ", "Bearer"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", header)

		gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, header)
	}
}

func TestAuthenticate_ValidTokenSetsTrustedHeaders(t *testing.T) {
	gate, jwtm, _ := newTestGate(t)
	token, _ := issue(t, jwtm, domain.KindUser, domain.RoleCustomer)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{
		"X-User-ID":    "p-1",
		"X-User-Email": "p1@example.com",
		"X-User-Role":  "customer",
		"X-User-Kind":  "user",
	}, decodeHeaders(t, rr))
}

func TestAuthenticate_SpoofedHeadersAreStripped(t *testing.T) {
	gate, jwtm, _ := newTestGate(t)

	t.Run("anonymous public route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		req.Header.Set(HeaderUserID, "admin-1")
		req.Header.Set(HeaderUserKind, "admin")

		gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		got := decodeHeaders(t, rr)
		assert.Empty(t, got["X-User-ID"])
		assert.Empty(t, got["X-User-Kind"])
	})

	t.Run("authenticated request", func(t *testing.T) {
		token, _ := issue(t, jwtm, domain.KindUser, domain.RoleCustomer)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(HeaderUserRole, "superadmin")

		gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "customer", decodeHeaders(t, rr)["X-User-Role"])
	})
}

func TestAuthenticate_InvalidTokens(t *testing.T) {
	gate, _, _ := newTestGate(t)

	expired := auth.NewJWTManager(testSecret, "elitereplicas", -time.Minute, time.Hour)
	expiredToken, _, err := expired.GenerateAccessToken(domain.Principal{ID: "p-1", Kind: domain.KindUser})
	require.NoError(t, err)

	refresh, _, err := auth.NewJWTManager(testSecret, "elitereplicas", time.Minute, time.Hour).
		GenerateRefreshToken("p-1", domain.KindUser)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{name: "garbage", token: "abc.def.ghi", message: "invalid or expired token"},
		{name: "expired", token: expiredToken, message: "token expired"},
		{name: "refresh token as access", token: refresh, message: "invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)

			gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)

			require.Equal(t, http.StatusUnauthorized, rr.Code)
			var resp httputil.Response
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.message, resp.Error.Message)
		})
	}
}

func TestAuthenticate_PublicRouteIgnoresBadToken(t *testing.T) {
	gate, _, _ := newTestGate(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", nil)
	req.Header.Set("Authorization", "Bearer stale")

	gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthenticate_PublicRouteAttachesValidIdentity(t *testing.T) {
	gate, jwtm, _ := newTestGate(t)
	token, _ := issue(t, jwtm, domain.KindUser, domain.RoleCustomer)

	var seen *auth.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/products/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	gate.Authenticate(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "p-1", seen.UserID)
}

func TestAuthenticate_RevokedToken(t *testing.T) {
	gate, jwtm, deny := newTestGate(t)
	token, claims := issue(t, jwtm, domain.KindUser, domain.RoleCustomer)
	deny.revoked[claims.ID] = true

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthenticate_DenylistOutageFailsOpen(t *testing.T) {
	gate, jwtm, deny := newTestGate(t)
	deny.err = errors.New("redis down")
	token, _ := issue(t, jwtm, domain.KindUser, domain.RoleCustomer)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	gate.Authenticate(headerCaptureHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireAdmin(t *testing.T) {
	gate, jwtm, _ := newTestGate(t)
	userToken, _ := issue(t, jwtm, domain.KindUser, domain.RoleCustomer)
	adminToken, _ := issue(t, jwtm, domain.KindAdmin, domain.RoleAdmin)

	handler := gate.Authenticate(RequireAdmin(headerCaptureHandler()))

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{name: "customer creating product", method: http.MethodPost, path: "/api/products", token: userToken, want: http.StatusForbidden},
		{name: "admin creating product", method: http.MethodPost, path: "/api/products", token: adminToken, want: http.StatusOK},
		{name: "customer on admin area", method: http.MethodGet, path: "/api/admin/orders", token: userToken, want: http.StatusForbidden},
		{name: "admin on admin area", method: http.MethodGet, path: "/api/admin/orders", token: adminToken, want: http.StatusOK},
		{name: "customer deleting discount", method: http.MethodDelete, path: "/api/discounts/1", token: userToken, want: http.StatusForbidden},
		{name: "anonymous browsing products", method: http.MethodGet, path: "/api/products", want: http.StatusOK},
		{name: "customer placing order", method: http.MethodPost, path: "/api/orders", token: userToken, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}

			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRequireAdmin_WithoutClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)

	RequireAdmin(headerCaptureHandler()).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
