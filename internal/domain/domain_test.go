package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Valid(t *testing.T) {
	assert.True(t, KindUser.Valid())
	assert.True(t, KindAdmin.Valid())
	assert.False(t, Kind("").Valid())
	assert.False(t, Kind("ADMIN").Valid())
}

func TestIsValidAdminRole(t *testing.T) {
	assert.True(t, IsValidAdminRole(RoleAdmin))
	assert.True(t, IsValidAdminRole(RoleSuperAdmin))
	assert.False(t, IsValidAdminRole(RoleCustomer))
	assert.False(t, IsValidAdminRole(""))
}

func TestPrincipal_FromAccounts(t *testing.T) {
	u := &User{ID: "u-1", Email: "a@b.co", Role: RoleCustomer}
	p := u.Principal()
	assert.Equal(t, KindUser, p.Kind)
	assert.False(t, p.IsAdmin())

	a := &AdminUser{ID: "a-1", Email: "root@b.co", Role: RoleSuperAdmin}
	ap := a.Principal()
	assert.True(t, ap.IsAdmin())
	assert.True(t, ap.IsSuperAdmin())

	// A customer record with a spoofed role is still not an admin.
	spoofed := Principal{ID: "u-2", Role: RoleSuperAdmin, Kind: KindUser}
	assert.False(t, spoofed.IsSuperAdmin())
}

func TestPasswordHashNeverSerialized(t *testing.T) {
	for _, v := range []any{
		User{ID: "u-1", PasswordHash: "$2a$12$secret"},
		AdminUser{ID: "a-1", PasswordHash: "$2a$12$secret"},
	} {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		assert.NotContains(t, string(b), "secret")
		assert.NotContains(t, string(b), "password")
	}
}

func TestRefreshToken_Usable(t *testing.T) {
	now := time.Now()
	revokedAt := now.Add(-time.Minute)

	assert.True(t, (&RefreshToken{ExpiresAt: now.Add(time.Hour)}).Usable(now))
	assert.False(t, (&RefreshToken{ExpiresAt: now.Add(-time.Second)}).Usable(now))
	assert.False(t, (&RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}).Usable(now))
}
