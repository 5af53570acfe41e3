package domain

// Kind distinguishes the two principal tables. It travels in the access token
// and in the X-User-Kind header forwarded to the storefront.
type Kind string

const (
	KindUser  Kind = "user"
	KindAdmin Kind = "admin"
)

// Valid reports whether k is a known principal kind.
func (k Kind) Valid() bool {
	return k == KindUser || k == KindAdmin
}

// Roles. Customers always carry RoleCustomer; admin accounts carry one of the
// two admin roles.
const (
	RoleCustomer   = "customer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// IsValidAdminRole checks whether role can be assigned to an admin account.
func IsValidAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// Principal is the authenticated identity a token is issued for.
type Principal struct {
	ID    string
	Email string
	Role  string
	Kind  Kind
}

// IsAdmin reports whether p authenticated against the admin table.
func (p Principal) IsAdmin() bool {
	return p.Kind == KindAdmin
}

// IsSuperAdmin reports whether p may manage other admin accounts.
func (p Principal) IsSuperAdmin() bool {
	return p.Kind == KindAdmin && p.Role == RoleSuperAdmin
}
