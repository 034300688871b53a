package domain

import "time"

// Role is an operator's privilege level. Order is strictly increasing:
// viewer < agent < manager < admin.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleAgent   Role = "agent"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:  0,
	RoleAgent:   1,
	RoleManager: 2,
	RoleAdmin:   3,
}

// AtLeast reports whether r is the same or a higher privilege than min.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// AuthPrincipal is the identity and claim set produced by verifying a token.
type AuthPrincipal struct {
	UserID      string
	Username    string
	Role        Role
	AgentScope  *string
	Permissions map[string]struct{}
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// HasPermission reports whether the principal carries the named permission.
func (p AuthPrincipal) HasPermission(name string) bool {
	_, ok := p.Permissions[name]
	return ok
}
