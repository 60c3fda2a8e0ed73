package tenant

import (
	"time"

	"github.com/meridianhq/meridian/pkg/rbac"
)

// Company is a tenant.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Membership links a user to a company with a role. Role holds the built-in
// tier; CustomRoleID, when set, points at a tenant-scoped custom role that
// overrides the tier's permission set.
type Membership struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	CompanyID    int64     `json:"companyId"`
	Role         rbac.Tier `json:"role"`
	CustomRoleID *int64    `json:"customRoleId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RoleRef returns the membership's role reference for permission resolution.
func (m *Membership) RoleRef() rbac.RoleRef {
	if m.CustomRoleID != nil {
		return rbac.Custom(m.Role, *m.CustomRoleID)
	}
	return rbac.BuiltIn(m.Role)
}

// TeamMember is the public view of a membership joined with its user.
type TeamMember struct {
	ID       int64     `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     rbac.Tier `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Context is a resolved tenant context for one request.
type Context struct {
	UserID     int64
	CompanyID  int64
	Membership *Membership
}
