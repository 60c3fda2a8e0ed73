package rbac

import "sort"

// Permission is a capability key checked by the permission engine.
// Keys follow the "resource:action" convention.
type Permission string

const (
	PermCompanyRead   Permission = "company:read"
	PermCompanyManage Permission = "company:manage"

	PermTeamRead       Permission = "team:read"
	PermTeamInvite     Permission = "team:invite"
	PermTeamUpdateRole Permission = "team:update_role"
	PermTeamRemove     Permission = "team:remove"

	PermRoleRead   Permission = "role:read"
	PermRoleManage Permission = "role:manage"

	PermCustomerCreate Permission = "customer:create"
	PermCustomerRead   Permission = "customer:read"
	PermCustomerUpdate Permission = "customer:update"
	PermCustomerDelete Permission = "customer:delete"

	PermBillingRead   Permission = "billing:read"
	PermBillingManage Permission = "billing:manage"
)

// Tier is a built-in role in the legacy ordering VIEWER < MEMBER < ADMIN < OWNER.
type Tier string

const (
	TierViewer Tier = "VIEWER"
	TierMember Tier = "MEMBER"
	TierAdmin  Tier = "ADMIN"
	TierOwner  Tier = "OWNER"
)

// TierNames lists valid tier values for request validation.
func TierNames() []string {
	return []string{string(TierOwner), string(TierAdmin), string(TierMember), string(TierViewer)}
}

// tierRank orders tiers for RequireRole comparisons. Unknown tiers rank
// below VIEWER so a corrupted value never grants anything.
func tierRank(t Tier) int {
	switch t {
	case TierOwner:
		return 4
	case TierAdmin:
		return 3
	case TierMember:
		return 2
	case TierViewer:
		return 1
	default:
		return 0
	}
}

// ValidTier reports whether s names a built-in tier.
func ValidTier(s string) bool {
	switch Tier(s) {
	case TierOwner, TierAdmin, TierMember, TierViewer:
		return true
	}
	return false
}

// viewerPermissions is the read-only base every tier includes.
func viewerPermissions() []Permission {
	return []Permission{
		PermCompanyRead,
		PermTeamRead,
		PermRoleRead,
		PermCustomerRead,
	}
}

// memberPermissions adds create/update on owned-scope resources.
func memberPermissions() []Permission {
	return append(viewerPermissions(),
		PermCustomerCreate,
		PermCustomerUpdate,
	)
}

// adminPermissions adds team and billing management.
func adminPermissions() []Permission {
	return append(memberPermissions(),
		PermTeamInvite,
		PermTeamUpdateRole,
		PermTeamRemove,
		PermCustomerDelete,
		PermBillingRead,
		PermBillingManage,
	)
}

// ownerPermissions adds company-level administration.
func ownerPermissions() []Permission {
	return append(adminPermissions(),
		PermCompanyManage,
		PermRoleManage,
	)
}

// BuiltInPermissions returns the static permission set for a tier. Each tier
// is a strict superset of the one below it.
func BuiltInPermissions(t Tier) PermissionSet {
	switch t {
	case TierOwner:
		return NewPermissionSet(ownerPermissions()...)
	case TierAdmin:
		return NewPermissionSet(adminPermissions()...)
	case TierMember:
		return NewPermissionSet(memberPermissions()...)
	case TierViewer:
		return NewPermissionSet(viewerPermissions()...)
	default:
		return NewPermissionSet()
	}
}

// Catalog returns every permission key known to the engine, sorted.
func Catalog() []Permission {
	set := ownerPermissions()
	out := make([]Permission, len(set))
	copy(out, set)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
