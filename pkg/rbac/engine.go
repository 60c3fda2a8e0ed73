package rbac

import (
	"context"
	"fmt"
	"sort"

	"github.com/meridianhq/meridian/pkg/apperr"
)

// PermissionSet is a resolved set of permission keys.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given keys.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set contains key.
func (s PermissionSet) Has(key Permission) bool {
	_, ok := s[key]
	return ok
}

// HasAny reports whether the set contains at least one of keys.
func (s PermissionSet) HasAny(keys ...Permission) bool {
	for _, k := range keys {
		if s.Has(k) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set contains every key.
func (s PermissionSet) HasAll(keys ...Permission) bool {
	for _, k := range keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Keys returns the sorted permission keys for serialization.
func (s PermissionSet) Keys() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RoleRef is the tagged variant a membership carries: either a built-in tier
// or a reference to a tenant-scoped custom role. Exactly one side is set;
// EffectivePermissions is the only code that interprets the tag.
type RoleRef struct {
	Tier         Tier
	CustomRoleID *int64
}

// BuiltIn constructs a built-in role reference.
func BuiltIn(t Tier) RoleRef {
	return RoleRef{Tier: t}
}

// Custom constructs a custom role reference. The tier is retained as the
// legacy value for ordering comparisons only.
func Custom(tier Tier, roleID int64) RoleRef {
	return RoleRef{Tier: tier, CustomRoleID: &roleID}
}

// IsCustom reports whether the reference points at a custom role.
func (r RoleRef) IsCustom() bool {
	return r.CustomRoleID != nil
}

// RequireRole fails with InsufficientRole when role orders below minimum in
// the legacy ordering VIEWER < MEMBER < ADMIN < OWNER.
func RequireRole(role, minimum Tier) error {
	if tierRank(role) < tierRank(minimum) {
		return apperr.Newf(apperr.KindInsufficientRole,
			"role %s does not meet required role %s", role, minimum)
	}
	return nil
}

// RoleStore loads custom role permission sets.
type RoleStore interface {
	GetRolePermissions(ctx context.Context, companyID, roleID int64) (PermissionSet, error)
}

// Engine computes effective permission sets for memberships. Built-in tiers
// resolve without any I/O; custom roles go through the store.
type Engine struct {
	store RoleStore
}

// NewEngine creates a permission engine. A nil store restricts the engine to
// built-in tiers; resolving a custom reference then fails.
func NewEngine(store RoleStore) *Engine {
	return &Engine{store: store}
}

// EffectivePermissions resolves a role reference to its permission set. The
// custom role id, when present, fully determines the result; the legacy tier
// is used only when no custom role is referenced.
func (e *Engine) EffectivePermissions(ctx context.Context, companyID int64, ref RoleRef) (PermissionSet, error) {
	if ref.IsCustom() {
		if e.store == nil {
			return nil, fmt.Errorf("custom role %d referenced but no role store configured", *ref.CustomRoleID)
		}
		set, err := e.store.GetRolePermissions(ctx, companyID, *ref.CustomRoleID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve custom role %d: %w", *ref.CustomRoleID, err)
		}
		return set, nil
	}
	return BuiltInPermissions(ref.Tier), nil
}
