// Package rbac implements the permission engine: the static permission
// catalog, the built-in role tiers, tenant-scoped custom roles, and the
// resolution of a membership's role reference to its effective permission
// set.
package rbac
