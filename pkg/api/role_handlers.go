package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meridianhq/meridian/pkg/guard"
	"github.com/meridianhq/meridian/pkg/httputil"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/validation"
)

// RoleHandlers handles custom role HTTP requests
type RoleHandlers struct {
	roles *rbac.PostgresRoleStore
}

// NewRoleHandlers creates a new RoleHandlers
func NewRoleHandlers(roles *rbac.PostgresRoleStore) *RoleHandlers {
	return &RoleHandlers{roles: roles}
}

var roleCreateSchema = &validation.Schema{Fields: []validation.Field{
	{Name: "name", Type: validation.TypeString, Required: true, MinLen: 2, MaxLen: 80},
	{Name: "permissions", Type: validation.TypeStringSlice, Required: true, MinItems: 1},
}}

// RegisterRoutes registers custom role routes
func (h *RoleHandlers) RegisterRoutes(router *mux.Router, g *guard.Guard) {
	router.Handle("/roles", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"GET"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermRoleRead},
	}, h.ListRoles)).Methods("GET")

	router.Handle("/roles", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"POST"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermRoleManage},
		Schema:              roleCreateSchema,
	}, h.CreateRole)).Methods("POST")

	// Registered before the parameterized route so "catalog" is never
	// captured as a role id.
	router.Handle("/roles/catalog", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"GET"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermRoleRead},
	}, h.GetCatalog)).Methods("GET")

	router.Handle("/roles/{roleId}", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"GET"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermRoleRead},
	}, h.GetRole)).Methods("GET")

	router.Handle("/roles/{roleId}", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"DELETE"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermRoleManage},
	}, h.DeleteRole)).Methods("DELETE")
}

// ListRoles returns the active company's custom roles
func (h *RoleHandlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	roles, err := h.roles.ListRoles(r.Context(), rc.CompanyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole creates a custom role in the active company
func (h *RoleHandlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	name := rc.Validated["name"].(string)

	raw := rc.Validated["permissions"].([]interface{})
	perms := make([]rbac.Permission, 0, len(raw))
	for _, v := range raw {
		perms = append(perms, rbac.Permission(v.(string)))
	}

	role, err := h.roles.CreateRole(r.Context(), rc.CompanyID, name, perms)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, role)
}

// GetRole returns one custom role scoped to the active company
func (h *RoleHandlers) GetRole(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	roleID, err := httputil.ParsePathInt64(r, "roleId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	role, err := h.roles.GetRole(r.Context(), rc.CompanyID, roleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// DeleteRole deletes an unreferenced custom role
func (h *RoleHandlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	roleID, err := httputil.ParsePathInt64(r, "roleId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.roles.DeleteRole(r.Context(), rc.CompanyID, roleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "role deleted")
}

// GetCatalog returns the built-in permission catalog grouped by tier
func (h *RoleHandlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, rbac.Catalog())
}
