package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/guard"
	"github.com/meridianhq/meridian/pkg/httputil"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/tenant"
	"github.com/meridianhq/meridian/pkg/validation"
)

// TeamHandlers handles team membership HTTP requests
type TeamHandlers struct {
	tenants *tenant.Service
}

// NewTeamHandlers creates a new TeamHandlers
func NewTeamHandlers(tenants *tenant.Service) *TeamHandlers {
	return &TeamHandlers{tenants: tenants}
}

var roleUpdateSchema = &validation.Schema{Fields: []validation.Field{
	{Name: "role", Type: validation.TypeString, Required: true, Enum: rbac.TierNames()},
	{Name: "customRoleId", Type: validation.TypeString},
}}

var bulkRemoveSchema = &validation.Schema{Fields: []validation.Field{
	{Name: "memberIds", Type: validation.TypeStringSlice, Required: true, MinItems: 1},
}}

var invitationSchema = &validation.Schema{Fields: []validation.Field{
	{Name: "email", Type: validation.TypeString, Required: true, Email: true},
	{Name: "role", Type: validation.TypeString, Required: true, Enum: rbac.TierNames()},
}}

// RegisterRoutes registers team routes
func (h *TeamHandlers) RegisterRoutes(router *mux.Router, g *guard.Guard) {
	router.Handle("/users/permissions", g.Wrap(guard.Policy{
		RequireAuth:    true,
		RequireCompany: true,
		AllowedMethods: []string{"GET"},
		RateLimit:      true,
	}, h.GetPermissions)).Methods("GET")

	router.Handle("/users/team", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"GET"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermTeamRead},
	}, h.ListTeam)).Methods("GET")

	// The bulk route is registered before the parameterized one so "bulk"
	// is never captured as a member id.
	router.Handle("/users/team/bulk", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"DELETE"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermTeamRemove},
		Schema:              bulkRemoveSchema,
	}, h.BulkRemoveMembers)).Methods("DELETE")

	router.Handle("/users/team/{memberId}/role", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"PATCH"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermTeamUpdateRole},
		Schema:              roleUpdateSchema,
	}, h.UpdateMemberRole)).Methods("PATCH")

	router.Handle("/users/team/{memberId}", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"DELETE"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermTeamRemove},
	}, h.RemoveMember)).Methods("DELETE")

	router.Handle("/users/team/invitations", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"POST"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermTeamInvite},
		Schema:              invitationSchema,
	}, h.CreateInvitation)).Methods("POST")

	router.Handle("/users/team/invitations/{invitationId}", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"DELETE"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermTeamInvite},
	}, h.RevokeInvitation)).Methods("DELETE")

	router.Handle("/invitations/{token}/accept", g.Wrap(guard.Policy{
		RequireAuth:    true,
		AllowedMethods: []string{"POST"},
		RateLimit:      true,
	}, h.AcceptInvitation)).Methods("POST")
}

// GetPermissions returns the caller's effective permissions in the active company
func (h *TeamHandlers) GetPermissions(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	httputil.WriteSuccess(w, map[string]interface{}{
		"companyId":   rc.CompanyID,
		"role":        rc.Role,
		"permissions": rc.Permissions.Keys(),
	})
}

// ListTeam returns all members of the active company
func (h *TeamHandlers) ListTeam(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	members, err := h.tenants.ListTeamMembers(r.Context(), rc.CompanyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// UpdateMemberRole changes a member's role assignment
func (h *TeamHandlers) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	targetID, err := httputil.ParsePathInt64(r, "memberId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	tier := rbac.Tier(rc.Validated["role"].(string))
	ref := rbac.BuiltIn(tier)
	if raw, ok := rc.Validated["customRoleId"].(string); ok && raw != "" {
		roleID, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr != nil {
			httputil.WriteError(w, apperr.Validation(map[string]string{"customRoleId": "must be a numeric id"}))
			return
		}
		ref = rbac.Custom(tier, roleID)
	}

	if err := h.tenants.UpdateRole(r.Context(), rc.TenantContext, targetID, ref); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "role updated")
}

// RemoveMember removes a single member from the active company
func (h *TeamHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	targetID, err := httputil.ParsePathInt64(r, "memberId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.tenants.RemoveMember(r.Context(), rc.TenantContext, targetID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "member removed")
}

// BulkRemoveMembers removes several members atomically
func (h *TeamHandlers) BulkRemoveMembers(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)

	raw := rc.Validated["memberIds"].([]interface{})
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		values = append(values, v.(string))
	}
	ids, err := httputil.ParseIDList(values)
	if err != nil {
		httputil.WriteError(w, apperr.Validation(map[string]string{"memberIds": "must be numeric ids"}))
		return
	}

	if err := h.tenants.BulkRemove(r.Context(), rc.TenantContext, ids); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "members removed")
}

// CreateInvitation invites a user to the active company by email
func (h *TeamHandlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)

	email := rc.Validated["email"].(string)
	role := rbac.Tier(rc.Validated["role"].(string))

	invitation, err := h.tenants.CreateInvitation(r.Context(), rc.TenantContext, email, role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, invitation)
}

// RevokeInvitation cancels a pending invitation in the active company
func (h *TeamHandlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	invitationID, err := httputil.ParsePathInt64(r, "invitationId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.tenants.RevokeInvitation(r.Context(), rc.TenantContext, invitationID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "invitation revoked")
}

// AcceptInvitation redeems an invitation token for the authenticated user
func (h *TeamHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	token, err := httputil.ParsePathString(r, "token")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	membership, err := h.tenants.AcceptInvitation(r.Context(), rc.UserID, token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, membership)
}
