package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meridianhq/meridian/pkg/billing"
	"github.com/meridianhq/meridian/pkg/guard"
	"github.com/meridianhq/meridian/pkg/httputil"
	"github.com/meridianhq/meridian/pkg/observability"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/tenant"
	"github.com/meridianhq/meridian/pkg/validation"
)

// CompanyHandlers handles company and subscription HTTP requests
type CompanyHandlers struct {
	tenants *tenant.Service
	billing *billing.Service

	// When set, new companies are seeded with these custom role templates.
	roles     *rbac.PostgresRoleStore
	templates *rbac.TemplateCatalog
	log       *observability.Logger
}

// NewCompanyHandlers creates a new CompanyHandlers
func NewCompanyHandlers(tenants *tenant.Service, billingSvc *billing.Service) *CompanyHandlers {
	return &CompanyHandlers{tenants: tenants, billing: billingSvc}
}

// WithRoleTemplates seeds each new company with the given template catalog.
func (h *CompanyHandlers) WithRoleTemplates(roles *rbac.PostgresRoleStore, templates *rbac.TemplateCatalog, log *observability.Logger) *CompanyHandlers {
	h.roles = roles
	h.templates = templates
	h.log = log
	return h
}

var companyCreateSchema = &validation.Schema{Fields: []validation.Field{
	{Name: "name", Type: validation.TypeString, Required: true, MinLen: 2, MaxLen: 120},
}}

// RegisterRoutes registers company routes
func (h *CompanyHandlers) RegisterRoutes(router *mux.Router, g *guard.Guard) {
	// Company creation needs no active tenant: the caller becomes the
	// owner of the new company.
	router.Handle("/companies", g.Wrap(guard.Policy{
		RequireAuth:    true,
		AllowedMethods: []string{"POST"},
		RateLimit:      true,
		Schema:         companyCreateSchema,
	}, h.CreateCompany)).Methods("POST")

	router.Handle("/billing/subscription", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"GET"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermBillingRead},
	}, h.GetSubscription)).Methods("GET")
}

// CreateCompany creates a company with the caller as its owner
func (h *CompanyHandlers) CreateCompany(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	name := rc.Validated["name"].(string)

	company, err := h.tenants.CreateCompany(r.Context(), rc.UserID, name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	// Template seeding is best effort: the company is usable without it.
	if h.templates != nil && h.roles != nil {
		if err := h.templates.Seed(r.Context(), h.roles, company.ID); err != nil && h.log != nil {
			h.log.WithError(err).WithField("companyId", company.ID).Warn("failed to seed role templates")
		}
	}
	httputil.WriteCreated(w, company)
}

// GetSubscription returns the active company's subscription
func (h *CompanyHandlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	sub, err := h.billing.GetSubscription(r.Context(), rc.CompanyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}
