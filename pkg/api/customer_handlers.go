package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meridianhq/meridian/pkg/customers"
	"github.com/meridianhq/meridian/pkg/guard"
	"github.com/meridianhq/meridian/pkg/httputil"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/validation"
)

// CustomerHandlers handles customer record HTTP requests
type CustomerHandlers struct {
	customers *customers.Service
}

// NewCustomerHandlers creates a new CustomerHandlers
func NewCustomerHandlers(svc *customers.Service) *CustomerHandlers {
	return &CustomerHandlers{customers: svc}
}

var customerCreateSchema = &validation.Schema{Fields: []validation.Field{
	{Name: "name", Type: validation.TypeString, Required: true, MinLen: 1, MaxLen: 200},
	{Name: "email", Type: validation.TypeString, Required: true, Email: true},
}}

// RegisterRoutes registers customer routes
func (h *CustomerHandlers) RegisterRoutes(router *mux.Router, g *guard.Guard) {
	// Built-in MEMBER carries customer:create for custom-role grants,
	// but the create endpoint itself is gated at ADMIN.
	router.Handle("/customers", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"POST"},
		RateLimit:           true,
		MinimumRole:         rbac.TierAdmin,
		RequiredPermissions: []rbac.Permission{rbac.PermCustomerCreate},
		Schema:              customerCreateSchema,
	}, h.CreateCustomer)).Methods("POST")

	router.Handle("/customers", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"GET"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermCustomerRead},
	}, h.ListCustomers)).Methods("GET")

	router.Handle("/customers/{customerId}", g.Wrap(guard.Policy{
		RequireAuth:         true,
		RequireCompany:      true,
		AllowedMethods:      []string{"GET"},
		RateLimit:           true,
		RequiredPermissions: []rbac.Permission{rbac.PermCustomerRead},
	}, h.GetCustomer)).Methods("GET")
}

// CreateCustomer creates a customer in the active company
func (h *CustomerHandlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	name := rc.Validated["name"].(string)
	email := rc.Validated["email"].(string)

	customer, err := h.customers.Create(r.Context(), rc.CompanyID, rc.UserID, name, email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, customer)
}

// ListCustomers returns the active company's customers
func (h *CustomerHandlers) ListCustomers(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	list, err := h.customers.List(r.Context(), rc.CompanyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// GetCustomer returns one customer scoped to the active company
func (h *CustomerHandlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	rc := guard.FromRequest(r)
	customerID, err := httputil.ParsePathInt64(r, "customerId")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	customer, err := h.customers.Get(r.Context(), rc.CompanyID, customerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, customer)
}
