package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/billing"
	"github.com/meridianhq/meridian/pkg/customers"
	"github.com/meridianhq/meridian/pkg/guard"
	"github.com/meridianhq/meridian/pkg/httputil"
	"github.com/meridianhq/meridian/pkg/middleware"
	"github.com/meridianhq/meridian/pkg/observability"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/tenant"
)

// Server represents the API server
type Server struct {
	router *mux.Router
	db     *sql.DB
	guard  *guard.Guard
	log    *observability.Logger

	teamHandlers     *TeamHandlers
	companyHandlers  *CompanyHandlers
	customerHandlers *CustomerHandlers
	roleHandlers     *RoleHandlers
	webhookHandlers  *WebhookHandlers
}

// ServerDeps carries the services the server routes requests to.
type ServerDeps struct {
	DB        *sql.DB
	Guard     *guard.Guard
	Tenants   *tenant.Service
	Customers *customers.Service
	Roles     *rbac.PostgresRoleStore
	Billing   *billing.Service

	// Templates, when non-nil, seeds new companies with custom roles
	Templates *rbac.TemplateCatalog

	// WebhookSecrets maps a billing provider name to its HMAC secret
	WebhookSecrets map[string]string

	Metrics *observability.Metrics
	Log     *observability.Logger
}

// NewServer creates a new API server and registers all routes
func NewServer(deps ServerDeps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		db:     deps.DB,
		guard:  deps.Guard,
		log:    deps.Log,

		teamHandlers:     NewTeamHandlers(deps.Tenants),
		companyHandlers:  NewCompanyHandlers(deps.Tenants, deps.Billing).WithRoleTemplates(deps.Roles, deps.Templates, deps.Log),
		customerHandlers: NewCustomerHandlers(deps.Customers),
		roleHandlers:     NewRoleHandlers(deps.Roles),
		webhookHandlers:  NewWebhookHandlers(deps.Billing, deps.WebhookSecrets, deps.Metrics, deps.Log),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorKind(w, apperr.KindMethodNotAllowed, "method not allowed")
	})
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorKind(w, apperr.KindNotFound, "route not found")
	})

	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")

	s.teamHandlers.RegisterRoutes(s.router, s.guard)
	s.companyHandlers.RegisterRoutes(s.router, s.guard)
	s.customerHandlers.RegisterRoutes(s.router, s.guard)
	s.roleHandlers.RegisterRoutes(s.router, s.guard)
	s.webhookHandlers.RegisterRoutes(s.router)
}

// Router returns the configured route handler
func (s *Server) Router() http.Handler {
	return s.router
}

// Handler wraps the router with request id and metrics middleware.
func (s *Server) Handler(metrics *observability.Metrics) http.Handler {
	var h http.Handler = s.router
	if metrics != nil {
		h = middleware.NewMetricsMiddleware(metrics).Handler(h)
	}
	return middleware.NewRequestIDMiddleware().Handler(h)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			httputil.WriteErrorKind(w, apperr.KindUnavailable, "database unreachable")
			return
		}
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
