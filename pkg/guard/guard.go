// Package guard implements the authorization pipeline every protected route
// passes through. A Policy declares what a route requires; the guard runs the
// checks in a fixed order and short-circuits on the first failure, so a
// request denied for a missing credential is never evaluated against
// permissions, and an unauthorized caller never reaches payload validation.
package guard

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/auth"
	"github.com/meridianhq/meridian/pkg/contextkeys"
	"github.com/meridianhq/meridian/pkg/httputil"
	"github.com/meridianhq/meridian/pkg/middleware"
	"github.com/meridianhq/meridian/pkg/observability"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/tenant"
	"github.com/meridianhq/meridian/pkg/validation"
)

// PermissionMode selects how RequiredPermissions combine.
type PermissionMode string

const (
	// PermissionModeAll requires every listed permission (the default).
	PermissionModeAll PermissionMode = "all"
	// PermissionModeAny requires at least one listed permission.
	PermissionModeAny PermissionMode = "any"
)

// Policy declares a route's requirements. The zero value is an open route.
type Policy struct {
	RequireAuth         bool
	RequireCompany      bool
	AllowedMethods      []string
	RateLimit           bool
	RequiredPermissions []rbac.Permission
	PermissionMode      PermissionMode
	MinimumRole         rbac.Tier
	Schema              *validation.Schema
}

// RequestContext is the assembled result of a fully passed pipeline,
// available to handlers via FromRequest.
type RequestContext struct {
	UserID      int64
	CompanyID   int64
	Role        rbac.Tier
	Permissions rbac.PermissionSet
	Validated   map[string]interface{}

	Identity      *auth.Identity
	User          *auth.User
	TenantContext *tenant.Context
}

// Guard evaluates policies against requests.
type Guard struct {
	resolver       auth.Resolver
	users          *auth.UserStore
	tenants        *tenant.Resolver
	engine         *rbac.Engine
	limiter        middleware.Limiter
	metrics        *observability.Metrics
	log            *observability.Logger
	resolveTimeout time.Duration
}

// New creates a guard. limiter and metrics may be nil; a nil limiter
// disables rate limiting even for policies that request it.
func New(resolver auth.Resolver, users *auth.UserStore, tenants *tenant.Resolver, engine *rbac.Engine, limiter middleware.Limiter, metrics *observability.Metrics, log *observability.Logger) *Guard {
	return &Guard{
		resolver: resolver,
		users:    users,
		tenants:  tenants,
		engine:   engine,
		limiter:  limiter,
		metrics:  metrics,
		log:      log,
	}
}

// WithResolveTimeout bounds how long identity resolution may take per
// request. Zero leaves the request context's own deadline in charge.
func (g *Guard) WithResolveTimeout(d time.Duration) *Guard {
	g.resolveTimeout = d
	return g
}

// FromRequest returns the request context assembled by the guard. It is nil
// on routes that did not pass through Wrap.
func FromRequest(r *http.Request) *RequestContext {
	rc, _ := r.Context().Value(contextkeys.RequestKey).(*RequestContext)
	return rc
}

// Wrap applies the policy pipeline in front of handler. Check order is
// method, authentication, rate limit, tenant, permissions, then schema.
func (g *Guard) Wrap(policy Policy, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := &RequestContext{}

		if err := g.checkMethod(policy, w, r); err != nil {
			g.deny(w, r, "method", err)
			return
		}

		if policy.RequireAuth {
			if err := g.authenticate(policy, r, rc); err != nil {
				g.deny(w, r, "unauthenticated", err)
				return
			}
		}

		if policy.RateLimit && g.limiter != nil {
			if err := g.rateLimit(r, rc); err != nil {
				g.deny(w, r, "rate_limited", err)
				return
			}
		}

		if policy.RequireCompany {
			if err := g.resolveTenant(r, rc); err != nil {
				g.deny(w, r, "tenant", err)
				return
			}
			r = r.WithContext(contextkeys.WithCompanyID(r.Context(), rc.CompanyID))
		}

		if policy.MinimumRole != "" || len(policy.RequiredPermissions) > 0 {
			if err := g.checkPermissions(policy, r, rc); err != nil {
				g.deny(w, r, "permission", err)
				return
			}
		}

		if policy.Schema != nil {
			if err := g.validatePayload(policy, r, rc); err != nil {
				g.deny(w, r, "validation", err)
				return
			}
		}

		ctx := context.WithValue(r.Context(), contextkeys.RequestKey, rc)
		handler(w, r.WithContext(ctx))
	})
}

func (g *Guard) checkMethod(policy Policy, w http.ResponseWriter, r *http.Request) error {
	if len(policy.AllowedMethods) == 0 {
		return nil
	}
	for _, m := range policy.AllowedMethods {
		if r.Method == m {
			return nil
		}
	}
	w.Header().Set("Allow", strings.Join(policy.AllowedMethods, ", "))
	return apperr.Newf(apperr.KindMethodNotAllowed, "method %s not allowed", r.Method)
}

func (g *Guard) authenticate(policy Policy, r *http.Request, rc *RequestContext) error {
	credential, ok := auth.BearerToken(r)
	if !ok {
		return apperr.New(apperr.KindUnauthenticated, "missing credentials")
	}

	ctx := r.Context()
	if g.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.resolveTimeout)
		defer cancel()
	}
	identity, err := g.resolver.Resolve(ctx, credential)
	if err != nil {
		return err
	}
	rc.Identity = identity

	user, err := g.users.Sync(r.Context(), identity)
	if err != nil {
		return fmt.Errorf("failed to provision user: %w", err)
	}
	rc.User = user
	rc.UserID = user.ID
	return nil
}

func (g *Guard) rateLimit(r *http.Request, rc *RequestContext) error {
	var key string
	if rc.UserID != 0 {
		key = fmt.Sprintf("user:%d:%s", rc.UserID, r.URL.Path)
	} else {
		key = fmt.Sprintf("ip:%s:%s", httputil.ClientIP(r), r.URL.Path)
	}

	allowed, err := g.limiter.Allow(r.Context(), key)
	if err != nil {
		// Limiter backend failure: fail open, count nothing against the caller
		if g.log != nil {
			g.log.WithError(err).Warn("rate limiter unavailable, allowing request")
		}
		return nil
	}
	if !allowed {
		if g.metrics != nil {
			g.metrics.RateLimitedTotal.WithLabelValues(r.URL.Path).Inc()
		}
		return apperr.New(apperr.KindRateLimited, "rate limit exceeded")
	}
	return nil
}

func (g *Guard) resolveTenant(r *http.Request, rc *RequestContext) error {
	explicit, err := tenant.ParseCompanyHeader(r)
	if err != nil {
		return err
	}

	tc, err := g.tenants.Resolve(r.Context(), rc.UserID, explicit)
	if err != nil {
		return err
	}
	rc.TenantContext = tc
	rc.CompanyID = tc.CompanyID
	rc.Role = tc.Membership.Role

	perms, err := g.engine.EffectivePermissions(r.Context(), tc.CompanyID, tc.Membership.RoleRef())
	if err != nil {
		return fmt.Errorf("failed to resolve permissions: %w", err)
	}
	rc.Permissions = perms
	return nil
}

func (g *Guard) checkPermissions(policy Policy, r *http.Request, rc *RequestContext) error {
	if rc.TenantContext == nil {
		return apperr.New(apperr.KindNoTenantContext, "no tenant context for permission check")
	}

	if policy.MinimumRole != "" {
		if err := rbac.RequireRole(rc.Role, policy.MinimumRole); err != nil {
			return err
		}
	}

	if len(policy.RequiredPermissions) > 0 {
		ok := false
		switch policy.PermissionMode {
		case PermissionModeAny:
			ok = rc.Permissions.HasAny(policy.RequiredPermissions...)
		default:
			ok = rc.Permissions.HasAll(policy.RequiredPermissions...)
		}
		if !ok {
			return apperr.New(apperr.KindInsufficientPermission, "insufficient permissions")
		}
	}
	return nil
}

func (g *Guard) validatePayload(policy Policy, r *http.Request, rc *RequestContext) error {
	var payload map[string]interface{}
	if err := httputil.ParseJSON(r, &payload); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid JSON body", err)
	}

	result := policy.Schema.Validate(payload)
	if !result.Valid {
		return apperr.Validation(result.Errors)
	}
	rc.Validated = payload
	return nil
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, reason string, err error) {
	if g.metrics != nil && reason != "rate_limited" {
		// rate_limited is counted at the point of denial with its route label
		g.metrics.AuthzDenialsTotal.WithLabelValues(reason).Inc()
	}
	if g.log != nil {
		g.log.WithFields(map[string]interface{}{
			"reason": reason,
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Info("request denied")
	}
	httputil.WriteError(w, err)
}
