package tenant

import (
	"context"
	"net/http"
	"strconv"

	"github.com/meridianhq/meridian/pkg/apperr"
)

// CompanyHeader carries an explicit tenant selection on a request.
const CompanyHeader = "X-Company-ID"

// Resolver establishes which tenant a request operates on.
type Resolver struct {
	repo Repository

	// requireExplicit disables the earliest-membership default
	requireExplicit bool
}

// NewResolver creates a tenant context resolver.
func NewResolver(repo Repository, requireExplicit bool) *Resolver {
	return &Resolver{repo: repo, requireExplicit: requireExplicit}
}

// ParseCompanyHeader extracts the explicit company selection from a request.
// A malformed header is a validation error, not a silent fallback.
func ParseCompanyHeader(r *http.Request) (*int64, error) {
	raw := r.Header.Get(CompanyHeader)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperr.Validation(map[string]string{
			CompanyHeader: "must be a positive integer",
		})
	}
	return &id, nil
}

// Resolve determines the tenant context for a user. An explicit company id is
// honored only when the user is a member; without one, the user's
// earliest-created membership is the default.
func (r *Resolver) Resolve(ctx context.Context, userID int64, explicitCompanyID *int64) (*Context, error) {
	if explicitCompanyID != nil {
		membership, err := r.repo.GetMembership(ctx, *explicitCompanyID, userID)
		if err != nil {
			return nil, err
		}
		return &Context{UserID: userID, CompanyID: membership.CompanyID, Membership: membership}, nil
	}

	if r.requireExplicit {
		return nil, apperr.New(apperr.KindNoTenantContext, "company selection required")
	}

	memberships, err := r.repo.ListMembershipsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, apperr.New(apperr.KindNoTenantContext, "user has no company membership")
	}
	first := memberships[0]
	return &Context{UserID: userID, CompanyID: first.CompanyID, Membership: first}, nil
}
