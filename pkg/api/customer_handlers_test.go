package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/auth"
	"github.com/meridianhq/meridian/pkg/customers"
	"github.com/meridianhq/meridian/pkg/guard"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/tenant"
)

// stubResolver maps bearer credentials to identities.
type stubResolver struct {
	identities map[string]*auth.Identity
}

func (r *stubResolver) Resolve(ctx context.Context, credential string) (*auth.Identity, error) {
	if identity, ok := r.identities[credential]; ok {
		return identity, nil
	}
	return nil, apperr.New(apperr.KindUnauthenticated, "invalid credential")
}

// stubTenantRepo serves a fixed membership list.
type stubTenantRepo struct {
	memberships []*tenant.Membership
}

func (r *stubTenantRepo) GetCompany(ctx context.Context, companyID int64) (*tenant.Company, error) {
	return &tenant.Company{ID: companyID}, nil
}

func (r *stubTenantRepo) GetMembership(ctx context.Context, companyID, userID int64) (*tenant.Membership, error) {
	for _, m := range r.memberships {
		if m.CompanyID == companyID && m.UserID == userID {
			return m, nil
		}
	}
	return nil, apperr.Newf(apperr.KindForbiddenTenant, "user %d is not a member of company %d", userID, companyID)
}

func (r *stubTenantRepo) ListMembershipsForUser(ctx context.Context, userID int64) ([]*tenant.Membership, error) {
	var out []*tenant.Membership
	for _, m := range r.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubTenantRepo) ListTeamMembers(ctx context.Context, companyID int64) ([]*tenant.TeamMember, error) {
	return nil, nil
}

// newCustomerRouter wires the customer routes behind a real guard with
// one MEMBER and one ADMIN of company 42.
func newCustomerRouter(t *testing.T) (*mux.Router, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	resolver := &stubResolver{identities: map[string]*auth.Identity{
		"member-token": {ExternalID: "ext-member", Email: "member@example.com"},
		"admin-token":  {ExternalID: "ext-admin", Email: "admin@example.com"},
	}}
	repo := &stubTenantRepo{memberships: []*tenant.Membership{
		{ID: 1, UserID: 31, CompanyID: 42, Role: rbac.TierMember, CreatedAt: time.Now()},
		{ID: 2, UserID: 32, CompanyID: 42, Role: rbac.TierAdmin, CreatedAt: time.Now()},
	}}
	g := guard.New(resolver, auth.NewUserStore(db), tenant.NewResolver(repo, false), rbac.NewEngine(nil), nil, nil, nil)

	router := mux.NewRouter()
	NewCustomerHandlers(customers.NewService(db, nil)).RegisterRoutes(router, g)
	return router, mock
}

func expectUserSync(mock sqlmock.Sqlmock, extID, email string, userID int64) {
	mock.ExpectQuery("INSERT INTO users").
		WithArgs(extID, email, "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "created_at"}).
			AddRow(userID, email, "", time.Now()))
}

// The create endpoint is ADMIN-gated even though the MEMBER tier holds
// customer:create.
func TestCreateCustomerRequiresAdmin(t *testing.T) {
	body := `{"name":"Globex","email":"ops@globex.test"}`

	t.Run("member denied", func(t *testing.T) {
		router, mock := newCustomerRouter(t)
		expectUserSync(mock, "ext-member", "member@example.com", 31)

		r := httptest.NewRequest("POST", "/customers", bytes.NewBufferString(body))
		r.Header.Set("Authorization", "Bearer member-token")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "insufficient_role")
	})

	t.Run("admin allowed", func(t *testing.T) {
		router, mock := newCustomerRouter(t)
		expectUserSync(mock, "ext-admin", "admin@example.com", 32)
		mock.ExpectQuery("INSERT INTO customers").
			WithArgs(int64(42), "Globex", "ops@globex.test").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))

		r := httptest.NewRequest("POST", "/customers", bytes.NewBufferString(body))
		r.Header.Set("Authorization", "Bearer admin-token")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
