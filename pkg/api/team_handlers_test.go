package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/pkg/audit"
	"github.com/meridianhq/meridian/pkg/contextkeys"
	"github.com/meridianhq/meridian/pkg/guard"
	"github.com/meridianhq/meridian/pkg/rbac"
	"github.com/meridianhq/meridian/pkg/tenant"
)

func newTeamHandlers(t *testing.T) (*TeamHandlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	recorder := audit.NewRecorder(audit.NoopSink{}, log, nil)
	svc := tenant.NewService(db, tenant.NewPostgresRepository(db), recorder)
	return NewTeamHandlers(svc), mock
}

// withRequestContext injects an already-resolved request context, standing in
// for the guard in handler-level tests.
func withRequestContext(r *http.Request, rc *guard.RequestContext) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), contextkeys.RequestKey, rc))
}

func adminContext(userID, companyID int64) *guard.RequestContext {
	return &guard.RequestContext{
		UserID:      userID,
		CompanyID:   companyID,
		Role:        rbac.TierAdmin,
		Permissions: rbac.BuiltInPermissions(rbac.TierAdmin),
		TenantContext: &tenant.Context{
			UserID:    userID,
			CompanyID: companyID,
			Membership: &tenant.Membership{
				UserID: userID, CompanyID: companyID, Role: rbac.TierAdmin,
			},
		},
	}
}

func TestGetPermissions(t *testing.T) {
	h, _ := newTeamHandlers(t)
	rc := adminContext(7, 42)

	r := withRequestContext(httptest.NewRequest("GET", "/users/permissions", nil), rc)
	rec := httptest.NewRecorder()
	h.GetPermissions(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "team:update_role")
	assert.NotContains(t, rec.Body.String(), "company:manage")
}

func TestListTeam(t *testing.T) {
	h, mock := newTeamHandlers(t)
	rc := adminContext(7, 42)

	mock.ExpectQuery("SELECT u.id, u.email, u.name, m.role, m.created_at").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "created_at"}).
			AddRow(int64(7), "owner@acme.test", "Owner", "OWNER", time.Now()).
			AddRow(int64(8), "member@acme.test", "Member", "MEMBER", time.Now()))

	r := withRequestContext(httptest.NewRequest("GET", "/users/team", nil), rc)
	rec := httptest.NewRecorder()
	h.ListTeam(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "owner@acme.test")
	assert.Contains(t, rec.Body.String(), "member@acme.test")
}

func TestUpdateMemberRoleRejectsNonNumericCustomRole(t *testing.T) {
	h, _ := newTeamHandlers(t)
	rc := adminContext(7, 42)
	rc.Validated = map[string]interface{}{"role": "MEMBER", "customRoleId": "abc"}

	r := httptest.NewRequest("PATCH", "/users/team/8/role", nil)
	r = mux.SetURLVars(r, map[string]string{"memberId": "8"})
	r = withRequestContext(r, rc)
	rec := httptest.NewRecorder()
	h.UpdateMemberRole(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "customRoleId")
}

func TestBulkRemoveRejectsNonNumericIDs(t *testing.T) {
	h, _ := newTeamHandlers(t)
	rc := adminContext(7, 42)
	rc.Validated = map[string]interface{}{"memberIds": []interface{}{"8", "not-a-number"}}

	r := withRequestContext(httptest.NewRequest("DELETE", "/users/team/bulk", nil), rc)
	rec := httptest.NewRecorder()
	h.BulkRemoveMembers(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "memberIds")
}

func TestRemoveMemberRejectsBadPathParam(t *testing.T) {
	h, _ := newTeamHandlers(t)
	rc := adminContext(7, 42)

	r := httptest.NewRequest("DELETE", "/users/team/abc", nil)
	r = mux.SetURLVars(r, map[string]string{"memberId": "abc"})
	r = withRequestContext(r, rc)
	rec := httptest.NewRecorder()
	h.RemoveMember(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
