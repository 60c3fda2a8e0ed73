package tenant

import (
	"context"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/audit"
	"github.com/meridianhq/meridian/pkg/rbac"
)

// captureSink records audit entries for assertions.
type captureSink struct {
	entries []*audit.Entry
}

func (s *captureSink) Record(ctx context.Context, entry *audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *captureSink) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	sink := &captureSink{}
	recorder := audit.NewRecorder(sink, log, nil)
	return NewService(db, NewPostgresRepository(db), recorder), mock, sink
}

func actor(userID, companyID int64, role rbac.Tier) *Context {
	return &Context{
		UserID:    userID,
		CompanyID: companyID,
		Membership: &Membership{
			UserID: userID, CompanyID: companyID, Role: role,
		},
	}
}

func expectLockedMembers(mock sqlmock.Sqlmock, companyID int64, members [][]driverValue) {
	rows := sqlmock.NewRows([]string{"user_id", "role"})
	for _, m := range members {
		rows.AddRow(m[0], m[1])
	}
	mock.ExpectQuery("SELECT user_id, role").
		WithArgs(companyID).
		WillReturnRows(rows)
}

type driverValue = interface{}

func TestRemoveMemberSelf(t *testing.T) {
	svc, mock, _ := newTestService(t)

	err := svc.RemoveMember(context.Background(), actor(11, 42, rbac.TierAdmin), 11)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindSelfRemovalForbidden))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberNotFound(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "ADMIN"},
		{int64(12), "OWNER"},
	})
	mock.ExpectRollback()

	err := svc.RemoveMember(context.Background(), actor(11, 42, rbac.TierAdmin), 99)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberLastOwner(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "ADMIN"},
		{int64(12), "OWNER"},
	})
	mock.ExpectRollback()

	err := svc.RemoveMember(context.Background(), actor(11, 42, rbac.TierAdmin), 12)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindLastOwnerViolation))
	assert.Empty(t, sink.entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberSuccess(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "OWNER"},
		{int64(12), "OWNER"},
		{int64(13), "MEMBER"},
	})
	mock.ExpectExec("DELETE FROM memberships").
		WithArgs(int64(42), int64(13)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.RemoveMember(context.Background(), actor(11, 42, rbac.TierOwner), 13)
	require.NoError(t, err)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, "member_removed", sink.entries[0].Action)
	assert.Equal(t, int64(42), sink.entries[0].CompanyID)
	assert.Equal(t, int64(13), sink.entries[0].Metadata["memberId"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveOwnerWithAnotherOwnerRemaining(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "OWNER"},
		{int64(12), "OWNER"},
	})
	mock.ExpectExec("DELETE FROM memberships").
		WithArgs(int64(42), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.RemoveMember(context.Background(), actor(11, 42, rbac.TierOwner), 12)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkRemoveAtomicOwnerGuard(t *testing.T) {
	svc, mock, sink := newTestService(t)

	// Two owners; removing both would leave the company ownerless, so the
	// whole batch is rejected and nothing is deleted.
	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "ADMIN"},
		{int64(12), "OWNER"},
		{int64(13), "OWNER"},
	})
	mock.ExpectRollback()

	err := svc.BulkRemove(context.Background(), actor(11, 42, rbac.TierAdmin), []int64{12, 13})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindLastOwnerViolation))
	assert.Empty(t, sink.entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkRemoveUnknownMemberFailsBatch(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "OWNER"},
		{int64(12), "MEMBER"},
	})
	mock.ExpectRollback()

	err := svc.BulkRemove(context.Background(), actor(11, 42, rbac.TierOwner), []int64{12, 99})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkRemoveSuccess(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "OWNER"},
		{int64(12), "OWNER"},
		{int64(13), "MEMBER"},
		{int64(14), "VIEWER"},
	})
	mock.ExpectExec("DELETE FROM memberships").
		WithArgs(int64(42), pq.Array([]int64{12, 13})).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := svc.BulkRemove(context.Background(), actor(11, 42, rbac.TierOwner), []int64{12, 13})
	require.NoError(t, err)

	// One enumerating entry for the whole batch
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "members_bulk_removed", sink.entries[0].Action)
	assert.Equal(t, []int64{12, 13}, sink.entries[0].Metadata["memberIds"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkRemoveIncludesSelf(t *testing.T) {
	svc, mock, _ := newTestService(t)

	err := svc.BulkRemove(context.Background(), actor(11, 42, rbac.TierOwner), []int64{12, 11})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindSelfRemovalForbidden))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkRemoveEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.BulkRemove(context.Background(), actor(11, 42, rbac.TierOwner), nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestUpdateRoleLastOwnerDemotion(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "OWNER"},
		{int64(12), "MEMBER"},
	})
	mock.ExpectRollback()

	err := svc.UpdateRole(context.Background(), actor(11, 42, rbac.TierOwner), 11, rbac.BuiltIn(rbac.TierAdmin))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindLastOwnerViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRoleSuccess(t *testing.T) {
	svc, mock, sink := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "OWNER"},
		{int64(12), "MEMBER"},
	})
	mock.ExpectExec("UPDATE memberships").
		WithArgs("ADMIN", nil, int64(42), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.UpdateRole(context.Background(), actor(11, 42, rbac.TierOwner), 12, rbac.BuiltIn(rbac.TierAdmin))
	require.NoError(t, err)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, "member_role_updated", sink.entries[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRoleUnknownCustomRole(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "OWNER"},
		{int64(12), "MEMBER"},
	})
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(7), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := svc.UpdateRole(context.Background(), actor(11, 42, rbac.TierOwner), 12, rbac.Custom(rbac.TierMember, 7))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRoleMemberNotInTenant(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectBegin()
	expectLockedMembers(mock, 42, [][]driverValue{
		{int64(11), "OWNER"},
	})
	mock.ExpectRollback()

	err := svc.UpdateRole(context.Background(), actor(11, 42, rbac.TierOwner), 55, rbac.BuiltIn(rbac.TierAdmin))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
