package audit

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSinkRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink := NewPostgresSink(db)
	userID := int64(11)

	mock.ExpectQuery("INSERT INTO audit_log").
		WithArgs(int64(42), &userID, "member_removed", []byte(`{"memberId":7}`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

	entry := &Entry{
		Action:    "member_removed",
		UserID:    &userID,
		CompanyID: 42,
		Metadata:  map[string]interface{}{"memberId": 7},
	}
	require.NoError(t, sink.Record(context.Background(), entry))
	assert.Equal(t, int64(1), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type failingSink struct{ err error }

func (s failingSink) Record(ctx context.Context, entry *Entry) error { return s.err }

func TestRecorderSwallowsFailures(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	var failures int
	recorder := NewRecorder(failingSink{err: errors.New("connection reset")}, log, func() { failures++ })

	// Record never panics or propagates the failure
	recorder.Record(context.Background(), &Entry{Action: "role_updated", CompanyID: 1})
	assert.Equal(t, 1, failures)
}

func TestMultiSink(t *testing.T) {
	var recorded []*Entry
	ok := sinkFunc(func(ctx context.Context, e *Entry) error {
		recorded = append(recorded, e)
		return nil
	})
	failing := failingSink{err: errors.New("boom")}

	t.Run("all succeed", func(t *testing.T) {
		recorded = nil
		m := MultiSink{ok, ok}
		require.NoError(t, m.Record(context.Background(), &Entry{Action: "x", CompanyID: 1}))
		assert.Len(t, recorded, 2)
	})

	t.Run("first error returned", func(t *testing.T) {
		m := MultiSink{failing, ok}
		assert.Error(t, m.Record(context.Background(), &Entry{Action: "x", CompanyID: 1}))
	})
}

type sinkFunc func(ctx context.Context, entry *Entry) error

func (f sinkFunc) Record(ctx context.Context, entry *Entry) error { return f(ctx, entry) }
