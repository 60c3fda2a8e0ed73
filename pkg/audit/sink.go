package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry is one audit record. UserID is nil for system-initiated actions such
// as webhook processing.
type Entry struct {
	ID        int64                  `json:"id"`
	Action    string                 `json:"action"`
	UserID    *int64                 `json:"userId,omitempty"`
	CompanyID int64                  `json:"companyId"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Sink records audit entries.
type Sink interface {
	Record(ctx context.Context, entry *Entry) error
}

// PostgresSink appends entries to the audit_log table.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates a sink backed by the given database.
func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Record inserts the entry. The log is append-only; there is no update or
// delete path.
func (s *PostgresSink) Record(ctx context.Context, entry *Entry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO audit_log (company_id, user_id, action, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		entry.CompanyID, entry.UserID, entry.Action, encoded,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// List returns a tenant's entries, newest first.
func (s *PostgresSink) List(ctx context.Context, companyID int64, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, user_id, action, metadata, created_at
		FROM audit_log
		WHERE company_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		companyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry := &Entry{}
		var encoded []byte
		if err := rows.Scan(&entry.ID, &entry.CompanyID, &entry.UserID, &entry.Action, &encoded, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if err := json.Unmarshal(encoded, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// NoopSink discards every entry. Used in tests and when auditing is disabled.
type NoopSink struct{}

// Record implements Sink.
func (NoopSink) Record(ctx context.Context, entry *Entry) error { return nil }

// MultiSink fans entries out to several sinks, returning the first error.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(ctx context.Context, entry *Entry) error {
	for _, sink := range m {
		if err := sink.Record(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Recorder wraps a Sink with best-effort semantics: failures are logged via
// the operational logger and counted, never returned. Mutations call Record
// after their transaction commits.
type Recorder struct {
	sink      Sink
	log       *logrus.Logger
	onFailure func()
}

// NewRecorder creates a best-effort recorder. onFailure may be nil.
func NewRecorder(sink Sink, log *logrus.Logger, onFailure func()) *Recorder {
	if log == nil {
		log = logrus.New()
	}
	return &Recorder{sink: sink, log: log, onFailure: onFailure}
}

// Record writes the entry, swallowing failures.
func (r *Recorder) Record(ctx context.Context, entry *Entry) {
	if err := r.sink.Record(ctx, entry); err != nil {
		r.log.WithFields(logrus.Fields{
			"action":     entry.Action,
			"company_id": entry.CompanyID,
		}).WithError(err).Error("audit write failed")
		if r.onFailure != nil {
			r.onFailure()
		}
	}
}
