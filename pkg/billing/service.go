package billing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/meridianhq/meridian/pkg/apperr"
	"github.com/meridianhq/meridian/pkg/audit"
)

// Service persists subscription state and applies webhook events.
type Service struct {
	db       *sql.DB
	recorder *audit.Recorder
}

// NewService creates a billing service.
func NewService(db *sql.DB, recorder *audit.Recorder) *Service {
	return &Service{db: db, recorder: recorder}
}

// GetSubscription returns a company's subscription. Companies without one
// are on the free plan.
func (s *Service) GetSubscription(ctx context.Context, companyID int64) (*Subscription, error) {
	sub := &Subscription{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, plan, status, updated_at
		FROM subscriptions
		WHERE company_id = $1`,
		companyID,
	).Scan(&sub.ID, &sub.CompanyID, &sub.Plan, &sub.Status, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return &Subscription{CompanyID: companyID, Plan: PlanFree, Status: SubscriptionStatusActive}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// ProcessEvent applies one provider event. The event id is claimed and the
// state transition applied in a single transaction, so a redelivered event
// observes its id already claimed and becomes a no-op. The first return
// reports whether the event was applied (false for duplicates and unknown
// event types).
func (s *Service) ProcessEvent(ctx context.Context, provider string, event *Event) (bool, error) {
	if event.ID == "" {
		return false, apperr.Validation(map[string]string{"id": "is required"})
	}
	if event.CompanyID <= 0 {
		return false, apperr.Validation(map[string]string{"companyId": "is required"})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, provider)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`,
		event.ID, provider,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event: %w", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	if claimed == 0 {
		// Already processed; acknowledge without reapplying
		return false, nil
	}

	applied, err := s.apply(ctx, tx, event)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit webhook event: %w", err)
	}

	if applied && s.recorder != nil {
		s.recorder.Record(ctx, &audit.Entry{
			Action:    "billing_event_applied",
			CompanyID: event.CompanyID,
			Metadata: map[string]interface{}{
				"eventId": event.ID,
				"type":    event.Type,
			},
		})
	}
	return applied, nil
}

func (s *Service) apply(ctx context.Context, tx *sql.Tx, event *Event) (bool, error) {
	switch event.Type {
	case EventSubscriptionUpdated:
		plan := event.Plan
		if plan == "" {
			plan = PlanFree
		}
		return true, s.upsert(ctx, tx, event.CompanyID, plan, SubscriptionStatusActive)

	case EventSubscriptionCanceled:
		return true, s.setStatus(ctx, tx, event.CompanyID, SubscriptionStatusCanceled)

	case EventPaymentFailed:
		return true, s.setStatus(ctx, tx, event.CompanyID, SubscriptionStatusPastDue)

	case EventPaymentSucceeded:
		return true, s.setStatus(ctx, tx, event.CompanyID, SubscriptionStatusActive)

	default:
		// Unknown types are acknowledged so the provider stops retrying
		return false, nil
	}
}

func (s *Service) upsert(ctx context.Context, tx *sql.Tx, companyID int64, plan Plan, status SubscriptionStatus) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (company_id, plan, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id) DO UPDATE
		SET plan = EXCLUDED.plan, status = EXCLUDED.status, updated_at = NOW()`,
		companyID, plan, status,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *Service) setStatus(ctx context.Context, tx *sql.Tx, companyID int64, status SubscriptionStatus) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (company_id, status)
		VALUES ($1, $2)
		ON CONFLICT (company_id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = NOW()`,
		companyID, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	return nil
}

// PruneProcessedEvents deletes processed-event records older than the given
// retention window. The maintenance worker runs this on a schedule.
func PruneProcessedEvents(ctx context.Context, db *sql.DB, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	res, err := db.ExecContext(ctx, `
		DELETE FROM webhook_events
		WHERE received_at < NOW() - make_interval(days => $1)`,
		retentionDays,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune webhook events: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read prune result: %w", err)
	}
	return pruned, nil
}
