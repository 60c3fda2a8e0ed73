package billing

import "time"

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Plan represents a subscription plan tier
type Plan string

const (
	PlanFree       Plan = "free"
	PlanTeam       Plan = "team"
	PlanEnterprise Plan = "enterprise"
)

// Subscription is a company's billing state.
type Subscription struct {
	ID        int64              `json:"id"`
	CompanyID int64              `json:"companyId"`
	Plan      Plan               `json:"plan"`
	Status    SubscriptionStatus `json:"status"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Event is a parsed provider webhook event.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CompanyID int64  `json:"companyId,string"`
	Plan      Plan   `json:"plan,omitempty"`
}

// Event types the processor understands. Unknown types are acknowledged and
// skipped.
const (
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventPaymentFailed        = "payment.failed"
	EventPaymentSucceeded     = "payment.succeeded"
)
