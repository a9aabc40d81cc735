// Package domain defines the canonical billing event model and the webhook
// event ledger used for idempotency and retry bookkeeping.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Canonical event types. Adapters translate provider-specific event names
// into this set; everything else is ignored at parse time.
const (
	EventTypeSubscriptionUpserted = "subscription.upserted"
	EventTypeSubscriptionDeleted  = "subscription.deleted"
	EventTypePaymentFailed        = "payment.failed"
	EventTypePaymentSucceeded     = "payment.succeeded"
	EventTypeCheckoutCompleted    = "checkout.completed"
)

// BillingEvent is the provider-agnostic representation of a webhook event
// after adapter translation. Fields not supplied by the upstream payload are
// left zero; handlers fall back to database lookups for correlation.
type BillingEvent struct {
	Provider               string
	ProviderEventID        string
	Type                   string
	UpstreamType           string
	OrgID                  snowflake.ID
	ProviderSubscriptionID string
	ProviderCustomerID     string
	Status                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	SetupFeeAmount         *int64
	OccurredAt             time.Time
	RawPayload             datatypes.JSON
}

// EventRecord is one row of the webhook event ledger. The unique pair
// (provider, provider_event_id) is the idempotency key; processed marks the
// event as finished, whether it succeeded or exhausted its retries.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event" json:"provider_event_id"`
	EventType       string         `gorm:"type:text;not null" json:"event_type"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	Processed       bool           `gorm:"not null;default:false" json:"processed"`
	RetryCount      int            `gorm:"not null;default:0" json:"retry_count"`
	ErrorMessage    string         `gorm:"type:text;not null;default:''" json:"error_message"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	LastAttemptAt   *time.Time     `gorm:"" json:"last_attempt_at,omitempty"`
	ProcessedAt     *time.Time     `gorm:"" json:"processed_at,omitempty"`
	NextRetryAt     *time.Time     `gorm:"" json:"next_retry_at,omitempty"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "webhook_events" }
