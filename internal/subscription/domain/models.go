// Package domain contains persistence models for provider-backed subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status represents the internal lifecycle state of a subscription.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Subscription mirrors the billing provider's view of a tenant's plan.
// Cancellation is a status value; rows are never deleted.
type Subscription struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID                  snowflake.ID `gorm:"not null;index" json:"org_id"`
	ProviderSubscriptionID string       `gorm:"type:text;not null;uniqueIndex:ux_subscriptions_provider_subscription" json:"provider_subscription_id"`
	ProviderCustomerID     string       `gorm:"type:text;not null;default:'';index" json:"provider_customer_id"`
	Status                 Status       `gorm:"type:text;not null;default:'pending'" json:"status"`
	CurrentPeriodStart     *time.Time   `gorm:"" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time   `gorm:"" json:"current_period_end,omitempty"`
	SetupFeeAmount         *int64       `gorm:"" json:"setup_fee_amount,omitempty"`
	SetupFeePaidAt         *time.Time   `gorm:"" json:"setup_fee_paid_at,omitempty"`
	CanceledAt             *time.Time   `gorm:"" json:"canceled_at,omitempty"`
	Notes                  string       `gorm:"type:text;not null;default:''" json:"notes"`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
