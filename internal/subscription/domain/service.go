package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// UpsertRequest carries the provider-reported subscription state to reconcile.
type UpsertRequest struct {
	OrgID                  snowflake.ID
	ProviderSubscriptionID string
	ProviderCustomerID     string
	Status                 Status
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	SetupFeeAmount         *int64
	SetupFeePaidAt         *time.Time
}

// Service owns subscription records. All writes are idempotent against
// current database state, never against event arrival order.
type Service interface {
	GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)
	GetByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Subscription, error)
	// Upsert returns the status the record holds after the write, which may
	// differ from the requested status when cancellation already won.
	Upsert(ctx context.Context, req UpsertRequest) (Status, error)
	Cancel(ctx context.Context, providerSubscriptionID string, canceledAt time.Time) error
	RefreshPeriod(ctx context.Context, providerSubscriptionID string, start, end *time.Time) error
}

var (
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)

// MapUpstreamStatus translates a provider subscription status to the internal
// state set. Unknown upstream values land in pending rather than failing the
// event.
func MapUpstreamStatus(upstream string) Status {
	switch upstream {
	case "active", "trialing":
		return StatusActive
	case "canceled", "unpaid":
		return StatusPaused
	default:
		return StatusPending
	}
}
