package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*Subscription, error)
	FindByProviderCustomerID(ctx context.Context, db *gorm.DB, providerCustomerID string) (*Subscription, error)
	// Upsert inserts or updates the row keyed by provider_subscription_id.
	// A stored cancelled status is preserved atomically; the resulting status
	// is returned so callers can decide whether tenant state may move.
	Upsert(ctx context.Context, db *gorm.DB, sub *Subscription) (Status, error)
	// MarkCancelled is idempotent; the first cancellation timestamp wins.
	MarkCancelled(ctx context.Context, db *gorm.DB, providerSubscriptionID string, canceledAt time.Time) error
	UpdatePeriod(ctx context.Context, db *gorm.DB, providerSubscriptionID string, start, end *time.Time) error
}
