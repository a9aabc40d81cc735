package repository

import (
	"context"
	"time"

	"github.com/hostfolio/hostfolio/internal/clock"
	"github.com/hostfolio/hostfolio/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct {
	clock clock.Clock
}

func Provide(clk clock.Clock) domain.Repository {
	return &repo{clock: clk}
}

const selectColumns = `id, org_id, provider_subscription_id, provider_customer_id, status,
	current_period_start, current_period_end, setup_fee_amount, setup_fee_paid_at,
	canceled_at, notes, created_at, updated_at`

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM subscriptions
		 WHERE provider_subscription_id = ?
		 LIMIT 1`,
		providerSubscriptionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderCustomerID(ctx context.Context, db *gorm.DB, providerCustomerID string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM subscriptions
		 WHERE provider_customer_id = ?
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		providerCustomerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// Upsert keeps the cancelled status sticky inside the statement itself so a
// stale update racing a deletion cannot resurrect the record.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) (domain.Status, error) {
	var status domain.Status
	err := db.WithContext(ctx).Raw(
		`INSERT INTO subscriptions (
			id, org_id, provider_subscription_id, provider_customer_id, status,
			current_period_start, current_period_end, setup_fee_amount, setup_fee_paid_at,
			canceled_at, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_subscription_id) DO UPDATE SET
			provider_customer_id = CASE WHEN excluded.provider_customer_id <> '' THEN excluded.provider_customer_id ELSE subscriptions.provider_customer_id END,
			status = CASE WHEN subscriptions.status = 'cancelled' THEN subscriptions.status ELSE excluded.status END,
			current_period_start = COALESCE(excluded.current_period_start, subscriptions.current_period_start),
			current_period_end = COALESCE(excluded.current_period_end, subscriptions.current_period_end),
			setup_fee_amount = COALESCE(excluded.setup_fee_amount, subscriptions.setup_fee_amount),
			setup_fee_paid_at = COALESCE(excluded.setup_fee_paid_at, subscriptions.setup_fee_paid_at),
			updated_at = excluded.updated_at
		RETURNING status`,
		sub.ID,
		sub.OrgID,
		sub.ProviderSubscriptionID,
		sub.ProviderCustomerID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.SetupFeeAmount,
		sub.SetupFeePaidAt,
		sub.CanceledAt,
		sub.Notes,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Scan(&status).Error
	if err != nil {
		return "", err
	}
	return status, nil
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, providerSubscriptionID string, canceledAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, canceled_at = COALESCE(canceled_at, ?), updated_at = ?
		 WHERE provider_subscription_id = ?`,
		domain.StatusCancelled,
		canceledAt,
		canceledAt,
		providerSubscriptionID,
	).Error
}

func (r *repo) UpdatePeriod(ctx context.Context, db *gorm.DB, providerSubscriptionID string, start, end *time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET current_period_start = COALESCE(?, current_period_start),
		     current_period_end = COALESCE(?, current_period_end),
		     updated_at = ?
		 WHERE provider_subscription_id = ?`,
		start,
		end,
		r.clock.Now(),
		providerSubscriptionID,
	).Error
}
