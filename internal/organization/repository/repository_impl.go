package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/hostfolio/hostfolio/internal/clock"
	"github.com/hostfolio/hostfolio/internal/organization/domain"
	"gorm.io/gorm"
)

type repo struct {
	clock clock.Clock
}

func Provide(clk clock.Clock) domain.Repository {
	return &repo{clock: clk}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	var item domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, status, contact_email, billing_customer_id, metadata, created_at, updated_at
		 FROM organizations
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByBillingCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.Organization, error) {
	var items []domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, status, contact_email, billing_customer_id, metadata, created_at, updated_at
		 FROM organizations
		 WHERE billing_customer_id = ?
		 LIMIT 2`,
		customerID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return &items[0], nil
	default:
		// The unique index should prevent this; guard against legacy rows.
		return nil, domain.ErrAmbiguousCustomer
	}
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.PublicationStatus, to domain.PublicationStatus) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		to,
		r.clock.Now(),
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, to domain.PublicationStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		to,
		r.clock.Now(),
		id,
	).Error
}
