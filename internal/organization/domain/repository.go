package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	// FindByBillingCustomerID resolves the tenant owning a billing customer.
	// Returns nil when no tenant matches and ErrAmbiguousCustomer when more
	// than one does.
	FindByBillingCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*Organization, error)
	// TransitionStatus flips status only when the current value is one of
	// from. Reports whether a row actually moved.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []PublicationStatus, to PublicationStatus) (bool, error)
	// SetStatus writes status unconditionally. Reserved for decisive events.
	SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, to PublicationStatus) error
}
