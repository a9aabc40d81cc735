package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service exposes the guarded tenant-status boundary consumed by the billing
// reconciler. The reconciler never writes tenant rows directly.
type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	ResolveByBillingCustomerID(ctx context.Context, customerID string) (*Organization, error)
	// Publish transitions draft|paused -> published. Reports whether the
	// tenant actually moved; a tenant held in another state is untouched.
	Publish(ctx context.Context, id snowflake.ID) (bool, error)
	// Pause transitions published -> paused.
	Pause(ctx context.Context, id snowflake.ID) (bool, error)
	// ForcePause sets paused unconditionally. Only subscription deletion is
	// decisive enough to use it.
	ForcePause(ctx context.Context, id snowflake.ID) error
}

var (
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrAmbiguousCustomer    = errors.New("ambiguous_billing_customer")
)
