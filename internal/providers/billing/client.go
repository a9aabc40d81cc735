// Package billing holds the outbound client for the billing provider's API.
// Webhook payloads carry partial state; handlers that need the authoritative
// subscription record fetch it here instead of trusting the delivery.
package billing

import (
	"context"
	"time"
)

// ProviderSubscription is the provider's authoritative view of one
// subscription.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	Metadata           map[string]string
}

type Client interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}
