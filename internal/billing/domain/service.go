package domain

import (
	"context"
	"net/http"
	"time"
)

// Ingest is the webhook edge: it verifies the delivery against the adapter
// for the named provider, translates the payload, and hands the canonical
// event to the processing engine.
type Ingest interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

// Service processes canonical billing events exactly once. ProcessEvent owns
// the idempotency claim, dispatch to the event handler, and retry
// bookkeeping when a handler fails.
type Service interface {
	ProcessEvent(ctx context.Context, event *BillingEvent) error
}

// Adapter translates one provider's webhook deliveries.
type Adapter interface {
	// Verify authenticates the raw delivery before anything is parsed.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse translates the payload into a canonical event. Events outside
	// the canonical set return ErrEventIgnored.
	Parse(ctx context.Context, payload []byte) (*BillingEvent, error)
}

// AdapterFactory builds an Adapter for one provider.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// AdapterConfig carries the per-provider settings an adapter factory needs.
type AdapterConfig struct {
	WebhookSecret      string
	SignatureTolerance time.Duration
}
