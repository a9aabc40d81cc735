package domain

import "errors"

var (
	// Rejected at the edge with a client error.
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrSignatureExpired = errors.New("signature_expired")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrUnknownProvider  = errors.New("unknown_provider")

	// Deployment misconfiguration; never a caller problem.
	ErrMissingSecret = errors.New("missing_webhook_secret")

	// Acknowledged with success so the provider stops redelivering.
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrRetriesExhausted      = errors.New("retries_exhausted")

	// Transient; the provider should redeliver.
	ErrMissingCorrelation  = errors.New("missing_correlation")
	ErrStoreUnavailable    = errors.New("store_unavailable")
	ErrProviderUnavailable = errors.New("provider_unavailable")
)
