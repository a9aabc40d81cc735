package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	// InsertEvent claims the (provider, provider_event_id) pair. It reports
	// false without error when another delivery already holds the claim.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error
	// MarkFailedAttempt increments retry_count and records the advisory
	// next_retry_at; the event stays unprocessed so redelivery re-runs it.
	MarkFailedAttempt(ctx context.Context, db *gorm.DB, provider, providerEventID, errMsg string, attemptAt, nextRetryAt time.Time) error
	// MarkTerminalFailure increments retry_count a final time and marks the
	// event processed so further redeliveries short-circuit.
	MarkTerminalFailure(ctx context.Context, db *gorm.DB, provider, providerEventID, errMsg string, attemptAt time.Time) error
}
