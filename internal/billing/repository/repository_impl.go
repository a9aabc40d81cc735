package repository

import (
	"context"
	"time"

	"github.com/hostfolio/hostfolio/internal/billing/domain"
	dbutil "github.com/hostfolio/hostfolio/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `id, provider, provider_event_id, event_type, payload,
	processed, retry_count, error_message, received_at, last_attempt_at,
	processed_at, next_retry_at`

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM webhook_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, record *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, provider_event_id, event_type, payload,
			processed, retry_count, error_message, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		record.ID,
		record.Provider,
		record.ProviderEventID,
		record.EventType,
		record.Payload,
		record.Processed,
		record.RetryCount,
		record.ErrorMessage,
		record.ReceivedAt,
	)
	if res.Error != nil {
		if dbutil.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, provider, providerEventID string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed = TRUE,
		     processed_at = ?,
		     error_message = '',
		     next_retry_at = NULL
		 WHERE provider = ? AND provider_event_id = ?`,
		processedAt,
		provider,
		providerEventID,
	).Error
}

func (r *repo) MarkFailedAttempt(ctx context.Context, db *gorm.DB, provider, providerEventID, errMsg string, attemptAt, nextRetryAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET retry_count = retry_count + 1,
		     error_message = ?,
		     last_attempt_at = ?,
		     next_retry_at = ?
		 WHERE provider = ? AND provider_event_id = ?`,
		errMsg,
		attemptAt,
		nextRetryAt,
		provider,
		providerEventID,
	).Error
}

func (r *repo) MarkTerminalFailure(ctx context.Context, db *gorm.DB, provider, providerEventID, errMsg string, attemptAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET retry_count = retry_count + 1,
		     processed = TRUE,
		     processed_at = ?,
		     error_message = ?,
		     last_attempt_at = ?,
		     next_retry_at = NULL
		 WHERE provider = ? AND provider_event_id = ?`,
		attemptAt,
		errMsg,
		attemptAt,
		provider,
		providerEventID,
	).Error
}
