package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"storefront-be/internal/db"
)

type Repository interface {
	// SaveWebhook stores a delivery keyed by (provider, event_id). A redelivery
	// of an event that is still unprocessed returns the same id so it can be
	// retried; processed reports an event already fully handled.
	SaveWebhook(
		ctx context.Context,
		provider string,
		eventID string,
		eventType string,
		externalID string,
		payload json.RawMessage,
		signatureValid bool,
	) (webhookID int64, processed bool, err error)

	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	// MarkWebhookFailed records a retryable failure; the event stays open.
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
	// MarkWebhookRejected closes an event that must not be retried.
	MarkWebhookRejected(ctx context.Context, webhookID int64, reason string) error
	GetWebhook(ctx context.Context, webhookID int64) (*Webhook, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(db db.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) SaveWebhook(
	ctx context.Context,
	provider string,
	eventID string,
	eventType string,
	externalID string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		external_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO UPDATE SET attempts = payment_webhooks.attempts + 1,
		process_error = NULL
	WHERE payment_webhooks.processed_at IS NULL
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		provider,
		eventID,
		eventType,
		externalID,
		signatureValid,
		[]byte(payload),
	).Scan(&id)

	if err != nil {
		// conflict with a processed row updates nothing
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	const q = `
	UPDATE payment_webhooks
	SET processed_at = now(), process_error = NULL
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}

func (r *repository) MarkWebhookRejected(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE payment_webhooks
	SET process_error = $2, processed_at = now()
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}

func (r *repository) GetWebhook(ctx context.Context, webhookID int64) (*Webhook, error) {
	const q = `
	SELECT id, provider, event_id, event_type, external_id, signature_valid,
		attempts, processed_at, process_error, created_at
	FROM payment_webhooks
	WHERE id = $1;
	`

	var (
		w           Webhook
		processedAt sql.NullTime
		processErr  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, webhookID).Scan(
		&w.ID, &w.Provider, &w.EventID, &w.EventType, &w.ExternalID, &w.SignatureValid,
		&w.Attempts, &processedAt, &processErr, &w.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		w.ProcessedAt = &processedAt.Time
	}
	if processErr.Valid {
		w.ProcessError = &processErr.String
	}
	return &w, nil
}
