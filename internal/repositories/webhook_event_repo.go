package repositories

import (
	"context"
	"encoding/json"

	"github.com/gig-marketplace/backend/internal/db"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WebhookEventRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepo(pool *pgxpool.Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Record stores the event on first delivery and bumps the attempt counter on
// every redelivery. The returned row reflects prior processing outcomes.
func (r *WebhookEventRepo) Record(ctx context.Context, eventID, eventType string, payload json.RawMessage) (*models.WebhookEvent, error) {
	var e models.WebhookEvent
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO webhook_events (event_id, event_type, payload, attempts)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (event_id) DO UPDATE SET attempts = webhook_events.attempts + 1
		RETURNING event_id, event_type, payload, attempts, received_at, processed_at, processing_error
	`, eventID, eventType, []byte(payload)).Scan(&e.EventID, &e.EventType, &e.Payload, &e.Attempts,
		&e.ReceivedAt, &e.ProcessedAt, &e.ProcessingError)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *WebhookEventRepo) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE webhook_events SET processed_at = now(), processing_error = NULL WHERE event_id = $1
	`, eventID)
	return err
}

func (r *WebhookEventRepo) MarkFailed(ctx context.Context, eventID, reason string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE webhook_events SET processing_error = $1 WHERE event_id = $2 AND processed_at IS NULL
	`, reason, eventID)
	return err
}

// ListFailed returns unprocessed events with a recorded error and fewer than maxAttempts tries.
func (r *WebhookEventRepo) ListFailed(ctx context.Context, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT event_id, event_type, payload, attempts, received_at, processed_at, processing_error
		FROM webhook_events
		WHERE processed_at IS NULL AND processing_error IS NOT NULL AND attempts < $1
		ORDER BY received_at ASC LIMIT $2
	`, maxAttempts, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WebhookEvent
	for rows.Next() {
		var e models.WebhookEvent
		if err := rows.Scan(&e.EventID, &e.EventType, &e.Payload, &e.Attempts,
			&e.ReceivedAt, &e.ProcessedAt, &e.ProcessingError); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IncrementAttempts counts a replay made outside of processor delivery.
func (r *WebhookEventRepo) IncrementAttempts(ctx context.Context, eventID string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE webhook_events SET attempts = attempts + 1 WHERE event_id = $1
	`, eventID)
	return err
}
