package models

import (
	"encoding/json"
	"time"
)

// WebhookEvent is a verified processor event as received, plus its processing outcome.
type WebhookEvent struct {
	EventID         string          `json:"event_id"`
	EventType       string          `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
	Attempts        int             `json:"attempts"`
	ReceivedAt      time.Time       `json:"received_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	ProcessingError *string         `json:"processing_error,omitempty"`
}

func (e *WebhookEvent) Processed() bool {
	return e.ProcessedAt != nil
}
