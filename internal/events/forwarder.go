package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Forwarder pushes relay events to an external notification service
// (push, email) as JSON over HTTP.
type Forwarder struct {
	url        string
	httpClient *http.Client
	log        *zap.Logger
}

func NewForwarder(url string, timeout time.Duration, log *zap.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Forwarder{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type forwardBody struct {
	Event string         `json:"event"`
	Room  string         `json:"room"`
	Data  map[string]any `json:"data"`
}

func (f *Forwarder) Forward(ctx context.Context, event Event) error {
	body, err := json.Marshal(forwardBody{Event: event.Type, Room: event.Room, Data: event.Payload})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify service returned %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Handler adapts Forward to a subscriber callback. Failures are logged and
// dropped; relay delivery is best effort.
func (f *Forwarder) Handler(ctx context.Context) func(Event) {
	return func(event Event) {
		if err := f.Forward(ctx, event); err != nil {
			f.log.Warn("failed to forward notification",
				zap.String("event", event.Type),
				zap.String("room", event.Room),
				zap.Error(err),
			)
		}
	}
}
