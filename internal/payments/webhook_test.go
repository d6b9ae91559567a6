package payments

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const testSecret = "whsec_test"

func signedEvent(t *testing.T, eventType stripe.EventType) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(&stripe.CheckoutSession{ID: "cs_test_1"})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	payload, err := json.Marshal(&stripe.Event{
		ID:         "evt_1",
		Type:       eventType,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: raw},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, signatureHeader(payload, testSecret, time.Now().Unix())
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Unix(ts, 0),
	}).Header
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	payload, header := signedEvent(t, stripe.EventTypeCheckoutSessionCompleted)

	event, err := NewWebhookVerifier(testSecret).Verify(payload, header)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if event.ID != "evt_1" || event.Type != stripe.EventTypeCheckoutSessionCompleted {
		t.Errorf("unexpected event %s %s", event.ID, event.Type)
	}
}

func TestVerifyRejects(t *testing.T) {
	payload, header := signedEvent(t, stripe.EventTypeCheckoutSessionCompleted)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '

	tests := []struct {
		name    string
		secret  string
		payload []byte
		header  string
	}{
		{"missing header", testSecret, payload, ""},
		{"garbage header", testSecret, payload, "t=1,v1=invalid"},
		{"wrong secret", "whsec_other", payload, header},
		{"tampered body", testSecret, tampered, header},
		{"stale timestamp", testSecret, payload, signatureHeader(payload, testSecret, time.Now().Add(-time.Hour).Unix())},
		{"no secret configured", "", payload, header},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWebhookVerifier(tt.secret).Verify(tt.payload, tt.header)
			if apperrors.KindOf(err) != apperrors.KindSignatureInvalid {
				t.Errorf("expected SignatureInvalid, got %v", err)
			}
		})
	}
}
