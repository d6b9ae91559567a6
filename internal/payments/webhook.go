package payments

import (
	"time"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const SignatureHeader = "Stripe-Signature"

// WebhookVerifier authenticates webhook payloads against the endpoint secret.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify checks the signature over the unmodified raw body and decodes the event.
func (v *WebhookVerifier) Verify(payload []byte, sigHeader string) (stripe.Event, error) {
	if v == nil || v.secret == "" {
		return stripe.Event{}, apperrors.New(apperrors.KindSignatureInvalid, "webhook secret is not configured")
	}
	if sigHeader == "" {
		return stripe.Event{}, apperrors.New(apperrors.KindSignatureInvalid, "stripe signature missing")
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, apperrors.Wrap(apperrors.KindSignatureInvalid, err, "verify signature")
	}
	return event, nil
}
