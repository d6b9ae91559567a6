package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/gig-marketplace/backend/internal/config"
	"github.com/gig-marketplace/backend/internal/metrics"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/gig-marketplace/backend/internal/payments"
	"github.com/gig-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/zap"
)

// WebhookResult is the acknowledgement body for a processor delivery.
type WebhookResult struct {
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Handled   bool   `json:"handled"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Error     string `json:"error,omitempty"`
}

type WebhookService struct {
	verifier   SignatureVerifier
	guard      *IdempotencyGuard
	events     WebhookEventStore
	payments   PaymentStore
	settlement *Settlement
	metrics    *metrics.Metrics
	cfg        *config.Config
	log        *zap.Logger
}

func NewWebhookService(
	verifier SignatureVerifier,
	guard *IdempotencyGuard,
	events WebhookEventStore,
	payments PaymentStore,
	settlement *Settlement,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *WebhookService {
	return &WebhookService{
		verifier:   verifier,
		guard:      guard,
		events:     events,
		payments:   payments,
		settlement: settlement,
		metrics:    m,
		cfg:        cfg,
		log:        log,
	}
}

// HandleWebhook verifies and applies one processor delivery. The signature
// is checked before anything is read or written.
func (s *WebhookService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*WebhookResult, error) {
	event, err := s.verifier.Verify(payload, sigHeader)
	if err != nil {
		s.metrics.WebhookEvent("unverified", metrics.OutcomeRejected)
		s.log.Warn("webhook signature rejected", zap.Error(err))
		return nil, err
	}

	eventType := string(event.Type)
	res := &WebhookResult{EventID: event.ID, EventType: eventType}
	log := s.log.With(zap.String("event_id", event.ID), zap.String("event_type", eventType))

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			log.Warn("idempotency guard unavailable", zap.Error(err))
		} else if seen {
			s.metrics.WebhookEvent(eventType, metrics.OutcomeDuplicate)
			res.Handled, res.Duplicate, res.Outcome = true, true, metrics.OutcomeDuplicate
			return res, nil
		}
	}

	rec, err := s.events.Record(ctx, event.ID, eventType, json.RawMessage(payload))
	if err != nil {
		s.release(ctx, event.ID, log)
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if rec.Processed() {
		s.metrics.WebhookEvent(eventType, metrics.OutcomeDuplicate)
		res.Handled, res.Duplicate, res.Outcome = true, true, metrics.OutcomeDuplicate
		return res, nil
	}

	outcome, err := s.Dispatch(ctx, event)
	if err != nil {
		s.metrics.WebhookEvent(eventType, metrics.OutcomeFailed)
		log.Error("webhook processing failed", zap.Error(err))
		if merr := s.events.MarkFailed(ctx, event.ID, err.Error()); merr != nil {
			log.Error("failed to record webhook failure", zap.Error(merr))
		}
		res.Outcome = metrics.OutcomeFailed
		res.Error = "processing failed"
		if s.cfg.RetryWebhookFailures() {
			s.release(ctx, event.ID, log)
			return res, apperrors.Wrap(apperrors.KindInternal, err, "webhook processing failed")
		}
		return res, nil
	}

	if err := s.events.MarkProcessed(ctx, event.ID); err != nil {
		log.Warn("failed to mark webhook processed", zap.Error(err))
	}
	s.metrics.WebhookEvent(eventType, outcome)
	res.Handled, res.Outcome = true, outcome
	return res, nil
}

func (s *WebhookService) release(ctx context.Context, eventID string, log *zap.Logger) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(context.WithoutCancel(ctx), eventID); err != nil {
		log.Warn("failed to release idempotency key", zap.Error(err))
	}
}

// Dispatch applies a verified event and returns its outcome. Unknown event
// types and events without a matching payment are ignored.
func (s *WebhookService) Dispatch(ctx context.Context, event stripe.Event) (string, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return "", fmt.Errorf("event %s has no data object", event.ID)
	}
	raw := event.Data.Raw

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.onSessionCompleted(ctx, raw, false)
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return s.onSessionCompleted(ctx, raw, true)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		return s.onSessionFailed(ctx, raw)
	case stripe.EventTypeCheckoutSessionExpired:
		return s.onSessionExpired(ctx, raw)
	case stripe.EventTypePaymentIntentSucceeded:
		return s.onIntentSucceeded(ctx, raw)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.onIntentFailed(ctx, raw)
	case stripe.EventTypeChargeRefunded:
		return s.onChargeRefunded(ctx, raw)
	default:
		s.log.Info("unhandled webhook event type", zap.String("event_type", string(event.Type)))
		return metrics.OutcomeIgnored, nil
	}
}

func (s *WebhookService) sessionPayment(ctx context.Context, raw json.RawMessage) (*payments.SessionSnapshot, *models.Payment, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, nil, fmt.Errorf("decode checkout session: %w", err)
	}
	snap := payments.SnapshotFromSession(&cs)
	p, err := s.payments.GetByCheckoutSession(ctx, snap.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		s.log.Warn("no payment for checkout session",
			zap.String("session_id", snap.ID),
			zap.String("offer_id", snap.Metadata[payments.MetaOfferID]))
		return snap, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get payment by session %s: %w", snap.ID, err)
	}
	return snap, p, nil
}

// onSessionCompleted settles a paid session. A completed session that is not
// yet paid (delayed payment methods) only records the intent id.
func (s *WebhookService) onSessionCompleted(ctx context.Context, raw json.RawMessage, asyncSucceeded bool) (string, error) {
	snap, p, err := s.sessionPayment(ctx, raw)
	if err != nil || p == nil {
		return metrics.OutcomeIgnored, err
	}

	if !asyncSucceeded && !snap.IsPaid() {
		if snap.PaymentIntentID != "" {
			if err := s.payments.AttachPaymentIntent(ctx, p.ID, snap.PaymentIntentID); err != nil {
				return "", fmt.Errorf("attach payment intent: %w", err)
			}
		}
		return metrics.OutcomeApplied, nil
	}

	res, err := s.settlement.MarkPaid(ctx, p, snap.PaymentIntentID, true, SourceWebhook)
	if err != nil {
		return "", err
	}
	return outcomeOf(res), nil
}

func (s *WebhookService) onSessionFailed(ctx context.Context, raw json.RawMessage) (string, error) {
	_, p, err := s.sessionPayment(ctx, raw)
	if err != nil || p == nil {
		return metrics.OutcomeIgnored, err
	}
	res, err := s.settlement.MarkFailed(ctx, p, "async payment failed", SourceWebhook)
	if err != nil {
		return "", err
	}
	return outcomeOf(res), nil
}

func (s *WebhookService) onSessionExpired(ctx context.Context, raw json.RawMessage) (string, error) {
	_, p, err := s.sessionPayment(ctx, raw)
	if err != nil || p == nil {
		return metrics.OutcomeIgnored, err
	}
	res, err := s.settlement.MarkExpired(ctx, p, SourceWebhook)
	if err != nil {
		return "", err
	}
	return outcomeOf(res), nil
}

// paymentIntentObject holds the fields read from payment_intent events.
type paymentIntentObject struct {
	ID               string            `json:"id"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"last_payment_error"`
}

// intentPayment finds the payment for an intent id, falling back to the
// offer_id metadata when the intent was never recorded.
func (s *WebhookService) intentPayment(ctx context.Context, intentID string, metadata map[string]string) (*models.Payment, error) {
	p, err := s.payments.GetByPaymentIntent(ctx, intentID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("get payment by intent %s: %w", intentID, err)
	}

	offerID, perr := uuid.Parse(metadata[payments.MetaOfferID])
	if perr != nil {
		s.log.Warn("no payment for payment intent", zap.String("payment_intent", intentID))
		return nil, nil
	}
	p, err = s.payments.GetActiveByOffer(ctx, offerID)
	if errors.Is(err, repositories.ErrNotFound) {
		s.log.Warn("no active payment for offer",
			zap.String("payment_intent", intentID),
			zap.String("offer_id", offerID.String()))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active payment for offer %s: %w", offerID, err)
	}
	return p, nil
}

func (s *WebhookService) onIntentSucceeded(ctx context.Context, raw json.RawMessage) (string, error) {
	var pi paymentIntentObject
	if err := json.Unmarshal(raw, &pi); err != nil {
		return "", fmt.Errorf("decode payment intent: %w", err)
	}
	p, err := s.intentPayment(ctx, pi.ID, pi.Metadata)
	if err != nil || p == nil {
		return metrics.OutcomeIgnored, err
	}
	res, err := s.settlement.MarkPaid(ctx, p, pi.ID, false, SourceWebhook)
	if err != nil {
		return "", err
	}
	return outcomeOf(res), nil
}

func (s *WebhookService) onIntentFailed(ctx context.Context, raw json.RawMessage) (string, error) {
	var pi paymentIntentObject
	if err := json.Unmarshal(raw, &pi); err != nil {
		return "", fmt.Errorf("decode payment intent: %w", err)
	}
	p, err := s.intentPayment(ctx, pi.ID, pi.Metadata)
	if err != nil || p == nil {
		return metrics.OutcomeIgnored, err
	}
	reason := "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
		reason = pi.LastPaymentError.Message
	}
	res, err := s.settlement.MarkFailed(ctx, p, reason, SourceWebhook)
	if err != nil {
		return "", err
	}
	return outcomeOf(res), nil
}

// chargeObject holds the fields read from charge.refunded events.
type chargeObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Refunded      bool   `json:"refunded"`
	Refunds       *struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"refunds"`
	Metadata map[string]string `json:"metadata"`
}

// onChargeRefunded mirrors refunds issued outside the refund operation, for
// example from the processor dashboard. Partial refunds are ignored.
func (s *WebhookService) onChargeRefunded(ctx context.Context, raw json.RawMessage) (string, error) {
	var ch chargeObject
	if err := json.Unmarshal(raw, &ch); err != nil {
		return "", fmt.Errorf("decode charge: %w", err)
	}
	if !ch.Refunded || ch.PaymentIntent == "" {
		return metrics.OutcomeIgnored, nil
	}

	p, err := s.intentPayment(ctx, ch.PaymentIntent, ch.Metadata)
	if err != nil || p == nil {
		return metrics.OutcomeIgnored, err
	}
	var refundID string
	if ch.Refunds != nil && len(ch.Refunds.Data) > 0 {
		refundID = ch.Refunds.Data[0].ID
	}
	res, err := s.settlement.MarkRefunded(ctx, p, refundID, nil, SourceWebhook)
	if err != nil {
		return "", err
	}
	return outcomeOf(res), nil
}

func outcomeOf(res *SettlementResult) string {
	if res.Changed() {
		return metrics.OutcomeApplied
	}
	return metrics.OutcomeDuplicate
}

// ReplayEvent re-dispatches a stored event without signature verification;
// the payload was verified when it was recorded.
func (s *WebhookService) ReplayEvent(ctx context.Context, rec models.WebhookEvent) (string, error) {
	var event stripe.Event
	if err := json.Unmarshal(rec.Payload, &event); err != nil {
		return "", fmt.Errorf("decode stored event %s: %w", rec.EventID, err)
	}
	if err := s.events.IncrementAttempts(ctx, rec.EventID); err != nil {
		return "", fmt.Errorf("count replay attempt: %w", err)
	}

	outcome, err := s.Dispatch(ctx, event)
	if err != nil {
		if merr := s.events.MarkFailed(ctx, rec.EventID, err.Error()); merr != nil {
			s.log.Error("failed to record webhook failure", zap.String("event_id", rec.EventID), zap.Error(merr))
		}
		s.metrics.WebhookEvent(rec.EventType, metrics.OutcomeFailed)
		return "", err
	}
	if err := s.events.MarkProcessed(ctx, rec.EventID); err != nil {
		return outcome, fmt.Errorf("mark replayed event processed: %w", err)
	}
	s.metrics.WebhookEvent(rec.EventType, outcome)
	return outcome, nil
}
