package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gig-marketplace/backend/internal/events"
	"github.com/gig-marketplace/backend/internal/metrics"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/gig-marketplace/backend/internal/rbac"
	"github.com/gig-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transition sources recorded in metrics and audit entries.
const (
	SourceUser      = "user"
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
)

// Settlement applies processor outcomes to a payment and its offer. Payment
// and offer are written in one transaction, payment first. Every write is a
// conditional transition, so replays and out-of-order deliveries are no-ops.
type Settlement struct {
	offers   OfferStore
	payments PaymentStore
	tx       TxRunner
	audit    AuditLogger
	notifier events.Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewSettlement(
	offers OfferStore,
	payments PaymentStore,
	tx TxRunner,
	audit AuditLogger,
	notifier events.Notifier,
	m *metrics.Metrics,
	log *zap.Logger,
) *Settlement {
	return &Settlement{
		offers:   offers,
		payments: payments,
		tx:       tx,
		audit:    audit,
		notifier: notifier,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// SettlementResult reports what a settlement step actually changed.
type SettlementResult struct {
	Payment      *models.Payment
	Offer        *models.Offer
	PaymentMoved bool
	OfferMoved   bool
	prevOffer    string
	prevPayment  string
}

func (r *SettlementResult) Changed() bool {
	return r.PaymentMoved || r.OfferMoved
}

// MarkPaid moves the payment to succeeded. With startWork set, the offer is
// then moved accepted -> in_progress, also when the payment was already
// succeeded by an earlier event.
func (s *Settlement) MarkPaid(ctx context.Context, payment *models.Payment, intentID string, startWork bool, source string) (*SettlementResult, error) {
	now := s.now().UTC()
	res := &SettlementResult{prevPayment: payment.Status}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		t := models.PaymentTransition{To: models.PaymentStatusSucceeded, At: now}
		if intentID != "" {
			t.PaymentIntentID = &intentID
		}
		p, moved, err := s.transitionPayment(ctx, payment.ID, t)
		if err != nil {
			return err
		}
		res.Payment, res.PaymentMoved = p, moved

		if !startWork || p.Status != models.PaymentStatusSucceeded {
			return nil
		}
		return s.startWork(ctx, p, now, res)
	})
	if err != nil {
		return nil, err
	}

	s.afterSettlement(ctx, res, source, "payment_succeeded")
	return res, nil
}

// StartWork moves the offer of a succeeded payment from accepted to in_progress.
func (s *Settlement) StartWork(ctx context.Context, payment *models.Payment, source string) (*SettlementResult, error) {
	res := &SettlementResult{Payment: payment, prevPayment: payment.Status}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.startWork(ctx, payment, s.now().UTC(), res)
	})
	if err != nil {
		return nil, err
	}
	s.afterSettlement(ctx, res, source, "offer_work_started")
	return res, nil
}

func (s *Settlement) startWork(ctx context.Context, p *models.Payment, now time.Time, res *SettlementResult) error {
	o, err := s.offers.Transition(ctx, p.OfferID, models.OfferTransition{
		From: []string{models.OfferStatusAccepted},
		To:   models.OfferStatusInProgress,
		At:   now,
	})
	if err == nil {
		res.Offer, res.OfferMoved, res.prevOffer = o, true, models.OfferStatusAccepted
		return nil
	}
	if !errors.Is(err, repositories.ErrStaleState) {
		return fmt.Errorf("start work on offer %s: %w", p.OfferID, err)
	}

	current, err := s.offers.GetByID(ctx, p.OfferID)
	if err != nil {
		return fmt.Errorf("reload offer %s: %w", p.OfferID, err)
	}
	res.Offer = current
	if current.Status == models.OfferStatusCancelled || current.Status == models.OfferStatusRejected {
		s.log.Error("payment succeeded for a closed offer, refund required",
			zap.String("payment_id", p.ID.String()),
			zap.String("offer_id", current.ID.String()),
			zap.String("offer_status", current.Status))
	}
	return nil
}

// MarkFailed moves a pending payment to failed. The offer stays accepted so
// the buyer can retry checkout.
func (s *Settlement) MarkFailed(ctx context.Context, payment *models.Payment, reason, source string) (*SettlementResult, error) {
	t := models.PaymentTransition{To: models.PaymentStatusFailed, At: s.now().UTC()}
	if reason != "" {
		t.FailureReason = &reason
	}
	return s.paymentOnly(ctx, payment, t, source, "payment_failed")
}

// MarkExpired moves a pending payment to expired.
func (s *Settlement) MarkExpired(ctx context.Context, payment *models.Payment, source string) (*SettlementResult, error) {
	t := models.PaymentTransition{To: models.PaymentStatusExpired, At: s.now().UTC()}
	return s.paymentOnly(ctx, payment, t, source, "payment_expired")
}

func (s *Settlement) paymentOnly(ctx context.Context, payment *models.Payment, t models.PaymentTransition, source, action string) (*SettlementResult, error) {
	res := &SettlementResult{prevPayment: payment.Status}
	p, moved, err := s.transitionPayment(ctx, payment.ID, t)
	if err != nil {
		return nil, err
	}
	res.Payment, res.PaymentMoved = p, moved
	s.afterSettlement(ctx, res, source, action)
	return res, nil
}

// MarkRefunded moves a succeeded payment to refunded and cancels its offer
// when the offer is still open.
func (s *Settlement) MarkRefunded(ctx context.Context, payment *models.Payment, refundID string, actor *Actor, source string) (*SettlementResult, error) {
	now := s.now().UTC()
	res := &SettlementResult{prevPayment: payment.Status}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		t := models.PaymentTransition{To: models.PaymentStatusRefunded, At: now}
		if refundID != "" {
			t.RefundID = &refundID
		}
		p, moved, err := s.transitionPayment(ctx, payment.ID, t)
		if err != nil {
			return err
		}
		res.Payment, res.PaymentMoved = p, moved
		if p.Status != models.PaymentStatusRefunded {
			return nil
		}

		before, err := s.offers.GetByID(ctx, p.OfferID)
		if err != nil {
			return fmt.Errorf("load offer %s: %w", p.OfferID, err)
		}
		res.Offer = before
		if !models.IsRefundCancellable(before.Status) {
			return nil
		}
		o, err := s.offers.Transition(ctx, p.OfferID, models.OfferTransition{
			From: []string{before.Status},
			To:   models.OfferStatusCancelled,
			At:   now,
		})
		if errors.Is(err, repositories.ErrStaleState) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cancel refunded offer %s: %w", p.OfferID, err)
		}
		res.Offer, res.OfferMoved, res.prevOffer = o, true, before.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterSettlementBy(ctx, res, source, "payment_refunded", actor)
	return res, nil
}

// transitionPayment applies t and reports whether the row moved. A stale
// transition returns the current row unchanged.
func (s *Settlement) transitionPayment(ctx context.Context, id uuid.UUID, t models.PaymentTransition) (*models.Payment, bool, error) {
	p, err := s.payments.Transition(ctx, id, t)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, repositories.ErrStaleState) {
		return nil, false, fmt.Errorf("payment %s to %s: %w", id, t.To, err)
	}
	current, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("reload payment %s: %w", id, err)
	}
	if current.Status != t.To {
		s.log.Info("payment transition skipped",
			zap.String("payment_id", id.String()),
			zap.String("status", current.Status),
			zap.String("requested", t.To))
	}
	return current, false, nil
}

func (s *Settlement) afterSettlement(ctx context.Context, res *SettlementResult, source, action string) {
	s.afterSettlementBy(ctx, res, source, action, nil)
}

// afterSettlementBy records audit entries, metrics and relay events for a
// committed settlement step.
func (s *Settlement) afterSettlementBy(ctx context.Context, res *SettlementResult, source, action string, actor *Actor) {
	actorType, actorID := auditActor(source, actor)

	if res.PaymentMoved {
		p := res.Payment
		s.metrics.PaymentTransition(p.Status, source)
		_ = s.audit.Log(ctx, models.AuditLog{
			ActorUserID: actorID,
			ActorType:   actorType,
			Action:      action,
			EntityType:  models.EntityPayment,
			EntityID:    &p.ID,
			Meta:        map[string]any{"old_status": res.prevPayment, "new_status": p.Status, "source": source},
		})
		s.notifier.Emit(ctx, paymentRooms(p), events.EventPaymentUpdated, paymentPayload(p))
	}
	if res.OfferMoved {
		o := res.Offer
		s.metrics.OfferTransition(res.prevOffer, o.Status)
		_ = s.audit.Log(ctx, models.AuditLog{
			ActorUserID: actorID,
			ActorType:   actorType,
			Action:      fmt.Sprintf("offer_status_%s_to_%s", res.prevOffer, o.Status),
			EntityType:  models.EntityOffer,
			EntityID:    &o.ID,
			Meta:        map[string]any{"old_status": res.prevOffer, "new_status": o.Status, "source": source},
		})
		s.notifier.Emit(ctx, offerRooms(o), events.EventOfferUpdated, offerPayload(o))
	}
}

func auditActor(source string, actor *Actor) (string, *uuid.UUID) {
	if actor != nil {
		id := actor.UserID
		if rbac.IsAdmin(actor.Role) {
			return models.ActorTypeAdmin, &id
		}
		return models.ActorTypeUser, &id
	}
	switch source {
	case SourceWebhook:
		return models.ActorTypeWebhook, nil
	default:
		return models.ActorTypeSystem, nil
	}
}

func offerRooms(o *models.Offer) []string {
	return []string{
		events.UserRoom(o.BuyerID),
		events.UserRoom(o.SellerID),
		events.ConversationRoom(o.ConversationID),
	}
}

func paymentRooms(p *models.Payment) []string {
	return []string{events.UserRoom(p.BuyerID), events.UserRoom(p.SellerID)}
}

func offerPayload(o *models.Offer) map[string]any {
	return map[string]any{
		"offer_id":        o.ID.String(),
		"conversation_id": o.ConversationID.String(),
		"status":          o.Status,
		"offer":           o,
	}
}

func paymentPayload(p *models.Payment) map[string]any {
	return map[string]any{
		"payment_id": p.ID.String(),
		"offer_id":   p.OfferID.String(),
		"status":     p.Status,
		"amount":     p.Amount.String(),
		"currency":   p.Currency,
	}
}
