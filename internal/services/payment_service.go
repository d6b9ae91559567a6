package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/gig-marketplace/backend/internal/metrics"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/gig-marketplace/backend/internal/payments"
	"github.com/gig-marketplace/backend/internal/rbac"
	"github.com/gig-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentService struct {
	payments   PaymentStore
	offers     OfferStore
	gateway    CheckoutGateway
	settlement *Settlement
	metrics    *metrics.Metrics
	log        *zap.Logger
}

func NewPaymentService(
	payments PaymentStore,
	offers OfferStore,
	gateway CheckoutGateway,
	settlement *Settlement,
	m *metrics.Metrics,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		payments:   payments,
		offers:     offers,
		gateway:    gateway,
		settlement: settlement,
		metrics:    m,
		log:        log,
	}
}

// RefundPayment refunds a succeeded payment in full and cancels its offer.
// Nothing is written locally unless the processor accepted the refund.
func (s *PaymentService) RefundPayment(ctx context.Context, paymentID uuid.UUID, actor Actor, reason string) (*payments.RefundResult, error) {
	payment, err := s.getPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.SellerID != actor.UserID && !rbac.HasPermission(actor.Role, rbac.PermRefundAny) {
		return nil, apperrors.Forbidden("only the seller or an admin can refund this payment")
	}
	if payment.Status != models.PaymentStatusSucceeded {
		return nil, apperrors.InvalidState(models.EntityPayment, payment.Status, "only succeeded payments can be refunded")
	}
	if payment.StripePaymentIntentID == nil || *payment.StripePaymentIntentID == "" {
		return nil, apperrors.New(apperrors.KindRefundFailed, "payment has no processor reference").
			WithDetail("payment_id", payment.ID.String())
	}

	start := time.Now()
	refund, err := s.gateway.Refund(ctx, payments.RefundRequest{
		PaymentIntentID: *payment.StripePaymentIntentID,
		Reason:          reason,
		IdempotencyKey:  "refund:" + payment.ID.String(),
		Metadata: map[string]string{
			"payment_id":          payment.ID.String(),
			payments.MetaOfferID:  payment.OfferID.String(),
			"refund_reason":       reason,
			"refund_requested_by": actor.UserID.String(),
		},
	})
	s.metrics.ObserveGateway("refund", start, err)
	if err != nil {
		s.log.Warn("refund rejected by processor",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err))
		return nil, apperrors.Wrap(apperrors.KindRefundFailed, err, "refund failed").
			WithDetail("retryable", apperrors.KindOf(err) == apperrors.KindPaymentGateway)
	}

	if _, err := s.settlement.MarkRefunded(ctx, payment, refund.ID, &actor, SourceUser); err != nil {
		// The processor already refunded; the charge.refunded event or the
		// next refund attempt will converge the local state.
		s.log.Error("refund issued but local state not updated",
			zap.String("payment_id", payment.ID.String()),
			zap.String("refund_id", refund.ID),
			zap.Error(err))
		return nil, fmt.Errorf("record refund: %w", err)
	}

	s.log.Info("payment refunded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("refund_id", refund.ID),
		zap.String("refund_status", refund.Status))
	return refund, nil
}

type PaymentStatusView struct {
	Payment *models.Payment           `json:"payment"`
	Session *payments.SessionSnapshot `json:"session,omitempty"`
}

// GetPaymentStatus returns the local payment for a checkout session together
// with the processor's current view of the session when reachable.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, sessionID string, actor Actor) (*PaymentStatusView, error) {
	payment, err := s.payments.GetByCheckoutSession(ctx, sessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound(models.EntityPayment)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment by session: %w", err)
	}
	if err := s.checkViewer(payment, actor); err != nil {
		return nil, err
	}

	view := &PaymentStatusView{Payment: payment}
	start := time.Now()
	snap, err := s.gateway.RetrieveSession(ctx, sessionID)
	s.metrics.ObserveGateway("retrieve_session", start, err)
	if err != nil {
		s.log.Warn("retrieve checkout session failed", zap.String("session_id", sessionID), zap.Error(err))
		return view, nil
	}
	view.Session = snap
	return view, nil
}

// GetPaymentByOffer returns the most recent payment of an offer.
func (s *PaymentService) GetPaymentByOffer(ctx context.Context, offerID uuid.UUID, actor Actor) (*models.Payment, error) {
	offer, err := s.offers.GetByID(ctx, offerID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound(models.EntityOffer)
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	if !offer.IsParticipant(actor.UserID) && !rbac.HasPermission(actor.Role, rbac.PermViewAnyPayment) {
		return nil, apperrors.Forbidden("not a participant of this offer")
	}

	payment, err := s.payments.GetLatestByOffer(ctx, offerID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound(models.EntityPayment)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest payment: %w", err)
	}
	return payment, nil
}

type PaymentQuery struct {
	Role   string
	Status string
	Page   int
	Limit  int
}

type PaymentPage struct {
	Payments   []models.PaymentWithOffer `json:"payments"`
	Page       int                       `json:"page"`
	Limit      int                       `json:"limit"`
	Total      int                       `json:"total"`
	TotalPages int                       `json:"total_pages"`
}

func (s *PaymentService) ListUserPayments(ctx context.Context, actor Actor, q PaymentQuery) (*PaymentPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	f := repositories.PaymentFilter{Limit: q.Limit, Offset: (q.Page - 1) * q.Limit}
	switch q.Role {
	case OfferRoleBuyer:
		f.BuyerID = &actor.UserID
	case OfferRoleSeller:
		f.SellerID = &actor.UserID
	case OfferRoleAll, "":
		f.ParticipantID = &actor.UserID
	default:
		return nil, invalidRoleFilter()
	}
	if q.Status != "" {
		if !models.IsValidPaymentStatus(q.Status) {
			return nil, apperrors.Validation("unknown payment status").WithDetail("field", "status")
		}
		f.Status = &q.Status
	}

	items, total, err := s.payments.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if items == nil {
		items = []models.PaymentWithOffer{}
	}
	return &PaymentPage{
		Payments:   items,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}, nil
}

func (s *PaymentService) getPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.NotFound(models.EntityPayment)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (s *PaymentService) checkViewer(p *models.Payment, actor Actor) error {
	if p.BuyerID == actor.UserID || p.SellerID == actor.UserID || rbac.HasPermission(actor.Role, rbac.PermViewAnyPayment) {
		return nil
	}
	return apperrors.Forbidden("not a participant of this payment")
}
