package payments

import (
	"context"
	"strings"
	"time"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/refund"
	"go.uber.org/zap"
)

// stripeAPI is the subset of Stripe resources the gateway calls.
type stripeAPI interface {
	NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	ExpireSession(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
	NewRefund(params *stripe.RefundParams) (*stripe.Refund, error)
}

type globalStripeAPI struct{}

func (globalStripeAPI) NewSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (globalStripeAPI) GetSession(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.Get(id, params)
}

func (globalStripeAPI) ExpireSession(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	return session.Expire(id, params)
}

func (globalStripeAPI) NewRefund(params *stripe.RefundParams) (*stripe.Refund, error) {
	return refund.New(params)
}

type StripeGateway struct {
	api     stripeAPI
	timeout time.Duration
	log     *zap.Logger
}

func NewStripeGateway(client *StripeClient, log *zap.Logger) *StripeGateway {
	return &StripeGateway{api: globalStripeAPI{}, timeout: client.Timeout(), log: log}
}

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *StripeGateway) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	unitAmount, err := ToMinorUnits(req.Amount)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPaymentRequestInvalid, err, "create checkout session")
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	expiresAt := time.Now().Add(req.Expiry)
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(unitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.Title),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		ExpiresAt:  stripe.Int64(expiresAt.Unix()),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.ReferenceID != "" {
		params.ClientReferenceID = stripe.String(req.ReferenceID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := g.api.NewSession(params)
	if err != nil {
		g.log.Warn("stripe create session failed", zap.Error(err))
		return nil, Classify(err, "create checkout session")
	}

	out := &CheckoutSession{ID: s.ID, URL: s.URL, ExpiresAt: expiresAt}
	if s.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	}
	return out, nil
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, id string) (*SessionSnapshot, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.api.GetSession(id, params)
	if err != nil {
		return nil, Classify(err, "retrieve checkout session")
	}
	return SnapshotFromSession(s), nil
}

// ExpireSession closes an open checkout session so it can no longer be paid.
func (g *StripeGateway) ExpireSession(ctx context.Context, id string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.api.ExpireSession(id, params); err != nil {
		return Classify(err, "expire checkout session")
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentIntentID),
		Reason:        stripe.String(NormalizeRefundReason(req.Reason)),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	r, err := g.api.NewRefund(params)
	if err != nil {
		g.log.Warn("stripe refund failed", zap.String("payment_intent", req.PaymentIntentID), zap.Error(err))
		return nil, Classify(err, "create refund")
	}
	return &RefundResult{ID: r.ID, Status: string(r.Status)}, nil
}

func NormalizeRefundReason(reason string) string {
	switch reason {
	case RefundReasonDuplicate, RefundReasonFraudulent, RefundReasonRequestedByCustomer:
		return reason
	}
	return RefundReasonRequestedByCustomer
}

// SnapshotFromSession converts a processor session, from an API response or a
// webhook payload, into a SessionSnapshot.
func SnapshotFromSession(s *stripe.CheckoutSession) *SessionSnapshot {
	snap := &SessionSnapshot{
		ID:            s.ID,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   FromMinorUnits(s.AmountTotal),
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		snap.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.ExpiresAt > 0 {
		snap.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	}
	return snap
}
