package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gig-marketplace/backend/internal/models"
	"github.com/gig-marketplace/backend/internal/payments"
	"github.com/gig-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

// Actor is the authenticated caller as asserted by the identity token.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

type OfferStore interface {
	Create(ctx context.Context, o *models.Offer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	Transition(ctx context.Context, id uuid.UUID, t models.OfferTransition) (*models.Offer, error)
	List(ctx context.Context, f repositories.OfferFilter) ([]models.Offer, error)
}

type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByCheckoutSession(ctx context.Context, sessionID string) (*models.Payment, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*models.Payment, error)
	GetLatestByOffer(ctx context.Context, offerID uuid.UUID) (*models.Payment, error)
	GetActiveByOffer(ctx context.Context, offerID uuid.UUID) (*models.Payment, error)
	Transition(ctx context.Context, id uuid.UUID, t models.PaymentTransition) (*models.Payment, error)
	AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error
	List(ctx context.Context, f repositories.PaymentFilter) ([]models.PaymentWithOffer, int, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	ListSucceededWithOpenOffer(ctx context.Context, limit int) ([]models.Payment, error)
}

type ConversationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	FindOrCreate(ctx context.Context, buyerID, sellerID uuid.UUID) (*models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

type WebhookEventStore interface {
	Record(ctx context.Context, eventID, eventType string, payload json.RawMessage) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, reason string) error
	ListFailed(ctx context.Context, maxAttempts, limit int) ([]models.WebhookEvent, error)
	IncrementAttempts(ctx context.Context, eventID string) error
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// AuditTrail also reads back the history of an offer and its payments,
// newest first.
type AuditTrail interface {
	AuditLogger
	GetOfferTrail(ctx context.Context, offerID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// TxRunner runs fn in one database transaction carried on ctx.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CheckoutGateway is the payment processor boundary. Amounts are in major units.
type CheckoutGateway interface {
	CreateSession(ctx context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error)
	RetrieveSession(ctx context.Context, id string) (*payments.SessionSnapshot, error)
	ExpireSession(ctx context.Context, id string) error
	Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundResult, error)
}

type SignatureVerifier interface {
	Verify(payload []byte, sigHeader string) (stripe.Event, error)
}

type IdempotencyStore interface {
	IdempotencyKey(scope, id string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}
