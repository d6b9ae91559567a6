package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusExpired   = "expired"
	PaymentStatusRefunded  = "refunded"
)

// Payment transitions only move forward. A failed attempt may still be
// completed by the same checkout session, succeeded never regresses.
var ValidPaymentTransitions = map[string][]string{
	PaymentStatusPending:   {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusExpired},
	PaymentStatusFailed:    {PaymentStatusSucceeded},
	PaymentStatusSucceeded: {PaymentStatusRefunded},
	PaymentStatusExpired:   {},
	PaymentStatusRefunded:  {},
}

// ActivePaymentStatuses block a second checkout for the same offer.
var ActivePaymentStatuses = []string{PaymentStatusPending, PaymentStatusSucceeded}

func IsValidPaymentTransition(from, to string) bool {
	return contains(ValidPaymentTransitions[from], to)
}

// PaymentSourcesFor lists the statuses a payment may be in to move to status.
func PaymentSourcesFor(to string) []string {
	var from []string
	for _, s := range []string{PaymentStatusPending, PaymentStatusFailed, PaymentStatusSucceeded, PaymentStatusExpired, PaymentStatusRefunded} {
		if IsValidPaymentTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

func IsValidPaymentStatus(status string) bool {
	_, ok := ValidPaymentTransitions[status]
	return ok
}

type Payment struct {
	ID                    uuid.UUID       `json:"id"`
	OfferID               uuid.UUID       `json:"offer_id"`
	BuyerID               uuid.UUID       `json:"buyer_id"`
	SellerID              uuid.UUID       `json:"seller_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                string          `json:"status"`
	CheckoutSessionID     string          `json:"checkout_session_id"`
	SessionExpiresAt      *time.Time      `json:"session_expires_at,omitempty"`
	StripePaymentIntentID *string         `json:"stripe_payment_intent_id,omitempty"`
	RefundID              *string         `json:"refund_id,omitempty"`
	FailureReason         *string         `json:"failure_reason,omitempty"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	FailedAt              *time.Time      `json:"failed_at,omitempty"`
	ExpiredAt             *time.Time      `json:"expired_at,omitempty"`
	RefundedAt            *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// PaymentWithOffer is used by payment listings to avoid N+1 lookups.
type PaymentWithOffer struct {
	Payment
	OfferTitle  string `json:"offer_title"`
	OfferStatus string `json:"offer_status"`
}

// PaymentTransition is a conditional payment status change.
type PaymentTransition struct {
	To              string
	At              time.Time
	PaymentIntentID *string
	RefundID        *string
	FailureReason   *string
}
