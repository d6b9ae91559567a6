package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutRequest describes a hosted checkout for a single offer. Amount is in
// major units, conversion to the processor's minor units happens in the adapter.
type CheckoutRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Title       string
	Description string
	Metadata    map[string]string
	ReferenceID string
	SuccessURL  string
	CancelURL   string
	Expiry      time.Duration
}

type CheckoutSession struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Checkout session states as reported by the processor.
const (
	SessionStatusOpen     = "open"
	SessionStatusComplete = "complete"
	SessionStatusExpired  = "expired"

	SessionPaymentPaid   = "paid"
	SessionPaymentUnpaid = "unpaid"
)

type SessionSnapshot struct {
	ID              string            `json:"id"`
	Status          string            `json:"status"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	AmountTotal     decimal.Decimal   `json:"amount_total"`
	Currency        string            `json:"currency"`
	ExpiresAt       time.Time         `json:"expires_at"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func (s *SessionSnapshot) IsPaid() bool {
	return s.PaymentStatus == SessionPaymentPaid
}

// Refund reasons accepted by the processor. Free text reasons are sent as
// requested_by_customer and kept in metadata.
const (
	RefundReasonDuplicate           = "duplicate"
	RefundReasonFraudulent          = "fraudulent"
	RefundReasonRequestedByCustomer = "requested_by_customer"
)

type RefundRequest struct {
	PaymentIntentID string
	Reason          string
	IdempotencyKey  string
	Metadata        map[string]string
}

type RefundResult struct {
	ID     string `json:"refund_id"`
	Status string `json:"refund_status"`
}

// Metadata keys attached to every checkout session.
const (
	MetaOfferID  = "offer_id"
	MetaBuyerID  = "buyer_id"
	MetaSellerID = "seller_id"
)
