package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Offer statuses
const (
	OfferStatusDraft      = "draft"
	OfferStatusSent       = "sent"
	OfferStatusAccepted   = "accepted"
	OfferStatusRejected   = "rejected"
	OfferStatusInProgress = "in_progress"
	OfferStatusDelivered  = "delivered"
	OfferStatusCompleted  = "completed"
	OfferStatusCancelled  = "cancelled"
	OfferStatusDisputed   = "disputed"
	OfferStatusPaid       = "paid"
)

// Valid state transitions: from -> []to.
// accepted -> in_progress is only taken by the payment webhook.
var ValidOfferTransitions = map[string][]string{
	OfferStatusDraft:      {OfferStatusSent},
	OfferStatusSent:       {OfferStatusAccepted, OfferStatusRejected, OfferStatusCancelled},
	OfferStatusAccepted:   {OfferStatusCancelled, OfferStatusInProgress},
	OfferStatusInProgress: {OfferStatusDelivered},
	OfferStatusDelivered:  {OfferStatusCompleted, OfferStatusDisputed},
	OfferStatusRejected:   {},
	OfferStatusCompleted:  {},
	OfferStatusCancelled:  {},
	OfferStatusDisputed:   {},
	OfferStatusPaid:       {},
}

// RefundCancellableStatuses are the offer statuses a refund may move to cancelled.
var RefundCancellableStatuses = []string{
	OfferStatusAccepted,
	OfferStatusInProgress,
	OfferStatusDelivered,
	OfferStatusDisputed,
}

// ManualStatusUpdates is the allow-list for the generic status update operation.
var ManualStatusUpdates = []string{OfferStatusDelivered, OfferStatusCompleted}

func IsValidTransition(from, to string) bool {
	return contains(ValidOfferTransitions[from], to)
}

func IsRefundCancellable(status string) bool {
	return contains(RefundCancellableStatuses, status)
}

func IsValidOfferStatus(status string) bool {
	_, ok := ValidOfferTransitions[status]
	return ok
}

// Supported currencies (lowercase ISO codes).
const (
	CurrencyUSD = "usd"
	CurrencyEUR = "eur"
	CurrencyGBP = "gbp"
	CurrencyCAD = "cad"
	CurrencyAUD = "aud"
)

var SupportedCurrencies = []string{CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyCAD, CurrencyAUD}

func NormalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return CurrencyUSD
	}
	return c
}

func IsSupportedCurrency(c string) bool {
	return contains(SupportedCurrencies, c)
}

// Dispute reasons
const (
	DisputeReasonQuality        = "quality"
	DisputeReasonLateDelivery   = "late_delivery"
	DisputeReasonNotAsDescribed = "not_as_described"
	DisputeReasonOther          = "other"
)

var DisputeReasons = []string{DisputeReasonQuality, DisputeReasonLateDelivery, DisputeReasonNotAsDescribed, DisputeReasonOther}

func IsValidDisputeReason(r string) bool {
	return contains(DisputeReasons, r)
}

const (
	OfferTitleMaxLen       = 100
	OfferDescriptionMaxLen = 1000
	MinDeliveryDays        = 1
	MaxDeliveryDays        = 365
	DefaultRevisions       = 1
)

type Offer struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SellerID       uuid.UUID `json:"seller_id"`
	BuyerID        uuid.UUID `json:"buyer_id"`

	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	DeliveryTimeDays int             `json:"delivery_time_days"`
	Revisions        int             `json:"revisions"`
	Requirements     []string        `json:"requirements"`
	Inclusions       []string        `json:"inclusions"`

	Status           string     `json:"status"`
	ExpiresAt        time.Time  `json:"expires_at"`
	PaymentSessionID *string    `json:"payment_session_id,omitempty"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`

	DisputeRaisedBy    *uuid.UUID `json:"dispute_raised_by,omitempty"`
	DisputeReason      *string    `json:"dispute_reason,omitempty"`
	DisputeDescription *string    `json:"dispute_description,omitempty"`
	DisputedAt         *time.Time `json:"disputed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether a sent or accepted offer has passed its expiry.
func (o *Offer) IsExpired(now time.Time) bool {
	if o.Status != OfferStatusSent && o.Status != OfferStatusAccepted {
		return false
	}
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

func (o *Offer) IsParticipant(userID uuid.UUID) bool {
	return o.BuyerID == userID || o.SellerID == userID
}

// OfferTransition describes a conditional status change plus the timestamp columns it stamps.
type OfferTransition struct {
	From             []string
	To               string
	At               time.Time
	PaymentSessionID *string
	Dispute          *OfferDispute
}

type OfferDispute struct {
	RaisedBy    uuid.UUID
	Reason      string
	Description string
}

// Demo offers are synthetic, read-only and never persisted.
const DemoOfferPrefix = "demo-offer-"

type DemoOffer struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
	DeliveryTimeDays int             `json:"delivery_time_days"`
	Revisions        int             `json:"revisions"`
	Status           string          `json:"status"`
	Demo             bool            `json:"demo"`
}

func IsDemoOfferID(id string) bool {
	return strings.HasPrefix(id, DemoOfferPrefix)
}

func NewDemoOffer(id string) *DemoOffer {
	return &DemoOffer{
		ID:               id,
		Title:            "Demo offer",
		Description:      "Sample offer for previewing the checkout flow",
		Price:            decimal.NewFromInt(99),
		Currency:         CurrencyUSD,
		DeliveryTimeDays: 7,
		Revisions:        DefaultRevisions,
		Status:           OfferStatusSent,
		Demo:             true,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
