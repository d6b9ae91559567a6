package dto

import "github.com/shopspring/decimal"

type CreateOfferRequest struct {
	ConversationID   *string         `json:"conversation_id,omitempty" validate:"omitempty,uuid"`
	BuyerID          string          `json:"buyer_id" validate:"required,uuid"`
	Title            string          `json:"title" validate:"required,max=100"`
	Description      string          `json:"description" validate:"required,max=1000"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	DeliveryTimeDays int             `json:"delivery_time_days" validate:"required,min=1,max=365"`
	Revisions        *int            `json:"revisions,omitempty" validate:"omitempty,min=0"`
	Requirements     []string        `json:"requirements,omitempty" validate:"omitempty,max=20,dive,max=200"`
	Inclusions       []string        `json:"inclusions,omitempty" validate:"omitempty,max=20,dive,max=200"`
}

type UpdateOfferStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type DisputeOfferRequest struct {
	Reason      string `json:"reason" validate:"required"`
	Description string `json:"description,omitempty" validate:"max=1000"`
}

type RefundPaymentRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}
