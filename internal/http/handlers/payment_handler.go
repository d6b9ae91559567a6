package handlers

import (
	"context"
	"strconv"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/gig-marketplace/backend/internal/http/dto"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/gig-marketplace/backend/internal/payments"
	"github.com/gig-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentAPI interface {
	RefundPayment(ctx context.Context, paymentID uuid.UUID, actor services.Actor, reason string) (*payments.RefundResult, error)
	GetPaymentStatus(ctx context.Context, sessionID string, actor services.Actor) (*services.PaymentStatusView, error)
	GetPaymentByOffer(ctx context.Context, offerID uuid.UUID, actor services.Actor) (*models.Payment, error)
	ListUserPayments(ctx context.Context, actor services.Actor, q services.PaymentQuery) (*services.PaymentPage, error)
}

type PaymentHandler struct {
	payments PaymentAPI
	log      *zap.Logger
}

func NewPaymentHandler(payments PaymentAPI, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, log: log}
}

func (h *PaymentHandler) GetStatus(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return respondError(c, h.log, apperrors.Validation("session id is required").WithDetail("field", "sessionId"))
	}
	view, err := h.payments.GetPaymentStatus(c.UserContext(), sessionID, actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: view})
}

func (h *PaymentHandler) GetByOffer(c *fiber.Ctx) error {
	offerID, err := uuid.Parse(c.Params("offerId"))
	if err != nil {
		return respondError(c, h.log, apperrors.Validation("invalid offer id").WithDetail("field", "offerId"))
	}
	p, err := h.payments.GetPaymentByOffer(c.UserContext(), offerID, actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: p})
}

func (h *PaymentHandler) ListMine(c *fiber.Ctx) error {
	q := services.PaymentQuery{Role: c.Query("role"), Status: c.Query("status")}
	if v, err := strconv.Atoi(c.Query("page")); err == nil {
		q.Page = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		q.Limit = v
	}
	page, err := h.payments.ListUserPayments(c.UserContext(), actor(c), q)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: page})
}

func (h *PaymentHandler) Refund(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("paymentId"))
	if err != nil {
		return respondError(c, h.log, apperrors.Validation("invalid payment id").WithDetail("field", "paymentId"))
	}
	var req dto.RefundPaymentRequest
	if len(c.Body()) > 0 {
		if err := dto.Bind(c, &req); err != nil {
			return respondError(c, h.log, err)
		}
	}
	refund, err := h.payments.RefundPayment(c.UserContext(), paymentID, actor(c), req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: refund})
}
