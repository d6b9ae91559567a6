package handlers

import (
	"context"

	"github.com/gig-marketplace/backend/internal/apperrors"
	"github.com/gig-marketplace/backend/internal/http/dto"
	"github.com/gig-marketplace/backend/internal/models"
	"github.com/gig-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OfferAPI is the offer lifecycle surface used by OfferHandler.
type OfferAPI interface {
	CreateOffer(ctx context.Context, seller services.Actor, in services.CreateOfferInput) (*models.Offer, error)
	ParseOfferRef(raw string) (uuid.UUID, error)
	AcceptOffer(ctx context.Context, offerID uuid.UUID, actor services.Actor) (*services.AcceptResult, error)
	RetryCheckout(ctx context.Context, offerID uuid.UUID, actor services.Actor) (*services.AcceptResult, error)
	RejectOffer(ctx context.Context, offerID uuid.UUID, actor services.Actor) (*models.Offer, error)
	CancelOffer(ctx context.Context, offerID uuid.UUID, actor services.Actor) (*models.Offer, error)
	UpdateOfferStatus(ctx context.Context, offerID uuid.UUID, status string, actor services.Actor) (*models.Offer, error)
	DisputeOffer(ctx context.Context, offerID uuid.UUID, actor services.Actor, reason, description string) (*models.Offer, error)
	LookupOffer(ctx context.Context, raw string, actor services.Actor) (*services.OfferLookup, error)
	ListOffersByConversation(ctx context.Context, conversationID uuid.UUID, actor services.Actor, limit, offset int) ([]models.Offer, error)
	ListUserOffers(ctx context.Context, actor services.Actor, role, status string, limit, offset int) ([]models.Offer, error)
	GetOfferHistory(ctx context.Context, offerID uuid.UUID, actor services.Actor, limit, offset int) ([]models.AuditLog, error)
}

type OfferHandler struct {
	offers OfferAPI
	log    *zap.Logger
}

func NewOfferHandler(offers OfferAPI, log *zap.Logger) *OfferHandler {
	return &OfferHandler{offers: offers, log: log}
}

func (h *OfferHandler) CreateOffer(c *fiber.Ctx) error {
	var req dto.CreateOfferRequest
	if err := dto.Bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	buyerID, err := uuid.Parse(req.BuyerID)
	if err != nil {
		return respondError(c, h.log, apperrors.Validation("invalid buyer id").WithDetail("field", "buyer_id"))
	}
	in := services.CreateOfferInput{
		BuyerID:          buyerID,
		Title:            req.Title,
		Description:      req.Description,
		Price:            req.Price,
		Currency:         req.Currency,
		DeliveryTimeDays: req.DeliveryTimeDays,
		Revisions:        req.Revisions,
		Requirements:     req.Requirements,
		Inclusions:       req.Inclusions,
	}
	if req.ConversationID != nil {
		id, err := uuid.Parse(*req.ConversationID)
		if err != nil {
			return respondError(c, h.log, apperrors.Validation("invalid conversation id").WithDetail("field", "conversation_id"))
		}
		in.ConversationID = &id
	}

	offer, err := h.offers.CreateOffer(c.UserContext(), actor(c), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: offer})
}

func (h *OfferHandler) GetOffer(c *fiber.Ctx) error {
	res, err := h.offers.LookupOffer(c.UserContext(), c.Params("offerId"), actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	switch res.Kind {
	case services.LookupDemo:
		return c.JSON(dto.SuccessResponse{OK: true, Data: res.Demo})
	case services.LookupFound:
		return c.JSON(dto.SuccessResponse{OK: true, Data: res.Offer})
	default:
		return respondError(c, h.log, apperrors.NotFound(models.EntityOffer))
	}
}

func (h *OfferHandler) ListMyOffers(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	offers, err := h.offers.ListUserOffers(c.UserContext(), actor(c), c.Query("role"), c.Query("status"), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.ListResponse{OK: true, Data: nonNil(offers), Limit: limit, Offset: offset})
}

func (h *OfferHandler) ListConversationOffers(c *fiber.Ctx) error {
	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return respondError(c, h.log, apperrors.Validation("invalid conversation id").WithDetail("field", "conversationId"))
	}
	limit, offset := pagination(c)
	offers, err := h.offers.ListOffersByConversation(c.UserContext(), conversationID, actor(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.ListResponse{OK: true, Data: nonNil(offers), Limit: limit, Offset: offset})
}

func (h *OfferHandler) GetHistory(c *fiber.Ctx) error {
	offerID, err := h.offers.ParseOfferRef(c.Params("offerId"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	limit, offset := pagination(c)
	entries, err := h.offers.GetOfferHistory(c.UserContext(), offerID, actor(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.ListResponse{OK: true, Data: nonNil(entries), Limit: limit, Offset: offset})
}

func (h *OfferHandler) AcceptOffer(c *fiber.Ctx) error {
	offerID, err := h.offers.ParseOfferRef(c.Params("offerId"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	res, err := h.offers.AcceptOffer(c.UserContext(), offerID, actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *OfferHandler) RetryCheckout(c *fiber.Ctx) error {
	offerID, err := h.offers.ParseOfferRef(c.Params("offerId"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	res, err := h.offers.RetryCheckout(c.UserContext(), offerID, actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

func (h *OfferHandler) RejectOffer(c *fiber.Ctx) error {
	return h.mutate(c, h.offers.RejectOffer)
}

func (h *OfferHandler) CancelOffer(c *fiber.Ctx) error {
	return h.mutate(c, h.offers.CancelOffer)
}

func (h *OfferHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateOfferStatusRequest
	if err := dto.Bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	return h.mutate(c, func(ctx context.Context, id uuid.UUID, a services.Actor) (*models.Offer, error) {
		return h.offers.UpdateOfferStatus(ctx, id, req.Status, a)
	})
}

func (h *OfferHandler) DisputeOffer(c *fiber.Ctx) error {
	var req dto.DisputeOfferRequest
	if err := dto.Bind(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	return h.mutate(c, func(ctx context.Context, id uuid.UUID, a services.Actor) (*models.Offer, error) {
		return h.offers.DisputeOffer(ctx, id, a, req.Reason, req.Description)
	})
}

func (h *OfferHandler) mutate(c *fiber.Ctx, op func(context.Context, uuid.UUID, services.Actor) (*models.Offer, error)) error {
	offerID, err := h.offers.ParseOfferRef(c.Params("offerId"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	offer, err := op(c.UserContext(), offerID, actor(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: offer})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
