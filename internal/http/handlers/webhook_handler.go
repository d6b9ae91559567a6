package handlers

import (
	"context"

	"github.com/gig-marketplace/backend/internal/http/dto"
	"github.com/gig-marketplace/backend/internal/payments"
	"github.com/gig-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type WebhookAPI interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*services.WebhookResult, error)
}

// JobRunner runs a named reconciliation job.
type JobRunner interface {
	Run(ctx context.Context, job string) (int, error)
}

type WebhookHandler struct {
	webhooks   WebhookAPI
	reconciler JobRunner
	log        *zap.Logger
}

func NewWebhookHandler(webhooks WebhookAPI, reconciler JobRunner, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, reconciler: reconciler, log: log}
}

// Receive hands the unparsed body to the processor; the signature covers
// the exact bytes.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	res, err := h.webhooks.HandleWebhook(c.UserContext(), payload, c.Get(payments.SignatureHeader))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(res)
}

// Replay runs the failed webhook replay job on demand.
func (h *WebhookHandler) Replay(c *fiber.Ctx) error {
	n, err := h.reconciler.Run(c.UserContext(), services.JobReplayFailedWebhooks)
	resp := dto.ReplayResponse{Replayed: n}
	if err != nil {
		h.log.Warn("webhook replay finished with errors", zap.Int("replayed", n), zap.Error(err))
		resp.Errors = err.Error()
	}
	return c.JSON(dto.SuccessResponse{OK: err == nil, Data: resp})
}
