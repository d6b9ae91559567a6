package http

import (
	"time"

	"github.com/gig-marketplace/backend/internal/config"
	"github.com/gig-marketplace/backend/internal/http/handlers"
	"github.com/gig-marketplace/backend/internal/middleware"
	"github.com/gig-marketplace/backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	gatherer prometheus.Gatherer,
	healthHandler *handlers.HealthHandler,
	offerHandler *handlers.OfferHandler,
	paymentHandler *handlers.PaymentHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	SetupOpsRoutes(app, gatherer, healthHandler)

	api := app.Group("/api/v1")

	// Processor webhooks: public, raw body, signature checked by the service.
	// Registered before the API rate limiter so redeliveries are never throttled.
	api.Post("/payments/webhook",
		middleware.RateLimitMiddleware(rdb, "webhook", cfg.WebhookRateLimitPerMin, time.Minute),
		webhookHandler.Receive)

	protected := api.Group("",
		middleware.AuthMiddleware(cfg.JWTSecret, log),
		middleware.RateLimitMiddleware(rdb, "api", 300, time.Minute))

	// Offers
	protected.Post("/offers", offerHandler.CreateOffer)
	protected.Get("/offers", offerHandler.ListMyOffers)
	protected.Get("/offers/conversation/:conversationId", offerHandler.ListConversationOffers)
	protected.Get("/offers/:offerId", offerHandler.GetOffer)
	protected.Get("/offers/:offerId/history", offerHandler.GetHistory)
	protected.Patch("/offers/:offerId/accept", offerHandler.AcceptOffer)
	protected.Patch("/offers/:offerId/reject", offerHandler.RejectOffer)
	protected.Patch("/offers/:offerId/cancel", offerHandler.CancelOffer)
	protected.Patch("/offers/:offerId/status", offerHandler.UpdateStatus)
	protected.Post("/offers/:offerId/dispute", offerHandler.DisputeOffer)
	protected.Post("/offers/:offerId/checkout", offerHandler.RetryCheckout)

	// Payments
	protected.Get("/payments/status/:sessionId", paymentHandler.GetStatus)
	protected.Get("/payments/offer/:offerId", paymentHandler.GetByOffer)
	protected.Get("/payments/user-payments", paymentHandler.ListMine)
	protected.Post("/payments/refund/:paymentId", paymentHandler.Refund)

	// Admin
	protected.Post("/admin/webhooks/replay", middleware.RequirePermission(rbac.PermReplayWebhooks), webhookHandler.Replay)

	// WebSocket
	if wsHub != nil {
		app.Use("/ws", handlers.WSUpgradeMiddleware())
		app.Get("/ws", websocket.New(wsHub.HandleWS))
	}
}

// SetupOpsRoutes mounts the probe and scrape endpoints. The worker serves
// only these.
func SetupOpsRoutes(app *fiber.App, gatherer prometheus.Gatherer, healthHandler *handlers.HealthHandler) {
	app.Get("/health", healthHandler.Health)
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
