package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gig-marketplace/backend/internal/config"
	"github.com/gig-marketplace/backend/internal/db"
	"github.com/gig-marketplace/backend/internal/events"
	apphttp "github.com/gig-marketplace/backend/internal/http"
	"github.com/gig-marketplace/backend/internal/http/handlers"
	"github.com/gig-marketplace/backend/internal/metrics"
	"github.com/gig-marketplace/backend/internal/payments"
	"github.com/gig-marketplace/backend/internal/repositories"
	"github.com/gig-marketplace/backend/internal/services"
	"github.com/gig-marketplace/backend/migrations"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Stripe
	stripeClient, err := payments.NewStripeClient(payments.StripeConfig{
		APIKey:        cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Environment:   cfg.StripeEnv,
		Timeout:       cfg.StripeTimeout,
	}, log)
	if err != nil {
		log.Fatal("failed to configure stripe", zap.Error(err))
	}
	gateway := payments.NewStripeGateway(stripeClient, log)
	verifier := payments.NewWebhookVerifier(stripeClient.SigningSecret())

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Repositories
	offerRepo := repositories.NewOfferRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	conversationRepo := repositories.NewConversationRepo(pool)
	webhookEventRepo := repositories.NewWebhookEventRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	txm := db.NewTxManager(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)
	notifier := events.NewRelayNotifier(publisher, log)

	// Services
	guard, err := services.NewIdempotencyGuard(db.NewKeyStore(rdb, "gig"), cfg.WebhookIdempotencyTTL, "stripe_webhook")
	if err != nil {
		log.Fatal("failed to create idempotency guard", zap.Error(err))
	}
	settlement := services.NewSettlement(offerRepo, paymentRepo, txm, auditRepo, notifier, m, log)
	offerService := services.NewOfferService(offerRepo, paymentRepo, conversationRepo, auditRepo, txm, gateway, notifier, m, cfg, log)
	paymentService := services.NewPaymentService(paymentRepo, offerRepo, gateway, settlement, m, log)
	webhookService := services.NewWebhookService(verifier, guard, webhookEventRepo, paymentRepo, settlement, m, cfg, log)
	reconciler := services.NewReconcileService(paymentRepo, webhookEventRepo, webhookService, settlement, gateway, m, cfg, log)

	// Handlers
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Check{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})
	offerHandler := handlers.NewOfferHandler(offerService, log)
	paymentHandler := handlers.NewPaymentHandler(paymentService, log)
	webhookHandler := handlers.NewWebhookHandler(webhookService, reconciler, log)
	wsHub := handlers.NewWSHub(cfg.JWTSecret, subscriber, conversationRepo, log)

	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to start websocket hub", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, registry, healthHandler, offerHandler, paymentHandler, webhookHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
