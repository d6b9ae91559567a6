package main

import (
	"context"
	"fmt"
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
	"github.com/gig-marketplace/backend/internal/worker"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 5, MinConns: 1}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Repos
	offerRepo := repositories.NewOfferRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	webhookEventRepo := repositories.NewWebhookEventRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	txm := db.NewTxManager(pool)

	// Services
	keyStore := db.NewKeyStore(rdb, "gig")
	notifier := events.NewRelayNotifier(events.NewRedisPublisher(rdb, log), log)
	guard, err := services.NewIdempotencyGuard(keyStore, cfg.WebhookIdempotencyTTL, "stripe_webhook")
	if err != nil {
		log.Fatal("failed to create idempotency guard", zap.Error(err))
	}
	settlement := services.NewSettlement(offerRepo, paymentRepo, txm, auditRepo, notifier, m, log)
	webhookService := services.NewWebhookService(verifier, guard, webhookEventRepo, paymentRepo, settlement, m, cfg, log)
	reconciler := services.NewReconcileService(paymentRepo, webhookEventRepo, webhookService, settlement, gateway, m, cfg, log)

	jobs := []string{services.JobRepairSkew, services.JobReplayFailedWebhooks, services.JobPollStaleSessions}
	schedules := make([]worker.Schedule, 0, len(jobs))
	for _, job := range jobs {
		lock, err := worker.NewRedisLock(keyStore, keyStore.LockKey(job), 2*cfg.ReconcileInterval)
		if err != nil {
			log.Fatal("failed to create job lock", zap.String("job", job), zap.Error(err))
		}
		schedules = append(schedules, worker.Schedule{Job: job, Interval: cfg.ReconcileInterval, Lock: lock})
	}
	scheduler, err := worker.NewScheduler(reconciler, schedules, log)
	if err != nil {
		log.Fatal("failed to create scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	apphttp.SetupOpsRoutes(app, registry, handlers.NewHealthHandler(map[string]handlers.Check{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}))

	log.Info("worker started", zap.Duration("interval", cfg.ReconcileInterval), zap.Strings("jobs", jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%s", cfg.WorkerPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down worker")
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", zap.Error(err))
	}
}
