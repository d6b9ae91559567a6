package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gig-marketplace/backend/internal/config"
	"github.com/gig-marketplace/backend/internal/db"
	"github.com/gig-marketplace/backend/internal/events"
	"go.uber.org/zap"
)

// Notify bridge: subscribes to the relay channel and forwards every event to
// the external notification service.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.NotifyForwardURL == "" {
		log.Fatal("NOTIFY_FORWARD_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	forwarder := events.NewForwarder(cfg.NotifyForwardURL, 10*time.Second, log)
	subscriber := events.NewRedisSubscriber(rdb, log)
	if err := subscriber.Subscribe(ctx, events.ChannelRelay, forwarder.Handler(ctx)); err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("notify-bridge started", zap.String("forward_url", cfg.NotifyForwardURL))
	<-ctx.Done()
	log.Info("shutting down notify-bridge")
}
