package services

import (
	"context"
	"fmt"
	"time"

	"github.com/gig-marketplace/backend/internal/config"
	"github.com/gig-marketplace/backend/internal/metrics"
	"github.com/gig-marketplace/backend/internal/payments"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Reconciliation job names.
const (
	JobRepairSkew           = "repair_skew"
	JobReplayFailedWebhooks = "replay_failed_webhooks"
	JobPollStaleSessions    = "poll_stale_sessions"
)

// ReconcileService converges local state with the processor when webhook
// delivery was lost, failed or arrived out of order.
type ReconcileService struct {
	payments   PaymentStore
	events     WebhookEventStore
	webhooks   *WebhookService
	settlement *Settlement
	gateway    CheckoutGateway
	metrics    *metrics.Metrics
	cfg        *config.Config
	log        *zap.Logger
	now        func() time.Time
}

func NewReconcileService(
	payments PaymentStore,
	events WebhookEventStore,
	webhooks *WebhookService,
	settlement *Settlement,
	gateway CheckoutGateway,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		payments:   payments,
		events:     events,
		webhooks:   webhooks,
		settlement: settlement,
		gateway:    gateway,
		metrics:    m,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Run executes one named job and records its duration and outcome.
func (s *ReconcileService) Run(ctx context.Context, job string) (int, error) {
	start := time.Now()
	var (
		n   int
		err error
	)
	switch job {
	case JobRepairSkew:
		n, err = s.RepairSkew(ctx)
	case JobReplayFailedWebhooks:
		n, err = s.ReplayFailedWebhooks(ctx)
	case JobPollStaleSessions:
		n, err = s.PollStaleSessions(ctx)
	default:
		return 0, fmt.Errorf("unknown reconcile job %q", job)
	}
	s.metrics.ObserveJob(job, time.Since(start), err)
	if err != nil {
		s.log.Warn("reconcile job finished with errors", zap.String("job", job), zap.Int("repaired", n), zap.Error(err))
	} else if n > 0 {
		s.log.Info("reconcile job repaired records", zap.String("job", job), zap.Int("repaired", n))
	}
	return n, err
}

// RepairSkew starts work on offers whose payment succeeded while the offer
// stayed accepted.
func (s *ReconcileService) RepairSkew(ctx context.Context) (int, error) {
	list, err := s.payments.ListSucceededWithOpenOffer(ctx, s.cfg.ReconcileBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list skewed payments: %w", err)
	}

	var (
		repaired int
		errs     error
	)
	for i := range list {
		p := &list[i]
		res, err := s.settlement.StartWork(ctx, p, SourceReconcile)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", p.ID, err))
			continue
		}
		if res.OfferMoved {
			repaired++
		}
	}
	return repaired, errs
}

// ReplayFailedWebhooks re-dispatches recorded events whose processing failed.
func (s *ReconcileService) ReplayFailedWebhooks(ctx context.Context) (int, error) {
	list, err := s.events.ListFailed(ctx, s.cfg.WebhookMaxAttempts, s.cfg.ReconcileBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list failed webhook events: %w", err)
	}

	var (
		replayed int
		errs     error
	)
	for _, rec := range list {
		if _, err := s.webhooks.ReplayEvent(ctx, rec); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("event %s: %w", rec.EventID, err))
			continue
		}
		replayed++
	}
	return replayed, errs
}

// PollStaleSessions asks the processor about pending payments whose session
// should have expired, and applies the outcome a lost webhook would have.
func (s *ReconcileService) PollStaleSessions(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StaleSessionGrace)
	list, err := s.payments.ListStalePending(ctx, cutoff, s.cfg.ReconcileBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list stale payments: %w", err)
	}

	var (
		settled int
		errs    error
	)
	for i := range list {
		p := &list[i]
		start := time.Now()
		snap, err := s.gateway.RetrieveSession(ctx, p.CheckoutSessionID)
		s.metrics.ObserveGateway("retrieve_session", start, err)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", p.ID, err))
			continue
		}

		var res *SettlementResult
		switch {
		case snap.Status == payments.SessionStatusComplete && snap.IsPaid():
			res, err = s.settlement.MarkPaid(ctx, p, snap.PaymentIntentID, true, SourceReconcile)
		case snap.Status == payments.SessionStatusExpired:
			res, err = s.settlement.MarkExpired(ctx, p, SourceReconcile)
		default:
			s.log.Info("stale session still unresolved",
				zap.String("payment_id", p.ID.String()),
				zap.String("session_status", snap.Status),
				zap.String("payment_status", snap.PaymentStatus))
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", p.ID, err))
			continue
		}
		if res.Changed() {
			settled++
		}
	}
	return settled, errs
}
