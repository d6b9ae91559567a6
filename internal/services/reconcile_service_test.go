package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gig-marketplace/backend/internal/models"
	"github.com/gig-marketplace/backend/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
)

func TestPollStaleSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	paidOffer, paid := h.acceptedOffer(t)
	_, expired := h.acceptedOffer(t)
	openOffer, open := h.acceptedOffer(t)

	h.gateway.setSession(paid.Session.ID, payments.SessionStatusComplete, payments.SessionPaymentPaid, "pi_polled")
	h.gateway.setSession(expired.Session.ID, payments.SessionStatusExpired, payments.SessionPaymentUnpaid, "")

	// nothing is stale until the sessions are past their expiry plus grace
	n, err := h.reconciler.Run(ctx, JobPollStaleSessions)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.now = time.Now().Add(2 * time.Hour)
	n, err = h.reconciler.Run(ctx, JobPollStaleSessions)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p := h.getPayment(t, paid.PaymentID)
	assert.Equal(t, models.PaymentStatusSucceeded, p.Status)
	assert.Equal(t, "pi_polled", *p.StripePaymentIntentID)
	assert.Equal(t, models.OfferStatusInProgress, h.getOffer(t, paidOffer.ID).Status)

	assert.Equal(t, models.PaymentStatusExpired, h.getPayment(t, expired.PaymentID).Status)
	assert.Equal(t, models.PaymentStatusPending, h.getPayment(t, open.PaymentID).Status)
	assert.Equal(t, models.OfferStatusAccepted, h.getOffer(t, openOffer.ID).Status)

	// a second pass finds only the unresolved session
	n, err = h.reconciler.Run(ctx, JobPollStaleSessions)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPollStaleSessions_GatewayErrorsAreCollected(t *testing.T) {
	h := newHarness(t)
	h.acceptedOffer(t)
	h.acceptedOffer(t)
	h.gateway.retrieveErr = errors.New("processor unavailable")
	h.now = time.Now().Add(2 * time.Hour)

	n, err := h.reconciler.Run(context.Background(), JobPollStaleSessions)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "processor unavailable")
}

func TestReplayFailedWebhooks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o, accepted := h.acceptedOffer(t)

	h.offers.transitionErr = errors.New("connection reset")
	res, err := h.deliver(t, "evt_lost", stripe.EventTypeCheckoutSessionCompleted,
		completedSession(accepted.Session.ID, "pi_1", "paid", o.ID))
	require.NoError(t, err)
	assert.False(t, res.Handled)

	// still failing: the attempt is counted and the error kept
	n, err := h.reconciler.Run(ctx, JobReplayFailedWebhooks)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, h.events.get("evt_lost").Attempts)

	h.offers.transitionErr = nil
	n, err = h.reconciler.Run(ctx, JobReplayFailedWebhooks)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := h.events.get("evt_lost")
	assert.True(t, rec.Processed())
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, models.PaymentStatusSucceeded, h.getPayment(t, accepted.PaymentID).Status)
	assert.Equal(t, models.OfferStatusInProgress, h.getOffer(t, o.ID).Status)

	n, err = h.reconciler.Run(ctx, JobReplayFailedWebhooks)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplayFailedWebhooks_StopsAtMaxAttempts(t *testing.T) {
	h := newHarness(t)
	h.cfg.WebhookMaxAttempts = 2
	o, accepted := h.acceptedOffer(t)
	h.offers.transitionErr = errors.New("connection reset")

	_, err := h.deliver(t, "evt_stuck", stripe.EventTypeCheckoutSessionCompleted,
		completedSession(accepted.Session.ID, "pi_1", "paid", o.ID))
	require.NoError(t, err)

	_, err = h.reconciler.Run(context.Background(), JobReplayFailedWebhooks)
	require.Error(t, err)

	n, err := h.reconciler.Run(context.Background(), JobReplayFailedWebhooks)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, h.events.get("evt_stuck").Attempts)
}

func TestRepairSkew_NothingToRepair(t *testing.T) {
	h := newHarness(t)
	h.acceptedOffer(t)

	n, err := h.reconciler.Run(context.Background(), JobRepairSkew)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRun_UnknownJob(t *testing.T) {
	h := newHarness(t)
	_, err := h.reconciler.Run(context.Background(), "vacuum")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vacuum")
}
