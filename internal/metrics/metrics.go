package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcomes
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	offerTransitions   *prometheus.CounterVec
	paymentTransitions *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	gatewayLatency     *prometheus.HistogramVec
	jobDuration        *prometheus.HistogramVec
	jobSuccess         *prometheus.CounterVec
	jobFailure         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		offerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "offer_transitions_total",
			Help: "Offer status transitions.",
		}, []string{"from", "to"}),
		paymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Payment status transitions.",
		}, []string{"to", "source"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Processed webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_gateway_request_seconds",
			Help:    "Latency of payment processor calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of worker jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		jobSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_success",
			Help: "Successful worker job executions.",
		}, []string{"job"}),
		jobFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_failure",
			Help: "Failed worker job executions.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.offerTransitions, m.paymentTransitions, m.webhookEvents, m.gatewayLatency,
		m.jobDuration, m.jobSuccess, m.jobFailure)
	return m
}

func (m *Metrics) OfferTransition(from, to string) {
	if m == nil || m.offerTransitions == nil {
		return
	}
	m.offerTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *Metrics) PaymentTransition(to, source string) {
	if m == nil || m.paymentTransitions == nil {
		return
	}
	m.paymentTransitions.WithLabelValues(normalizeLabel(to), normalizeLabel(source)).Inc()
}

func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveGateway(op string, start time.Time, err error) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayLatency.WithLabelValues(normalizeLabel(op), result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveJob(job string, duration time.Duration, err error) {
	if m == nil || m.jobDuration == nil {
		return
	}
	job = normalizeLabel(job)
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err != nil {
		m.jobFailure.WithLabelValues(job).Inc()
		return
	}
	m.jobSuccess.WithLabelValues(job).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
