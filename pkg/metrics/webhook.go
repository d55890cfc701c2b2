package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records metadata for the order webhook pipeline.
type WebhookMetrics struct {
	duration        *prometheus.HistogramVec
	ordersProcessed *prometheus.CounterVec
	chargeOutcomes  *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook pipeline metrics on the provided
// registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_duration_seconds",
		Help:    "Duration of webhook processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
	ordersProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_orders_processed",
		Help: "Orders processed from webhooks, by result.",
	}, []string{"topic", "result"})
	chargeOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usage_charge_outcomes",
		Help: "Usage charge emission attempts, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, ordersProcessed, chargeOutcomes)
	return &WebhookMetrics{
		duration:        duration,
		ordersProcessed: ordersProcessed,
		chargeOutcomes:  chargeOutcomes,
	}
}

// ObserveDuration records processing time for the given webhook topic.
func (m *WebhookMetrics) ObserveDuration(topic string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(topic)).Observe(duration.Seconds())
}

// IncOrderProcessed counts a processed order by result, e.g. "recorded",
// "duplicate", "no_royalties", "failed".
func (m *WebhookMetrics) IncOrderProcessed(topic, result string) {
	if m == nil || m.ordersProcessed == nil {
		return
	}
	m.ordersProcessed.WithLabelValues(normalizeLabel(topic), normalizeLabel(result)).Inc()
}

// IncChargeOutcome counts a usage charge attempt by outcome, e.g.
// "succeeded", "skipped", "failed".
func (m *WebhookMetrics) IncChargeOutcome(outcome string) {
	if m == nil || m.chargeOutcomes == nil {
		return
	}
	m.chargeOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
