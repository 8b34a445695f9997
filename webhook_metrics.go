package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery outcomes recorded by the webhook listener and notification
// manager.
const (
	outcomeDispatched        = "dispatched"
	outcomeEmptyBody         = "empty_body"
	outcomeBodyTooLarge      = "body_too_large"
	outcomeReadError         = "read_error"
	outcomeInvalidEncoding   = "invalid_encoding"
	outcomeInvalidPayload    = "invalid_payload"
	outcomeUnknownWebhook    = "unknown_webhook"
	outcomeSignatureMismatch = "signature_mismatch"
	outcomeHandlerError      = "handler_error"
	outcomeHandlerPanic      = "handler_panic"
	outcomeManagerClosed     = "manager_closed"
)

type webhookMetrics struct {
	deliveries    *prometheus.CounterVec
	asyncInFlight prometheus.Gauge
}

// newWebhookMetrics creates the webhook collectors on reg. A nil reg keeps
// the collectors unregistered.
func newWebhookMetrics(reg prometheus.Registerer) *webhookMetrics {
	factory := promauto.With(reg)

	return &webhookMetrics{
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "spark",
				Subsystem: "webhook",
				Name:      "deliveries_total",
				Help:      "Webhook deliveries received, by outcome",
			},
			[]string{"outcome"},
		),
		asyncInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "spark",
				Subsystem: "webhook",
				Name:      "async_handlers_in_flight",
				Help:      "Asynchronous webhook handlers currently running",
			},
		),
	}
}

func (m *webhookMetrics) record(outcome string) {
	m.deliveries.WithLabelValues(outcome).Inc()
}
