package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Payment metrics
	PaymentsTotal         *prometheus.CounterVec
	ProviderRequestsTotal *prometheus.CounterVec

	// Webhook metrics
	WebhookEventsTotal      *prometheus.CounterVec
	WebhookRetriesTotal     *prometheus.CounterVec
	WebhookDeadLettersTotal *prometheus.CounterVec

	// Idempotency metrics
	IdempotencyReplaysTotal prometheus.Counter
	IdempotencyPurgedTotal  prometheus.Counter
}

// NewWithRegisterer creates a new Metrics instance registered with reg.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "payflow"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		PaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "transitions_total",
				Help:      "Total number of payment status transitions",
			},
			[]string{"status"},
		),
		ProviderRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Total number of outbound payment provider calls",
			},
			[]string{"provider", "operation", "status"}, // status: success, error, short_circuited
		),

		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Total number of webhook events by outcome",
			},
			[]string{"provider", "outcome"},
		),
		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "retries_total",
				Help:      "Total number of scheduled webhook retries",
			},
			[]string{"provider"},
		),
		WebhookDeadLettersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "dead_letters_total",
				Help:      "Total number of dead-lettered webhook events",
			},
			[]string{"provider"},
		),

		IdempotencyReplaysTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "idempotency",
				Name:      "replays_total",
				Help:      "Total number of responses replayed from idempotency records",
			},
		),
		IdempotencyPurgedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "idempotency",
				Name:      "purged_total",
				Help:      "Total number of expired idempotency records removed",
			},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCodeToString(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordPayment(status string) {
	m.PaymentsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordProviderRequest(provider, operation, status string) {
	m.ProviderRequestsTotal.WithLabelValues(provider, operation, status).Inc()
}

func (m *Metrics) RecordWebhookEvent(provider, outcome string) {
	m.WebhookEventsTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordWebhookRetry(provider string) {
	m.WebhookRetriesTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordWebhookDeadLetter(provider string) {
	m.WebhookDeadLettersTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordIdempotencyReplay() {
	m.IdempotencyReplaysTotal.Inc()
}

func (m *Metrics) RecordIdempotencyPurged(n int64) {
	if n > 0 {
		m.IdempotencyPurgedTotal.Add(float64(n))
	}
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
