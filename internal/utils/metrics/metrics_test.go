package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *Metrics {
	return NewWithRegisterer("test", prometheus.NewRegistry())
}

func TestRecordHTTPRequest(t *testing.T) {
	m := newTestMetrics()

	m.RecordHTTPRequest("POST", "/api/v1/payments", 201, 15*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/v1/payments", 422, 2*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/v1/payments", 201, 5*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/payments", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/payments", "4xx")))
}

func TestWebhookMetrics(t *testing.T) {
	m := newTestMetrics()

	m.RecordWebhookEvent("stripe", "processed")
	m.RecordWebhookEvent("stripe", "duplicate")
	m.RecordWebhookEvent("stripe", "duplicate")
	m.RecordWebhookRetry("paystack")
	m.RecordWebhookDeadLetter("paystack")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhookEventsTotal.WithLabelValues("stripe", "processed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.WebhookEventsTotal.WithLabelValues("stripe", "duplicate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhookRetriesTotal.WithLabelValues("paystack")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhookDeadLettersTotal.WithLabelValues("paystack")))
}

func TestPaymentAndProviderMetrics(t *testing.T) {
	m := newTestMetrics()

	m.RecordPayment("completed")
	m.RecordProviderRequest("stripe", "refund", "short_circuited")
	m.RecordIdempotencyReplay()
	m.RecordIdempotencyPurged(3)
	m.RecordIdempotencyPurged(0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PaymentsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderRequestsTotal.WithLabelValues("stripe", "refund", "short_circuited")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.IdempotencyReplaysTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.IdempotencyPurgedTotal))
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{409, "4xx"},
		{503, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, statusCodeToString(tt.code))
	}
}

func TestNew_DefaultNamespace(t *testing.T) {
	m := NewWithRegisterer("", prometheus.NewRegistry())
	assert.NotNil(t, m.WebhookEventsTotal)
}
