package payment

import (
	"github.com/uniedit/payflow/internal/infra/events"
)

// Event types emitted by the Payment aggregate.
const (
	EventPaymentCreated   = "payment.created"
	EventPaymentProcessed = "payment.processed"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
	EventPaymentRetried   = "payment.retried"

	aggregateType = "payment"
)

// AllEventTypes lists every payment event type.
func AllEventTypes() []string {
	return []string{
		EventPaymentCreated,
		EventPaymentProcessed,
		EventPaymentCompleted,
		EventPaymentFailed,
		EventPaymentRefunded,
		EventPaymentRetried,
	}
}

// PaymentCreated is emitted by NewPayment.
type PaymentCreated struct {
	events.BaseEvent
	OrderID  string `json:"order_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Provider string `json:"provider"`
}

// PaymentProcessed is emitted when the payment is handed to the provider.
type PaymentProcessed struct {
	events.BaseEvent
	OrderID     string `json:"order_id"`
	ExternalID  string `json:"external_id"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// PaymentCompleted is emitted when the provider confirms the charge.
type PaymentCompleted struct {
	events.BaseEvent
	OrderID    string `json:"order_id"`
	ExternalID string `json:"external_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

// PaymentFailed is emitted when the payment fails.
type PaymentFailed struct {
	events.BaseEvent
	OrderID    string `json:"order_id"`
	ExternalID string `json:"external_id,omitempty"`
	Reason     string `json:"reason"`
}

// PaymentRefunded is emitted when a completed payment is refunded.
type PaymentRefunded struct {
	events.BaseEvent
	OrderID    string `json:"order_id"`
	ExternalID string `json:"external_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

// PaymentRetried is emitted when a failed payment is reopened.
type PaymentRetried struct {
	events.BaseEvent
	OrderID string `json:"order_id"`
}
