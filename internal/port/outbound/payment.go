package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSignature is returned when a webhook signature does not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent is returned when a verified webhook payload cannot be decoded.
	ErrMalformedEvent = errors.New("malformed webhook event")

	// ErrProviderNotFound is returned when no adapter is registered under a name.
	ErrProviderNotFound = errors.New("payment provider not found")

	// ErrProviderUnavailable is returned when a provider is short-circuited.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// ProviderAmount is a money amount as handed to a provider adapter.
type ProviderAmount struct {
	Value    decimal.Decimal
	Currency string
}

// MinorUnits returns the amount in the currency's minor unit (cents).
func (a ProviderAmount) MinorUnits() int64 {
	return a.Value.Shift(2).Round(0).IntPart()
}

// PaymentIntentRequest describes a checkout to open at the provider.
type PaymentIntentRequest struct {
	Amount    ProviderAmount
	OrderID   string
	ReturnURL string
	CancelURL string
	Metadata  map[string]string

	// IdempotencyKey is forwarded to providers that accept one so a retried
	// call resolves to the same upstream object.
	IdempotencyKey string
}

// ProviderIntent is the provider's answer to a payment intent request.
type ProviderIntent struct {
	ExternalID  string
	CheckoutURL string
	Status      string
}

// ProviderPaymentStatus is the normalized status reported by ConfirmPayment.
type ProviderPaymentStatus string

const (
	ProviderPaymentSucceeded ProviderPaymentStatus = "succeeded"
	ProviderPaymentFailed    ProviderPaymentStatus = "failed"
	ProviderPaymentPending   ProviderPaymentStatus = "pending"
)

// ProviderConfirmation is the result of asking the provider for a payment's state.
type ProviderConfirmation struct {
	Status        ProviderPaymentStatus
	FailureReason string
}

// ProviderRefund is the result of a refund request.
type ProviderRefund struct {
	RefundID      string
	Status        string
	FailureReason string
}

// ProviderEventKind is the provider-independent meaning of a webhook event.
type ProviderEventKind string

const (
	EventCheckoutCompleted ProviderEventKind = "checkout.completed"
	EventCheckoutExpired   ProviderEventKind = "checkout.expired"
	EventPaymentFailed     ProviderEventKind = "payment.failed"
	EventRefundCompleted   ProviderEventKind = "refund.completed"
	EventUnknown           ProviderEventKind = "unknown"
)

// ProviderEvent is a verified, decoded webhook event.
type ProviderEvent struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Kind          ProviderEventKind `json:"kind"`
	ExternalID    string            `json:"external_id,omitempty"`
	OrderID       string            `json:"order_id,omitempty"`
	Amount        string            `json:"amount,omitempty"`
	Currency      string            `json:"currency,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PaymentProviderPort is the contract every payment provider integration satisfies.
type PaymentProviderPort interface {
	// Name returns the registry key of the provider (e.g. "stripe").
	Name() string

	// CreatePaymentIntent opens a checkout for an order.
	CreatePaymentIntent(ctx context.Context, req *PaymentIntentRequest) (*ProviderIntent, error)

	// ConfirmPayment reports the provider-side state of a payment.
	ConfirmPayment(ctx context.Context, externalID string) (*ProviderConfirmation, error)

	// Refund refunds a payment. A nil amount refunds the full amount.
	Refund(ctx context.Context, externalID string, amount *ProviderAmount) (*ProviderRefund, error)

	// ValidateWebhookSignature verifies a raw payload against its signature
	// using a constant-time comparison.
	ValidateWebhookSignature(payload []byte, signature string) bool

	// ParseWebhookEvent re-validates the signature and decodes the payload.
	// It fails closed with ErrInvalidSignature.
	ParseWebhookEvent(payload []byte, signature string) (*ProviderEvent, error)

	// ExtractSignature picks the signature out of an inbound webhook request.
	ExtractSignature(headers map[string]string, payload []byte) string
}

// PaymentProviderRegistryPort resolves provider adapters by name.
type PaymentProviderRegistryPort interface {
	// Get returns a payment provider by name.
	Get(name string) (PaymentProviderPort, error)

	// Register registers a payment provider under its Name.
	Register(provider PaymentProviderPort)

	// List returns the registered provider names.
	List() []string
}
