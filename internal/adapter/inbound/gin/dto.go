package gin

import (
	"time"

	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/domain/webhook"
	"github.com/uniedit/payflow/internal/utils/pagination"
)

// CreatePaymentRequest is the body of POST /payments.
type CreatePaymentRequest struct {
	OrderID  string `json:"order_id" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	Provider string `json:"provider"`
}

// ProcessPaymentRequest is the optional body of POST /payments/:id/process.
type ProcessPaymentRequest struct {
	ReturnURL string            `json:"return_url"`
	CancelURL string            `json:"cancel_url"`
	Metadata  map[string]string `json:"metadata"`
}

// ListPaymentsQuery holds the query parameters of GET /payments.
type ListPaymentsQuery struct {
	OrderID  string `form:"order_id"`
	Status   string `form:"status"`
	Provider string `form:"provider"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// PaymentResponse is the public representation of a payment.
type PaymentResponse struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Provider      string     `json:"provider"`
	ExternalID    string     `json:"external_id,omitempty"`
	CheckoutURL   string     `json:"checkout_url,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toPaymentResponse(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID().String(),
		OrderID:       p.OrderID(),
		Amount:        p.Amount().Amount().StringFixed(2),
		Currency:      p.Amount().Currency().String(),
		Status:        p.Status().String(),
		Provider:      p.Provider(),
		ExternalID:    p.ExternalID(),
		CheckoutURL:   p.CheckoutURL(),
		FailureReason: p.FailureReason(),
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
		CompletedAt:   p.CompletedAt(),
	}
}

// TransactionResponse is the public representation of a ledger row.
type TransactionResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	ExternalID    string    `json:"external_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func toTransactionResponse(t *payment.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID.String(),
		Type:          string(t.Type),
		Amount:        t.Amount.Amount().StringFixed(2),
		Currency:      t.Amount.Currency().String(),
		Status:        string(t.Status),
		ExternalID:    t.ExternalID,
		FailureReason: t.FailureReason,
		Timestamp:     t.Timestamp,
	}
}

// WebhookEventResponse is the admin view of a stored webhook event.
// The raw payload is never returned.
type WebhookEventResponse struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	ExternalEventID string     `json:"external_event_id"`
	EventType       string     `json:"event_type"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ReplayCount     int        `json:"replay_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toWebhookEventResponse(e *webhook.Event) WebhookEventResponse {
	return WebhookEventResponse{
		ID:              e.ID.String(),
		Provider:        e.Provider,
		ExternalEventID: e.ExternalEventID,
		EventType:       e.EventType,
		Status:          string(e.Status),
		RetryCount:      e.RetryCount,
		MaxRetries:      e.MaxRetries,
		NextRetryAt:     e.NextRetryAt,
		LastError:       e.LastError,
		ProcessedAt:     e.ProcessedAt,
		ReplayCount:     e.ReplayCount,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// PaginatedResponse wraps a page of results.
type PaginatedResponse[T any] struct {
	Data []T `json:"data"`
	pagination.PageInfo
}

func newPage[T any](data []T, total int64, p pagination.Pagination) PaginatedResponse[T] {
	if data == nil {
		data = []T{}
	}
	return PaginatedResponse[T]{Data: data, PageInfo: p.Info(total)}
}
