package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uniedit/payflow/internal/domain/idempotency"
	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/domain/webhook"
	"github.com/uniedit/payflow/internal/port/outbound"
)

// PaymentEntity is the GORM model for payments table.
type PaymentEntity struct {
	ID            uuid.UUID             `gorm:"type:uuid;primaryKey"`
	OrderID       string                `gorm:"not null;index"`
	Amount        decimal.Decimal       `gorm:"type:numeric(18,2);not null"`
	Currency      string                `gorm:"size:3;not null"`
	Status        payment.PaymentStatus `gorm:"not null;index"`
	Provider      string                `gorm:"not null;index:idx_payments_provider_external,priority:1"`
	ExternalID    string                `gorm:"index:idx_payments_provider_external,priority:2"`
	CheckoutURL   string
	FailureReason string
	Version       int `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// TableName returns the database table name.
func (PaymentEntity) TableName() string {
	return "payments"
}

// ToDomain converts the entity to a domain Payment.
func (e *PaymentEntity) ToDomain() *payment.Payment {
	return payment.RestorePayment(
		e.ID,
		e.OrderID,
		payment.RestoreMoney(e.Amount, e.Currency),
		e.Status,
		e.Provider,
		e.ExternalID,
		e.CheckoutURL,
		e.FailureReason,
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
		e.CompletedAt,
	)
}

// FromDomainPayment converts a domain Payment to an entity.
func FromDomainPayment(p *payment.Payment) *PaymentEntity {
	return &PaymentEntity{
		ID:            p.ID(),
		OrderID:       p.OrderID(),
		Amount:        p.Amount().Amount(),
		Currency:      p.Amount().Currency().String(),
		Status:        p.Status(),
		Provider:      p.Provider(),
		ExternalID:    p.ExternalID(),
		CheckoutURL:   p.CheckoutURL(),
		FailureReason: p.FailureReason(),
		Version:       p.Version(),
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
		CompletedAt:   p.CompletedAt(),
	}
}

// PaymentTransactionEntity is the GORM model for payment_transactions table.
type PaymentTransactionEntity struct {
	ID            uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	PaymentID     uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Type          payment.TransactionType   `gorm:"not null"`
	Amount        decimal.Decimal           `gorm:"type:numeric(18,2);not null"`
	Currency      string                    `gorm:"size:3;not null"`
	Status        payment.TransactionStatus `gorm:"not null"`
	ExternalID    string                    `gorm:"index"`
	FailureReason string
	Timestamp     time.Time `gorm:"column:occurred_at;not null"`
}

// TableName returns the database table name.
func (PaymentTransactionEntity) TableName() string {
	return "payment_transactions"
}

// ToDomain converts the entity to a domain Transaction.
func (e *PaymentTransactionEntity) ToDomain() *payment.Transaction {
	return &payment.Transaction{
		ID:            e.ID,
		PaymentID:     e.PaymentID,
		Type:          e.Type,
		Amount:        payment.RestoreMoney(e.Amount, e.Currency),
		Status:        e.Status,
		ExternalID:    e.ExternalID,
		FailureReason: e.FailureReason,
		Timestamp:     e.Timestamp,
	}
}

// FromDomainTransaction converts a domain Transaction to an entity.
func FromDomainTransaction(t *payment.Transaction) *PaymentTransactionEntity {
	return &PaymentTransactionEntity{
		ID:            t.ID,
		PaymentID:     t.PaymentID,
		Type:          t.Type,
		Amount:        t.Amount.Amount(),
		Currency:      t.Amount.Currency().String(),
		Status:        t.Status,
		ExternalID:    t.ExternalID,
		FailureReason: t.FailureReason,
		Timestamp:     t.Timestamp,
	}
}

// WebhookEventEntity is the GORM model for webhook_events table.
type WebhookEventEntity struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Provider        string         `gorm:"not null;uniqueIndex:idx_webhook_events_provider_event,priority:1"`
	ExternalEventID string         `gorm:"column:external_event_id;not null;uniqueIndex:idx_webhook_events_provider_event,priority:2"`
	EventType       string         `gorm:"not null"`
	Payload         []byte         `gorm:"type:bytea;not null"`
	Signature       string         `gorm:"type:text"`
	Normalized      []byte         `gorm:"type:jsonb"`
	Status          webhook.Status `gorm:"not null;index:idx_webhook_events_due,priority:1"`
	RetryCount      int            `gorm:"not null;default:0"`
	MaxRetries      int            `gorm:"not null"`
	NextRetryAt     *time.Time     `gorm:"index:idx_webhook_events_due,priority:2"`
	LastError       string         `gorm:"type:text"`
	ProcessedAt     *time.Time
	ReplayCount     int `gorm:"not null;default:0"`
	Version         int `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the database table name.
func (WebhookEventEntity) TableName() string {
	return "webhook_events"
}

// ToDomain converts the entity to a domain webhook Event.
func (e *WebhookEventEntity) ToDomain() (*webhook.Event, error) {
	var decoded *outbound.ProviderEvent
	if len(e.Normalized) > 0 {
		decoded = &outbound.ProviderEvent{}
		if err := json.Unmarshal(e.Normalized, decoded); err != nil {
			return nil, err
		}
	}
	return &webhook.Event{
		ID:              e.ID,
		Provider:        e.Provider,
		ExternalEventID: e.ExternalEventID,
		EventType:       e.EventType,
		Payload:         e.Payload,
		Signature:       e.Signature,
		Decoded:         decoded,
		Status:          e.Status,
		RetryCount:      e.RetryCount,
		MaxRetries:      e.MaxRetries,
		NextRetryAt:     e.NextRetryAt,
		LastError:       e.LastError,
		ProcessedAt:     e.ProcessedAt,
		ReplayCount:     e.ReplayCount,
		Version:         e.Version,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}, nil
}

// FromDomainWebhookEvent converts a domain webhook Event to an entity.
func FromDomainWebhookEvent(ev *webhook.Event) (*WebhookEventEntity, error) {
	var normalized []byte
	if ev.Decoded != nil {
		var err error
		if normalized, err = json.Marshal(ev.Decoded); err != nil {
			return nil, err
		}
	}
	return &WebhookEventEntity{
		ID:              ev.ID,
		Provider:        ev.Provider,
		ExternalEventID: ev.ExternalEventID,
		EventType:       ev.EventType,
		Payload:         ev.Payload,
		Signature:       ev.Signature,
		Normalized:      normalized,
		Status:          ev.Status,
		RetryCount:      ev.RetryCount,
		MaxRetries:      ev.MaxRetries,
		NextRetryAt:     ev.NextRetryAt,
		LastError:       ev.LastError,
		ProcessedAt:     ev.ProcessedAt,
		ReplayCount:     ev.ReplayCount,
		Version:         ev.Version,
		CreatedAt:       ev.CreatedAt,
		UpdatedAt:       ev.UpdatedAt,
	}, nil
}

// IdempotencyKeyEntity is the GORM model for idempotency_keys table.
type IdempotencyKeyEntity struct {
	Key         string             `gorm:"primaryKey;size:255"`
	ID          uuid.UUID          `gorm:"type:uuid;not null"`
	RequestHash string             `gorm:"size:64;not null"`
	Status      idempotency.Status `gorm:"not null"`
	Response    []byte             `gorm:"type:bytea"`
	StatusCode  int
	CreatedAt   time.Time
	ExpiresAt   time.Time `gorm:"not null;index"`
}

// TableName returns the database table name.
func (IdempotencyKeyEntity) TableName() string {
	return "idempotency_keys"
}

// ToDomain converts the entity to a domain Record.
func (e *IdempotencyKeyEntity) ToDomain() *idempotency.Record {
	return &idempotency.Record{
		ID:          e.ID,
		Key:         e.Key,
		RequestHash: e.RequestHash,
		Status:      e.Status,
		Response:    e.Response,
		StatusCode:  e.StatusCode,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

// FromDomainIdempotencyRecord converts a domain Record to an entity.
func FromDomainIdempotencyRecord(r *idempotency.Record) *IdempotencyKeyEntity {
	return &IdempotencyKeyEntity{
		Key:         r.Key,
		ID:          r.ID,
		RequestHash: r.RequestHash,
		Status:      r.Status,
		Response:    r.Response,
		StatusCode:  r.StatusCode,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

// All returns every entity managed by AutoMigrate.
func All() []any {
	return []any{
		&PaymentEntity{},
		&PaymentTransactionEntity{},
		&WebhookEventEntity{},
		&IdempotencyKeyEntity{},
	}
}
