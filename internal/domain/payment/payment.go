package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/infra/events"
)

var timeNow = time.Now

// Payment is the aggregate root of the payment lifecycle. It is mutated only
// through its named operations, each of which validates the transition and
// records exactly one event.
type Payment struct {
	id            uuid.UUID
	orderID       string
	amount        Money
	status        PaymentStatus
	provider      string
	externalID    string
	checkoutURL   string
	failureReason string
	version       int
	createdAt     time.Time
	updatedAt     time.Time
	completedAt   *time.Time

	pending []events.Event
}

// NewPayment creates a pending payment and records PaymentCreated.
func NewPayment(orderID string, amount Money, provider string) (*Payment, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, &ValidationError{Field: "order_id", Err: ErrInvalidOrderID}
	}
	if amount.IsZero() {
		return nil, &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}

	now := timeNow()
	p := &Payment{
		id:        uuid.New(),
		orderID:   orderID,
		amount:    amount,
		status:    StatusPending,
		provider:  provider,
		createdAt: now,
		updatedAt: now,
	}
	p.record(&PaymentCreated{
		BaseEvent: events.NewBaseEvent(EventPaymentCreated, p.id, aggregateType, now),
		OrderID:   orderID,
		Amount:    amount.Amount().StringFixed(moneyScale),
		Currency:  amount.Currency().String(),
		Provider:  provider,
	})
	return p, nil
}

// RestorePayment recreates a Payment from persisted data without recording events.
func RestorePayment(
	id uuid.UUID,
	orderID string,
	amount Money,
	status PaymentStatus,
	provider, externalID, checkoutURL, failureReason string,
	version int,
	createdAt, updatedAt time.Time,
	completedAt *time.Time,
) *Payment {
	return &Payment{
		id:            id,
		orderID:       orderID,
		amount:        amount,
		status:        status,
		provider:      provider,
		externalID:    externalID,
		checkoutURL:   checkoutURL,
		failureReason: failureReason,
		version:       version,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
		completedAt:   completedAt,
	}
}

func (p *Payment) ID() uuid.UUID           { return p.id }
func (p *Payment) OrderID() string         { return p.orderID }
func (p *Payment) Amount() Money           { return p.amount }
func (p *Payment) Status() PaymentStatus   { return p.status }
func (p *Payment) Provider() string        { return p.provider }
func (p *Payment) ExternalID() string      { return p.externalID }
func (p *Payment) CheckoutURL() string     { return p.checkoutURL }
func (p *Payment) FailureReason() string   { return p.failureReason }
func (p *Payment) Version() int            { return p.version }
func (p *Payment) CreatedAt() time.Time    { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time    { return p.updatedAt }
func (p *Payment) CompletedAt() *time.Time { return p.completedAt }

// Process records that the provider accepted the payment: pending -> processing.
func (p *Payment) Process(externalID, checkoutURL string) error {
	if err := p.transition(StatusProcessing, "process"); err != nil {
		return err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return &ValidationError{Field: "external_id", Err: ErrInvalidExternalID}
	}

	now := p.touch(StatusProcessing)
	p.externalID = externalID
	p.checkoutURL = checkoutURL
	p.record(&PaymentProcessed{
		BaseEvent:   events.NewBaseEvent(EventPaymentProcessed, p.id, aggregateType, now),
		OrderID:     p.orderID,
		ExternalID:  externalID,
		CheckoutURL: checkoutURL,
	})
	return nil
}

// Complete marks the charge as captured: processing -> completed.
func (p *Payment) Complete() error {
	if err := p.transition(StatusCompleted, "complete"); err != nil {
		return err
	}
	now := p.touch(StatusCompleted)
	p.completedAt = &now
	p.failureReason = ""
	p.record(&PaymentCompleted{
		BaseEvent:  events.NewBaseEvent(EventPaymentCompleted, p.id, aggregateType, now),
		OrderID:    p.orderID,
		ExternalID: p.externalID,
		Amount:     p.amount.Amount().StringFixed(moneyScale),
		Currency:   p.amount.Currency().String(),
	})
	return nil
}

// Fail marks the payment as failed from pending or processing.
func (p *Payment) Fail(reason string) error {
	if err := p.transition(StatusFailed, "fail"); err != nil {
		return err
	}
	now := p.touch(StatusFailed)
	p.failureReason = reason
	p.record(&PaymentFailed{
		BaseEvent:  events.NewBaseEvent(EventPaymentFailed, p.id, aggregateType, now),
		OrderID:    p.orderID,
		ExternalID: p.externalID,
		Reason:     reason,
	})
	return nil
}

// Refund marks a completed payment as refunded. Refunds are always full.
func (p *Payment) Refund() error {
	if err := p.transition(StatusRefunded, "refund"); err != nil {
		return err
	}
	now := p.touch(StatusRefunded)
	p.record(&PaymentRefunded{
		BaseEvent:  events.NewBaseEvent(EventPaymentRefunded, p.id, aggregateType, now),
		OrderID:    p.orderID,
		ExternalID: p.externalID,
		Amount:     p.amount.Amount().StringFixed(moneyScale),
		Currency:   p.amount.Currency().String(),
	})
	return nil
}

// Retry reopens a failed payment: failed -> pending. The previous provider
// reference is cleared so the next Process starts a fresh checkout.
func (p *Payment) Retry() error {
	if err := p.transition(StatusPending, "retry"); err != nil {
		return err
	}
	now := p.touch(StatusPending)
	p.externalID = ""
	p.checkoutURL = ""
	p.failureReason = ""
	p.record(&PaymentRetried{
		BaseEvent: events.NewBaseEvent(EventPaymentRetried, p.id, aggregateType, now),
		OrderID:   p.orderID,
	})
	return nil
}

// Events returns the uncommitted events without clearing them.
func (p *Payment) Events() []events.Event {
	out := make([]events.Event, len(p.pending))
	copy(out, p.pending)
	return out
}

// PullEvents returns the uncommitted events and clears the buffer.
func (p *Payment) PullEvents() []events.Event {
	out := p.pending
	p.pending = nil
	return out
}

// MarkPersisted bumps the optimistic version after a successful write.
func (p *Payment) MarkPersisted() {
	p.version++
}

func (p *Payment) transition(target PaymentStatus, action string) error {
	if !p.status.CanTransitionTo(target) {
		return &InvalidPaymentStateError{CurrentState: p.status, AttemptedAction: action}
	}
	return nil
}

func (p *Payment) touch(status PaymentStatus) time.Time {
	now := timeNow()
	p.status = status
	p.updatedAt = now
	return now
}

func (p *Payment) record(e events.Event) {
	p.pending = append(p.pending, e)
}
