package webhook

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/port/outbound"
)

// Status is the lifecycle state of a stored webhook event.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusRetrying   Status = "retrying"
	StatusDeadLetter Status = "dead_letter"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusRetrying, StatusDeadLetter:
		return true
	}
	return false
}

// Event is an inbound provider notification and its delivery state.
// (Provider, ExternalEventID) is unique. Decoded holds the verified event
// so retries never re-check a signature whose timestamp has aged out.
type Event struct {
	ID              uuid.UUID
	Provider        string
	ExternalEventID string
	EventType       string
	Payload         []byte
	Signature       string
	Decoded         *outbound.ProviderEvent
	Status          Status
	RetryCount      int
	MaxRetries      int
	NextRetryAt     *time.Time
	LastError       string
	ProcessedAt     *time.Time
	ReplayCount     int
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewEvent creates a pending event from a verified provider event.
func NewEvent(provider string, decoded *outbound.ProviderEvent, payload []byte, signature string, maxRetries int, now time.Time) *Event {
	return &Event{
		ID:              uuid.New(),
		Provider:        provider,
		ExternalEventID: decoded.ID,
		EventType:       decoded.Type,
		Payload:         payload,
		Signature:       signature,
		Decoded:         decoded,
		Status:          StatusPending,
		MaxRetries:      maxRetries,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsTerminal reports whether the event left the retry cycle.
func (e *Event) IsTerminal() bool {
	return e.Status == StatusProcessed || e.Status == StatusDeadLetter
}

// MarkProcessing claims the event for a processing attempt.
func (e *Event) MarkProcessing(now time.Time) error {
	if e.Status != StatusPending && e.Status != StatusRetrying {
		return e.stateError("process")
	}
	e.Status = StatusProcessing
	e.UpdatedAt = now
	return nil
}

// MarkProcessed records a successful attempt.
func (e *Event) MarkProcessed(now time.Time) error {
	if e.Status != StatusProcessing {
		return e.stateError("mark processed")
	}
	e.Status = StatusProcessed
	e.NextRetryAt = nil
	e.ProcessedAt = &now
	e.UpdatedAt = now
	return nil
}

// RecordFailure counts a failed attempt. It schedules the next attempt or,
// once RetryCount reaches MaxRetries, dead-letters the event and returns true.
func (e *Event) RecordFailure(cause error, now time.Time, backoff *Backoff) (bool, error) {
	if e.Status != StatusProcessing {
		return false, e.stateError("record failure")
	}
	e.RetryCount++
	e.LastError = errorText(cause)
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = StatusDeadLetter
		e.NextRetryAt = nil
		return true, nil
	}

	next := backoff.CalculateNextRetryTime(e.RetryCount, now)
	e.Status = StatusRetrying
	e.NextRetryAt = &next
	return false, nil
}

// DeadLetter stops retrying after a failure that cannot succeed on retry.
func (e *Event) DeadLetter(cause error, now time.Time) error {
	if e.IsTerminal() {
		return e.stateError("dead-letter")
	}
	e.Status = StatusDeadLetter
	e.LastError = errorText(cause)
	e.NextRetryAt = nil
	e.UpdatedAt = now
	return nil
}

// Requeue moves a dead-lettered event back to pending with a fresh retry budget.
func (e *Event) Requeue(now time.Time) error {
	if e.Status != StatusDeadLetter {
		return ErrNotDeadLettered
	}
	e.Status = StatusPending
	e.RetryCount = 0
	e.NextRetryAt = nil
	e.ReplayCount++
	e.UpdatedAt = now
	return nil
}

func (e *Event) stateError(action string) error {
	return fmt.Errorf("%w: cannot %s event in %s", ErrInvalidEventState, action, e.Status)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}
	return msg
}
