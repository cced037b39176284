package idempotency

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an idempotency record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record remembers the outcome of the first request made with a client key.
// ID identifies one incarnation of the key so that a purge never removes a
// record that was recreated concurrently.
type Record struct {
	ID          uuid.UUID
	Key         string
	RequestHash string
	Status      Status
	Response    []byte
	StatusCode  int
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// NewRecord creates a processing record that expires ttl after now.
func NewRecord(key, requestHash string, now time.Time, ttl time.Duration) *Record {
	now = now.UTC().Truncate(time.Microsecond)
	return &Record{
		ID:          uuid.New(),
		Key:         key,
		RequestHash: requestHash,
		Status:      StatusProcessing,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// IsExpired reports whether the record is logically inert at now.
func (r *Record) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Complete stores the response of a successful operation.
func (r *Record) Complete(response []byte, statusCode int) error {
	if r.Status != StatusProcessing {
		return ErrRecordFinalized
	}
	r.Status = StatusCompleted
	r.Response = response
	r.StatusCode = statusCode
	return nil
}

// Fail marks the operation as failed.
func (r *Record) Fail() error {
	if r.Status != StatusProcessing {
		return ErrRecordFinalized
	}
	r.Status = StatusFailed
	return nil
}
