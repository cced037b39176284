package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists idempotency records.
// This interface is defined in the domain layer and implemented by outbound adapters.
type Store interface {
	// Create inserts r. It returns ErrDuplicateKey if r.Key already exists.
	Create(ctx context.Context, r *Record) error

	// Get returns ErrRecordNotFound when no record exists for key.
	Get(ctx context.Context, key string) (*Record, error)

	// Complete persists a completed record. Only a processing record with
	// the same ID is updated; otherwise ErrRecordFinalized is returned.
	Complete(ctx context.Context, r *Record) error

	// Fail persists a failed record under the same conditions as Complete.
	Fail(ctx context.Context, r *Record) error

	// Delete removes the record for key if it is still incarnation id.
	Delete(ctx context.Context, key string, id uuid.UUID) error

	// DeleteExpired removes records whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
