package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists webhook events.
type Repository interface {
	// CreateIfAbsent inserts e unless (Provider, ExternalEventID) already
	// exists, in which case the stored event is returned with created=false.
	CreateIfAbsent(ctx context.Context, e *Event) (stored *Event, created bool, err error)

	// FindByID returns ErrEventNotFound when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*Event, error)

	// FindDue returns retrying events with NextRetryAt <= now, plus pending
	// or processing events not updated since staleBefore, oldest first.
	FindDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]*Event, error)

	// Update stores e if the stored Version still equals e.Version and then
	// increments e.Version. A stale version yields ErrEventClaimed.
	Update(ctx context.Context, e *Event) error

	// ListByStatus returns a page of events in status and the total count.
	ListByStatus(ctx context.Context, status Status, offset, limit int) ([]*Event, int64, error)
}
