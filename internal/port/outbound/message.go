package outbound

import (
	"context"

	"github.com/uniedit/payflow/internal/infra/events"
)

// EventPublisherPort defines domain event publishing.
type EventPublisherPort interface {
	// Publish publishes a domain event to its subscribers.
	Publish(ctx context.Context, event events.Event) error
}

// DeadLetterArchivePort stores the raw payload of webhook events that
// exhausted their retries, for offline inspection.
type DeadLetterArchivePort interface {
	// Archive stores payload under a key derived from provider and event id.
	Archive(ctx context.Context, provider, externalEventID string, payload []byte) (string, error)
}
