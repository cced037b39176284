package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/domain/webhook"
)

// WebhookEventStore is an in-memory implementation of webhook.Repository.
type WebhookEventStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]webhook.Event
	byKey map[string]uuid.UUID
}

// NewWebhookEventStore creates an empty store.
func NewWebhookEventStore() *WebhookEventStore {
	return &WebhookEventStore{
		byID:  make(map[uuid.UUID]webhook.Event),
		byKey: make(map[string]uuid.UUID),
	}
}

func dedupKey(provider, externalEventID string) string {
	return provider + "\x00" + externalEventID
}

func (s *WebhookEventStore) CreateIfAbsent(_ context.Context, e *webhook.Event) (*webhook.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(e.Provider, e.ExternalEventID)
	if id, ok := s.byKey[key]; ok {
		existing := cloneEvent(s.byID[id])
		return &existing, false, nil
	}
	s.byKey[key] = e.ID
	s.byID[e.ID] = cloneEvent(*e)

	stored := cloneEvent(*e)
	return &stored, true, nil
}

func (s *WebhookEventStore) FindByID(_ context.Context, id uuid.UUID) (*webhook.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, webhook.ErrEventNotFound
	}
	out := cloneEvent(e)
	return &out, nil
}

func (s *WebhookEventStore) FindDue(_ context.Context, now, staleBefore time.Time, limit int) ([]*webhook.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*webhook.Event
	for _, e := range s.byID {
		switch e.Status {
		case webhook.StatusRetrying:
			if e.NextRetryAt == nil || e.NextRetryAt.After(now) {
				continue
			}
		case webhook.StatusPending, webhook.StatusProcessing:
			if e.UpdatedAt.After(staleBefore) {
				continue
			}
		default:
			continue
		}
		out := cloneEvent(e)
		due = append(due, &out)
	}

	sort.Slice(due, func(i, j int) bool { return dueAt(due[i]).Before(dueAt(due[j])) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func dueAt(e *webhook.Event) time.Time {
	if e.Status == webhook.StatusRetrying && e.NextRetryAt != nil {
		return *e.NextRetryAt
	}
	return e.UpdatedAt
}

func (s *WebhookEventStore) Update(_ context.Context, e *webhook.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[e.ID]
	if !ok {
		return webhook.ErrEventNotFound
	}
	if stored.Version != e.Version {
		return webhook.ErrEventClaimed
	}
	e.Version++
	s.byID[e.ID] = cloneEvent(*e)
	return nil
}

func (s *WebhookEventStore) ListByStatus(_ context.Context, status webhook.Status, offset, limit int) ([]*webhook.Event, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*webhook.Event
	for _, e := range s.byID {
		if e.Status == status {
			out := cloneEvent(e)
			matched = append(matched, &out)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt.After(matched[j].UpdatedAt) })

	total := int64(len(matched))
	if offset >= len(matched) {
		return []*webhook.Event{}, total, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}

func cloneEvent(e webhook.Event) webhook.Event {
	e.Payload = append([]byte(nil), e.Payload...)
	if e.NextRetryAt != nil {
		t := *e.NextRetryAt
		e.NextRetryAt = &t
	}
	if e.ProcessedAt != nil {
		t := *e.ProcessedAt
		e.ProcessedAt = &t
	}
	if e.Decoded != nil {
		decoded := *e.Decoded
		if decoded.Metadata != nil {
			decoded.Metadata = make(map[string]string, len(e.Decoded.Metadata))
			for k, v := range e.Decoded.Metadata {
				decoded.Metadata[k] = v
			}
		}
		e.Decoded = &decoded
	}
	return e
}

// Compile-time check
var _ webhook.Repository = (*WebhookEventStore)(nil)
