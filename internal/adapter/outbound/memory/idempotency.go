package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/domain/idempotency"
)

// IdempotencyStore is an in-memory implementation of idempotency.Store.
// Suitable for single-instance deployments and tests.
type IdempotencyStore struct {
	mu      sync.RWMutex
	records map[string]idempotency.Record
}

// NewIdempotencyStore creates an empty store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{records: make(map[string]idempotency.Record)}
}

func (s *IdempotencyStore) Create(_ context.Context, r *idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.Key]; ok {
		return idempotency.ErrDuplicateKey
	}
	s.records[r.Key] = clone(*r)
	return nil
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (*idempotency.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key]
	if !ok {
		return nil, idempotency.ErrRecordNotFound
	}
	out := clone(r)
	return &out, nil
}

func (s *IdempotencyStore) Complete(_ context.Context, r *idempotency.Record) error {
	return s.finalize(r)
}

func (s *IdempotencyStore) Fail(_ context.Context, r *idempotency.Record) error {
	return s.finalize(r)
}

func (s *IdempotencyStore) finalize(r *idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[r.Key]
	if !ok || stored.ID != r.ID {
		return idempotency.ErrRecordNotFound
	}
	if stored.Status != idempotency.StatusProcessing {
		return idempotency.ErrRecordFinalized
	}
	s.records[r.Key] = clone(*r)
	return nil
}

func (s *IdempotencyStore) Delete(_ context.Context, key string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[key]
	if !ok || stored.ID != id {
		return idempotency.ErrRecordNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *IdempotencyStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, r := range s.records {
		if r.IsExpired(now) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

func clone(r idempotency.Record) idempotency.Record {
	if r.Response != nil {
		r.Response = append([]byte(nil), r.Response...)
	}
	return r
}

// Compile-time check
var _ idempotency.Store = (*IdempotencyStore)(nil)
