package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// maxAttempts bounds how often Execute re-reads a key after losing a race.
const maxAttempts = 3

// Response is the outcome of a guarded operation.
type Response struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

// Operation is the work protected by a Guard.
type Operation func(ctx context.Context) (*Response, error)

// Guard runs an operation at most once per client key.
type Guard struct {
	store      Store
	defaultTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewGuard creates a Guard backed by store.
func NewGuard(store Store, defaultTTL time.Duration, logger *zap.Logger) *Guard {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		store:      store,
		defaultTTL: defaultTTL,
		now:        time.Now,
		logger:     logger.Named("idempotency"),
	}
}

// Execute runs fn unless a record for key already decides the outcome.
// A zero ttl uses the guard's default.
func (g *Guard) Execute(ctx context.Context, key, fingerprint string, ttl time.Duration, fn Operation) (*Response, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = g.defaultTTL
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		existing, err := g.store.Get(ctx, key)
		if errors.Is(err, ErrRecordNotFound) {
			record := NewRecord(key, fingerprint, g.now(), ttl)
			if err := g.store.Create(ctx, record); err != nil {
				if errors.Is(err, ErrDuplicateKey) {
					continue
				}
				return nil, fmt.Errorf("create idempotency record: %w", err)
			}
			return g.run(ctx, record, fn)
		}
		if err != nil {
			return nil, fmt.Errorf("get idempotency record: %w", err)
		}

		if existing.IsExpired(g.now()) {
			if err := g.store.Delete(ctx, key, existing.ID); err != nil && !errors.Is(err, ErrRecordNotFound) {
				return nil, fmt.Errorf("purge expired idempotency record: %w", err)
			}
			continue
		}

		if existing.RequestHash != fingerprint {
			return nil, ErrIdempotencyConflict
		}

		switch existing.Status {
		case StatusCompleted:
			g.logger.Debug("replaying stored response", zap.String("key", key))
			return &Response{StatusCode: existing.StatusCode, Body: existing.Response, Replayed: true}, nil
		case StatusProcessing:
			return nil, ErrOperationInProgress
		case StatusFailed:
			if err := g.store.Delete(ctx, key, existing.ID); err != nil && !errors.Is(err, ErrRecordNotFound) {
				return nil, fmt.Errorf("purge failed idempotency record: %w", err)
			}
			continue
		default:
			return nil, fmt.Errorf("idempotency record %q has unknown status %q", key, existing.Status)
		}
	}

	return nil, ErrOperationInProgress
}

func (g *Guard) run(ctx context.Context, record *Record, fn Operation) (*Response, error) {
	// A panic must not strand the key in processing; the caller's recovery
	// still sees the original panic.
	defer func() {
		if r := recover(); r != nil {
			g.fail(ctx, record)
			panic(r)
		}
	}()

	resp, opErr := fn(ctx)
	if opErr != nil {
		g.fail(ctx, record)
		return nil, opErr
	}
	if resp == nil {
		resp = &Response{}
	}

	if err := record.Complete(resp.Body, resp.StatusCode); err == nil {
		if err := g.store.Complete(context.WithoutCancel(ctx), record); err != nil {
			g.logger.Error("failed to store idempotent response",
				zap.String("key", record.Key),
				zap.Error(err),
			)
		}
	}
	return resp, nil
}

func (g *Guard) fail(ctx context.Context, record *Record) {
	if err := record.Fail(); err != nil {
		return
	}
	if err := g.store.Fail(context.WithoutCancel(ctx), record); err != nil {
		g.logger.Error("failed to mark idempotency record failed",
			zap.String("key", record.Key),
			zap.Error(err),
		)
	}
}

// WithClock replaces the guard's time source.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// PurgeExpired deletes records that expired before now.
func (g *Guard) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := g.store.DeleteExpired(ctx, g.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired idempotency records: %w", err)
	}
	if n > 0 {
		g.logger.Info("purged expired idempotency records", zap.Int64("count", n))
	}
	return n, nil
}
