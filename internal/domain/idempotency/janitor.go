package idempotency

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PurgeRecorder counts purged records.
type PurgeRecorder interface {
	RecordIdempotencyPurged(n int64)
}

// Janitor periodically deletes expired idempotency records.
type Janitor struct {
	mu sync.Mutex

	guard    *Guard
	interval time.Duration
	recorder PurgeRecorder
	logger   *zap.Logger

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewJanitor creates a janitor that purges through guard every interval.
func NewJanitor(guard *Guard, interval time.Duration, recorder PurgeRecorder, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		guard:    guard,
		interval: interval,
		recorder: recorder,
		logger:   logger.Named("idempotency-janitor"),
	}
}

// Start runs the purge loop until Stop is called or ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})

	j.wg.Add(1)
	go j.loop(ctx, j.stopCh)
}

// Stop stops the loop and waits for a running purge.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stopCh)
	j.mu.Unlock()

	j.wg.Wait()
}

func (j *Janitor) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce purges once and returns the number of deleted records.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	n, err := j.guard.PurgeExpired(ctx)
	if err != nil {
		j.logger.Warn("idempotency purge failed", zap.Error(err))
		return 0
	}
	if j.recorder != nil && n > 0 {
		j.recorder.RecordIdempotencyPurged(n)
	}
	return n
}
