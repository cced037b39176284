package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SchedulerConfig contains retry scheduler configuration.
type SchedulerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int

	// StaleAfter is how long a pending or processing event may sit untouched
	// before the scheduler takes it over.
	StaleAfter time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    time.Minute,
		BatchSize:   100,
		Concurrency: 4,
		StaleAfter:  5 * time.Minute,
	}
}

// BatchStats summarizes one polling cycle.
type BatchStats struct {
	Selected  int
	Processed int
	Retrying  int
	Dead      int
	Skipped   int
	Errors    int
}

// RetryScheduler periodically re-attempts due webhook events.
type RetryScheduler struct {
	mu sync.Mutex

	events Repository
	domain WebhookDomain
	config SchedulerConfig
	now    func() time.Time
	logger *zap.Logger

	// Lifecycle
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRetryScheduler creates a new retry scheduler.
func NewRetryScheduler(events Repository, domain WebhookDomain, config SchedulerConfig, logger *zap.Logger) *RetryScheduler {
	defaults := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScheduler{
		events: events,
		domain: domain,
		config: config,
		now:    time.Now,
		logger: logger.Named("webhook-scheduler"),
	}
}

// WithClock replaces the scheduler's time source.
func (s *RetryScheduler) WithClock(now func() time.Time) *RetryScheduler {
	s.now = now
	return s
}

// Start runs the polling loop until Stop is called or ctx is done.
func (s *RetryScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.logger.Info("starting webhook retry scheduler",
		zap.Duration("interval", s.config.Interval),
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("concurrency", s.config.Concurrency),
	)

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh)
}

// Stop stops the polling loop and waits for the in-flight batch.
func (s *RetryScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.logger.Info("stopping webhook retry scheduler")
	s.wg.Wait()
	s.logger.Info("webhook retry scheduler stopped")
}

func (s *RetryScheduler) loop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("webhook retry cycle failed", zap.Error(err))
			}
		}
	}
}

// RunOnce processes one batch of due events. Failures of individual events
// are counted and logged; only a failed selection is returned.
func (s *RetryScheduler) RunOnce(ctx context.Context) (BatchStats, error) {
	now := s.now()
	due, err := s.events.FindDue(ctx, now, now.Add(-s.config.StaleAfter), s.config.BatchSize)
	if err != nil {
		return BatchStats{}, fmt.Errorf("find due webhook events: %w", err)
	}

	stats := BatchStats{Selected: len(due)}
	if len(due) == 0 {
		return stats, nil
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.config.Concurrency)

	for _, e := range due {
		g.Go(func() error {
			result, err := s.domain.ProcessEvent(ctx, e)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrEventClaimed):
				stats.Skipped++
			case err != nil:
				stats.Errors++
				s.logger.Warn("webhook retry attempt failed",
					zap.String("event_id", e.ExternalEventID),
					zap.Error(err),
				)
			case result.Outcome == OutcomeSuccess:
				stats.Processed++
			case e.Status == StatusDeadLetter:
				stats.Dead++
			default:
				stats.Retrying++
			}
			// Never abort the batch.
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("webhook retry cycle finished",
		zap.Int("selected", stats.Selected),
		zap.Int("processed", stats.Processed),
		zap.Int("retrying", stats.Retrying),
		zap.Int("dead_letter", stats.Dead),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}
