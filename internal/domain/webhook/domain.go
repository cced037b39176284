package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/port/outbound"
	"github.com/uniedit/payflow/internal/utils/pagination"
	"go.uber.org/zap"
)

// Config contains webhook processing configuration.
type Config struct {
	MaxRetries        int
	ProcessingTimeout time.Duration

	// ReplayLimit caps manual replays of one event per ReplayWindow. Zero disables the cap.
	ReplayLimit  int
	ReplayWindow time.Duration
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        5,
		ProcessingTimeout: 10 * time.Second,
		ReplayWindow:      time.Hour,
	}
}

// Recorder receives webhook outcome counts.
type Recorder interface {
	RecordWebhookEvent(provider, outcome string)
	RecordWebhookRetry(provider string)
	RecordWebhookDeadLetter(provider string)
}

// WebhookDomain ingests provider notifications and drives them to a
// terminal state.
type WebhookDomain interface {
	// Receive verifies, stores and processes a notification. Processing
	// failures are absorbed and left to the retry scheduler; only
	// verification and storage errors are returned.
	Receive(ctx context.Context, provider string, payload []byte, signature string) (*Event, error)

	// ProcessEvent claims e and runs one processing attempt. An event left
	// in processing past the stale threshold is recorded as a failed attempt.
	ProcessEvent(ctx context.Context, e *Event) (ProcessResult, error)

	// ExtractSignature pulls the provider's signature from the request.
	ExtractSignature(provider string, headers map[string]string, payload []byte) (string, error)

	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)

	// ListDeadLetters returns a page of dead-lettered events and the total count.
	ListDeadLetters(ctx context.Context, page, pageSize int) ([]*Event, int64, error)

	// RetryDeadLetterEvent resets a dead-lettered event and processes it again.
	RetryDeadLetterEvent(ctx context.Context, id uuid.UUID) (*Event, error)
}

// Option configures optional collaborators.
type Option func(*webhookDomain)

// WithArchive uploads the payload of every dead-lettered event.
func WithArchive(archive outbound.DeadLetterArchivePort) Option {
	return func(d *webhookDomain) { d.archive = archive }
}

// WithReplayLimiter enforces Config.ReplayLimit with limiter.
func WithReplayLimiter(limiter outbound.RateLimiterPort) Option {
	return func(d *webhookDomain) { d.limiter = limiter }
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(d *webhookDomain) { d.recorder = r }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(d *webhookDomain) { d.now = now }
}

type webhookDomain struct {
	events    Repository
	payments  payment.PaymentDomain
	providers outbound.PaymentProviderRegistryPort
	backoff   *Backoff
	config    Config
	archive   outbound.DeadLetterArchivePort
	limiter   outbound.RateLimiterPort
	recorder  Recorder
	now       func() time.Time
	logger    *zap.Logger
}

// NewWebhookDomain creates a new webhook domain service.
func NewWebhookDomain(
	events Repository,
	payments payment.PaymentDomain,
	providers outbound.PaymentProviderRegistryPort,
	backoff *Backoff,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) WebhookDomain {
	defaults := DefaultConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = defaults.ProcessingTimeout
	}
	if config.ReplayWindow <= 0 {
		config.ReplayWindow = defaults.ReplayWindow
	}
	if backoff == nil {
		backoff = NewBackoff(DefaultBaseDelay, DefaultMaxDelay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &webhookDomain{
		events:    events,
		payments:  payments,
		providers: providers,
		backoff:   backoff,
		config:    config,
		recorder:  nopRecorder{},
		now:       time.Now,
		logger:    logger.Named("webhook"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *webhookDomain) Receive(ctx context.Context, provider string, payload []byte, signature string) (*Event, error) {
	adapter, err := d.providers.Get(provider)
	if err != nil {
		return nil, err
	}
	log := d.logger.With(zap.String("provider", provider))

	if len(payload) == 0 {
		d.recorder.RecordWebhookEvent(provider, "rejected")
		return nil, fmt.Errorf("%w: empty payload", outbound.ErrMalformedEvent)
	}
	if signature == "" || !adapter.ValidateWebhookSignature(payload, signature) {
		log.Warn("webhook signature rejected", zap.Int("payload_bytes", len(payload)))
		d.recorder.RecordWebhookEvent(provider, "rejected")
		return nil, outbound.ErrInvalidSignature
	}

	decoded, err := adapter.ParseWebhookEvent(payload, signature)
	if err != nil {
		log.Warn("webhook event rejected", zap.Error(err))
		d.recorder.RecordWebhookEvent(provider, "rejected")
		return nil, err
	}
	if decoded.ID == "" {
		d.recorder.RecordWebhookEvent(provider, "rejected")
		return nil, fmt.Errorf("%w: missing event id", outbound.ErrMalformedEvent)
	}

	event := NewEvent(provider, decoded, payload, signature, d.config.MaxRetries, d.now())
	stored, created, err := d.events.CreateIfAbsent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("store webhook event: %w", err)
	}
	log = log.With(zap.String("event_id", stored.ExternalEventID), zap.String("event_type", stored.EventType))

	if !created {
		log.Info("duplicate webhook event", zap.String("status", string(stored.Status)))
		d.recorder.RecordWebhookEvent(provider, "duplicate")
		return stored, nil
	}
	log.Info("webhook event received")

	// The provider only needs an acknowledgement; an unfinished attempt is
	// picked up again by the retry scheduler.
	if _, err := d.ProcessEvent(context.WithoutCancel(ctx), stored); err != nil {
		log.Warn("inline processing not settled", zap.Error(err))
	}
	return stored, nil
}

func (d *webhookDomain) ProcessEvent(ctx context.Context, e *Event) (ProcessResult, error) {
	if e.Status == StatusProcessing {
		return d.abandon(ctx, e)
	}

	if err := e.MarkProcessing(d.now()); err != nil {
		return ProcessResult{}, err
	}
	if err := d.events.Update(ctx, e); err != nil {
		return ProcessResult{}, fmt.Errorf("claim webhook event: %w", err)
	}

	result := d.handle(ctx, e)
	if err := d.settle(ctx, e, result); err != nil {
		return result, err
	}
	return result, nil
}

// handle applies the decoded event to its payment within the processing timeout.
func (d *webhookDomain) handle(ctx context.Context, e *Event) (result ProcessResult) {
	if e.Decoded == nil {
		return FatalFailure(fmt.Errorf("%w: stored event has no decoded body", outbound.ErrMalformedEvent))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.ProcessingTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while processing webhook event",
				zap.String("event_id", e.ExternalEventID),
				zap.Any("panic", r),
			)
			result = RetryableFailure(fmt.Errorf("panic: %v", r))
		}
	}()

	err := d.payments.ApplyProviderEvent(ctx, e.Provider, e.Decoded)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("processing timed out after %s: %w", d.config.ProcessingTimeout, err)
	}
	return Classify(err)
}

// settle persists the outcome of an attempt on a claimed event.
func (d *webhookDomain) settle(ctx context.Context, e *Event, result ProcessResult) error {
	now := d.now()
	log := d.logger.With(
		zap.String("provider", e.Provider),
		zap.String("event_id", e.ExternalEventID),
		zap.String("event_type", e.EventType),
	)

	var deadLettered bool
	var err error
	switch result.Outcome {
	case OutcomeSuccess:
		err = e.MarkProcessed(now)
	case OutcomeRetryable:
		deadLettered, err = e.RecordFailure(result.Err, now, d.backoff)
	default:
		err = e.DeadLetter(result.Err, now)
		deadLettered = true
	}
	if err != nil {
		return err
	}

	if err := d.events.Update(context.WithoutCancel(ctx), e); err != nil {
		log.Error("failed to persist webhook outcome",
			zap.String("outcome", result.Outcome.String()),
			zap.Error(err),
		)
		return fmt.Errorf("settle webhook event: %w", err)
	}

	switch {
	case result.Outcome == OutcomeSuccess:
		log.Info("webhook event processed", zap.Int("retry_count", e.RetryCount))
		d.recorder.RecordWebhookEvent(e.Provider, "processed")
	case deadLettered:
		log.Error("webhook event dead-lettered",
			zap.Int("retry_count", e.RetryCount),
			zap.String("outcome", result.Outcome.String()),
			zap.Error(result.Err),
		)
		d.recorder.RecordWebhookEvent(e.Provider, "dead_letter")
		d.recorder.RecordWebhookDeadLetter(e.Provider)
		d.archivePayload(ctx, e)
	default:
		log.Warn("webhook event scheduled for retry",
			zap.Int("retry_count", e.RetryCount),
			zap.Timep("next_retry_at", e.NextRetryAt),
			zap.Error(result.Err),
		)
		d.recorder.RecordWebhookEvent(e.Provider, "retrying")
		d.recorder.RecordWebhookRetry(e.Provider)
	}
	return nil
}

// abandon counts an attempt whose worker never settled it.
func (d *webhookDomain) abandon(ctx context.Context, e *Event) (ProcessResult, error) {
	result := RetryableFailure(ErrProcessingAbandoned)
	if err := d.settle(ctx, e, result); err != nil {
		return result, err
	}
	return result, nil
}

func (d *webhookDomain) archivePayload(ctx context.Context, e *Event) {
	if d.archive == nil {
		return
	}
	key, err := d.archive.Archive(context.WithoutCancel(ctx), e.Provider, e.ExternalEventID, e.Payload)
	if err != nil {
		d.logger.Error("failed to archive dead-lettered payload",
			zap.String("event_id", e.ExternalEventID),
			zap.Error(err),
		)
		return
	}
	d.logger.Info("dead-lettered payload archived",
		zap.String("event_id", e.ExternalEventID),
		zap.String("key", key),
	)
}

func (d *webhookDomain) ExtractSignature(provider string, headers map[string]string, payload []byte) (string, error) {
	adapter, err := d.providers.Get(provider)
	if err != nil {
		return "", err
	}
	return adapter.ExtractSignature(headers, payload), nil
}

func (d *webhookDomain) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	return d.events.FindByID(ctx, id)
}

func (d *webhookDomain) ListDeadLetters(ctx context.Context, page, pageSize int) ([]*Event, int64, error) {
	p := pagination.Normalize(page, pageSize)
	return d.events.ListByStatus(ctx, StatusDeadLetter, p.Offset(), p.Limit())
}

func (d *webhookDomain) RetryDeadLetterEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	e, err := d.events.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusDeadLetter {
		return nil, fmt.Errorf("%w: status is %s", ErrNotDeadLettered, e.Status)
	}

	if d.limiter != nil && d.config.ReplayLimit > 0 {
		allowed, err := d.limiter.Allow(ctx, "webhook:replay:"+id.String(), d.config.ReplayLimit, d.config.ReplayWindow)
		switch {
		case err != nil:
			d.logger.Warn("replay limiter unavailable", zap.Error(err))
		case !allowed:
			return nil, ErrReplayLimited
		}
	}

	if err := e.Requeue(d.now()); err != nil {
		return nil, err
	}
	if err := d.events.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("requeue webhook event: %w", err)
	}
	d.logger.Info("dead-lettered webhook event requeued",
		zap.String("provider", e.Provider),
		zap.String("event_id", e.ExternalEventID),
		zap.Int("replay_count", e.ReplayCount),
	)

	if _, err := d.ProcessEvent(ctx, e); err != nil {
		d.logger.Warn("replayed event not settled", zap.String("event_id", e.ExternalEventID), zap.Error(err))
	}
	return e, nil
}

type nopRecorder struct{}

func (nopRecorder) RecordWebhookEvent(string, string) {}
func (nopRecorder) RecordWebhookRetry(string)         {}
func (nopRecorder) RecordWebhookDeadLetter(string)    {}
