package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/payflow/internal/adapter/outbound/memory"
	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/domain/webhook"
	"github.com/uniedit/payflow/internal/port/outbound"
	"go.uber.org/zap"
)

// --- Fakes ---

// fakeProvider accepts the signature "valid" and decodes a flat JSON body.
type fakeProvider struct{}

func (fakeProvider) Name() string { return "fake" }

func (fakeProvider) CreatePaymentIntent(context.Context, *outbound.PaymentIntentRequest) (*outbound.ProviderIntent, error) {
	return nil, errors.New("not implemented")
}

func (fakeProvider) ConfirmPayment(context.Context, string) (*outbound.ProviderConfirmation, error) {
	return nil, errors.New("not implemented")
}

func (fakeProvider) Refund(context.Context, string, *outbound.ProviderAmount) (*outbound.ProviderRefund, error) {
	return nil, errors.New("not implemented")
}

func (fakeProvider) ValidateWebhookSignature(_ []byte, signature string) bool {
	return signature == "valid"
}

func (p fakeProvider) ParseWebhookEvent(payload []byte, signature string) (*outbound.ProviderEvent, error) {
	if !p.ValidateWebhookSignature(payload, signature) {
		return nil, outbound.ErrInvalidSignature
	}
	var body struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		ExternalID string `json:"external_id"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, outbound.ErrMalformedEvent
	}
	return &outbound.ProviderEvent{
		ID:         body.ID,
		Type:       body.Type,
		Kind:       outbound.ProviderEventKind(body.Type),
		ExternalID: body.ExternalID,
	}, nil
}

func (fakeProvider) ExtractSignature(headers map[string]string, _ []byte) string {
	return headers["X-Fake-Signature"]
}

type fakeRegistry struct{}

func (fakeRegistry) Get(name string) (outbound.PaymentProviderPort, error) {
	if name == "fake" {
		return fakeProvider{}, nil
	}
	return nil, outbound.ErrProviderNotFound
}
func (fakeRegistry) Register(outbound.PaymentProviderPort) {}
func (fakeRegistry) List() []string                        { return []string{"fake"} }

// applier stands in for the payment domain; only ApplyProviderEvent is used.
type applier struct {
	payment.PaymentDomain

	mu    sync.Mutex
	calls int
	errs  []error
}

func (a *applier) ApplyProviderEvent(_ context.Context, _ string, _ *outbound.ProviderEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if len(a.errs) == 0 {
		return nil
	}
	err := a.errs[0]
	if len(a.errs) > 1 {
		a.errs = a.errs[1:]
	}
	return err
}

func (a *applier) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type recordingArchive struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingArchive) Archive(_ context.Context, provider, eventID string, _ []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := provider + "/" + eventID
	r.keys = append(r.keys, key)
	return key, nil
}

type denyingLimiter struct{}

func (denyingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

func (denyingLimiter) GetRemaining(context.Context, string, int, time.Duration) (int, error) {
	return 0, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Test Setup ---

type fixture struct {
	domain  webhook.WebhookDomain
	store   *memory.WebhookEventStore
	payment *applier
	archive *recordingArchive
	clock   *testClock
}

func newFixture(t *testing.T, maxRetries int, opts ...webhook.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.NewWebhookEventStore(),
		payment: &applier{},
		archive: &recordingArchive{},
		clock:   &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	backoff := &webhook.Backoff{BaseDelay: time.Second, MaxDelay: time.Hour, Rand: func() float64 { return 0.5 }}
	opts = append([]webhook.Option{webhook.WithArchive(f.archive), webhook.WithClock(f.clock.Now)}, opts...)
	f.domain = webhook.NewWebhookDomain(
		f.store, f.payment, fakeRegistry{}, backoff,
		webhook.Config{MaxRetries: maxRetries, ProcessingTimeout: time.Second, ReplayLimit: 1},
		zap.NewNop(), opts...,
	)
	return f
}

func payload(id string) []byte {
	return []byte(`{"id":"` + id + `","type":"checkout.completed","external_id":"cs_1"}`)
}

// --- Tests ---

func TestReceive_DeduplicatesByProviderEventID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	first, err := f.domain.Receive(ctx, "fake", payload("evt_1"), "valid")
	require.NoError(t, err)

	second, err := f.domain.Receive(ctx, "fake", []byte(`{"id":"evt_1","type":"checkout.completed","external_id":"other"}`), "valid")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, webhook.StatusProcessed, second.Status)
	assert.Equal(t, 1, f.payment.Calls())
}

func TestReceive_RejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	_, err := f.domain.Receive(ctx, "fake", payload("evt_1"), "forged")
	assert.True(t, errors.Is(err, outbound.ErrInvalidSignature))

	_, err = f.domain.Receive(ctx, "fake", payload("evt_1"), "")
	assert.True(t, errors.Is(err, outbound.ErrInvalidSignature))

	_, err = f.domain.Receive(ctx, "paypal", payload("evt_1"), "valid")
	assert.True(t, errors.Is(err, outbound.ErrProviderNotFound))

	events, total, err := f.store.ListByStatus(ctx, webhook.StatusPending, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, events)
	assert.Zero(t, f.payment.Calls())
}

func TestReceive_RejectsMalformedPayload(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.domain.Receive(context.Background(), "fake", []byte(`not json`), "valid")
	assert.True(t, errors.Is(err, outbound.ErrMalformedEvent))

	_, err = f.domain.Receive(context.Background(), "fake", []byte(`{"type":"checkout.completed"}`), "valid")
	assert.True(t, errors.Is(err, outbound.ErrMalformedEvent))
}

func TestReceive_FailureIsAbsorbedAndScheduled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	f.payment.errs = []error{errors.New("database unavailable")}

	e, err := f.domain.Receive(ctx, "fake", payload("evt_1"), "valid")
	require.NoError(t, err)

	stored, err := f.domain.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "database unavailable", stored.LastError)
	require.NotNil(t, stored.NextRetryAt)
	assert.Equal(t, f.clock.Now().Add(2*time.Second), *stored.NextRetryAt)
}

// stallingApplier blocks until its context ends.
type stallingApplier struct {
	payment.PaymentDomain
}

func (stallingApplier) ApplyProviderEvent(ctx context.Context, _ string, _ *outbound.ProviderEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestReceive_ProcessingTimeoutSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWebhookEventStore()
	clock := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	backoff := &webhook.Backoff{BaseDelay: time.Second, MaxDelay: time.Hour, Rand: func() float64 { return 0.5 }}
	domain := webhook.NewWebhookDomain(
		store, stallingApplier{}, fakeRegistry{}, backoff,
		webhook.Config{MaxRetries: 5, ProcessingTimeout: 20 * time.Millisecond},
		zap.NewNop(), webhook.WithClock(clock.Now),
	)

	e, err := domain.Receive(ctx, "fake", payload("evt_slow"), "valid")
	require.NoError(t, err)

	stored, err := domain.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.LastError, "timed out")
	require.NotNil(t, stored.NextRetryAt)
}

func TestReceive_FatalFailureDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	f.payment.errs = []error{&payment.InvalidPaymentStateError{CurrentState: payment.StatusFailed, AttemptedAction: "complete"}}

	e, err := f.domain.Receive(ctx, "fake", payload("evt_1"), "valid")
	require.NoError(t, err)

	stored, err := f.domain.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusDeadLetter, stored.Status)
	assert.Zero(t, stored.RetryCount)
	assert.Equal(t, []string{"fake/evt_1"}, f.archive.keys)
}

func TestScheduler_ExhaustsRetriesIntoDeadLetter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	f.payment.errs = []error{errors.New("still down")}

	scheduler := webhook.NewRetryScheduler(f.store, f.domain, webhook.SchedulerConfig{BatchSize: 10}, zap.NewNop()).
		WithClock(f.clock.Now)

	e, err := f.domain.Receive(ctx, "fake", payload("evt_1"), "valid")
	require.NoError(t, err)

	stats, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Selected, "not due before next_retry_at")

	f.clock.Advance(3 * time.Second)
	stats, err = scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Retrying)

	f.clock.Advance(5 * time.Second)
	stats, err = scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dead)

	stored, err := f.domain.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusDeadLetter, stored.Status)
	assert.Equal(t, 3, stored.RetryCount)
	assert.Equal(t, 3, f.payment.Calls())

	f.clock.Advance(24 * time.Hour)
	stats, err = scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Selected)
	assert.Equal(t, 3, f.payment.Calls())

	dead, total, err := f.domain.ListDeadLetters(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, e.ID, dead[0].ID)
}

func TestScheduler_RecoversAbandonedEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	stuck := webhook.NewEvent("fake", &outbound.ProviderEvent{ID: "evt_stuck", Kind: outbound.EventCheckoutCompleted}, payload("evt_stuck"), "valid", 5, f.clock.Now())
	stuck.Status = webhook.StatusProcessing
	_, _, err := f.store.CreateIfAbsent(ctx, stuck)
	require.NoError(t, err)

	orphan := webhook.NewEvent("fake", &outbound.ProviderEvent{ID: "evt_orphan", Kind: outbound.EventCheckoutCompleted}, payload("evt_orphan"), "valid", 5, f.clock.Now())
	_, _, err = f.store.CreateIfAbsent(ctx, orphan)
	require.NoError(t, err)

	scheduler := webhook.NewRetryScheduler(f.store, f.domain, webhook.SchedulerConfig{StaleAfter: time.Minute}, zap.NewNop()).
		WithClock(f.clock.Now)

	stats, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Selected)

	f.clock.Advance(2 * time.Minute)
	stats, err = scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Selected)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Retrying)

	recovered, err := f.domain.GetEvent(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, webhook.StatusRetrying, recovered.Status)
	assert.Equal(t, webhook.ErrProcessingAbandoned.Error(), recovered.LastError)
}

func TestScheduler_IsolatesFailuresWithinBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	f.payment.errs = []error{errors.New("first attempt fails")}

	for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
		_, err := f.domain.Receive(ctx, "fake", payload(id), "valid")
		require.NoError(t, err)
	}

	retrying, total, err := f.store.ListByStatus(ctx, webhook.StatusRetrying, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, retrying, 3)

	// Only the next attempt of the first event fails again.
	f.payment.errs = []error{errors.New("again"), nil}
	f.clock.Advance(10 * time.Second)

	scheduler := webhook.NewRetryScheduler(f.store, f.domain, webhook.SchedulerConfig{Concurrency: 1}, zap.NewNop()).
		WithClock(f.clock.Now)
	stats, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Selected)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Retrying)
}

func TestRetryDeadLetterEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("requeues and processes", func(t *testing.T) {
		f := newFixture(t, 5)
		f.payment.errs = []error{outbound.ErrMalformedEvent, nil}

		e, err := f.domain.Receive(ctx, "fake", payload("evt_1"), "valid")
		require.NoError(t, err)

		replayed, err := f.domain.RetryDeadLetterEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, webhook.StatusProcessed, replayed.Status)
		assert.Zero(t, replayed.RetryCount)
		assert.Equal(t, 1, replayed.ReplayCount)
		assert.Equal(t, 2, f.payment.Calls())
	})

	t.Run("rejects events that are not dead-lettered", func(t *testing.T) {
		f := newFixture(t, 5)
		e, err := f.domain.Receive(ctx, "fake", payload("evt_1"), "valid")
		require.NoError(t, err)

		_, err = f.domain.RetryDeadLetterEvent(ctx, e.ID)
		assert.True(t, errors.Is(err, webhook.ErrNotDeadLettered))
	})

	t.Run("unknown id", func(t *testing.T) {
		f := newFixture(t, 5)
		_, err := f.domain.RetryDeadLetterEvent(ctx, uuid.New())
		assert.True(t, errors.Is(err, webhook.ErrEventNotFound))
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newFixture(t, 5, webhook.WithReplayLimiter(denyingLimiter{}))
		f.payment.errs = []error{outbound.ErrMalformedEvent}

		e, err := f.domain.Receive(ctx, "fake", payload("evt_1"), "valid")
		require.NoError(t, err)

		_, err = f.domain.RetryDeadLetterEvent(ctx, e.ID)
		assert.True(t, errors.Is(err, webhook.ErrReplayLimited))

		stored, err := f.domain.GetEvent(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, webhook.StatusDeadLetter, stored.Status)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	f := newFixture(t, 5)
	scheduler := webhook.NewRetryScheduler(f.store, f.domain, webhook.SchedulerConfig{Interval: 5 * time.Millisecond}, zap.NewNop())

	scheduler.Start(context.Background())
	scheduler.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
