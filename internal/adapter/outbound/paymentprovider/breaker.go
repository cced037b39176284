package paymentprovider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/uniedit/payflow/internal/port/outbound"
	"go.uber.org/zap"
)

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold    uint32
	Interval            time.Duration
	Timeout             time.Duration
	MaxHalfOpenRequests uint32
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// RequestRecorder records the outcome of outbound provider calls.
type RequestRecorder interface {
	RecordProviderRequest(provider, operation, status string)
}

// BreakerProvider guards the outbound calls of a provider with a circuit
// breaker. Webhook verification and decoding are local and pass through.
type BreakerProvider struct {
	outbound.PaymentProviderPort

	cb       *gobreaker.CircuitBreaker[any]
	recorder RequestRecorder
	logger   *zap.Logger
}

// NewBreakerProvider wraps provider with a circuit breaker.
func NewBreakerProvider(provider outbound.PaymentProviderPort, config BreakerConfig, recorder RequestRecorder, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	logger = logger.Named("provider-breaker").With(zap.String("provider", provider.Name()))

	settings := gobreaker.Settings{
		Name:        provider.Name(),
		MaxRequests: config.MaxHalfOpenRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerProvider{
		PaymentProviderPort: provider,
		cb:                  gobreaker.NewCircuitBreaker[any](settings),
		recorder:            recorder,
		logger:              logger,
	}
}

// State returns the current breaker state.
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerProvider) CreatePaymentIntent(ctx context.Context, req *outbound.PaymentIntentRequest) (*outbound.ProviderIntent, error) {
	return guarded(b, "create_payment_intent", func() (*outbound.ProviderIntent, error) {
		return b.PaymentProviderPort.CreatePaymentIntent(ctx, req)
	})
}

func (b *BreakerProvider) ConfirmPayment(ctx context.Context, externalID string) (*outbound.ProviderConfirmation, error) {
	return guarded(b, "confirm_payment", func() (*outbound.ProviderConfirmation, error) {
		return b.PaymentProviderPort.ConfirmPayment(ctx, externalID)
	})
}

func (b *BreakerProvider) Refund(ctx context.Context, externalID string, amount *outbound.ProviderAmount) (*outbound.ProviderRefund, error) {
	return guarded(b, "refund", func() (*outbound.ProviderRefund, error) {
		return b.PaymentProviderPort.Refund(ctx, externalID, amount)
	})
}

func guarded[T any](b *BreakerProvider, operation string, fn func() (*T, error)) (*T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})

	status := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		status = "short_circuited"
		err = fmt.Errorf("%w: %s %s: %w", outbound.ErrProviderUnavailable, b.Name(), operation, err)
	case err != nil:
		status = "error"
	}
	if b.recorder != nil {
		b.recorder.RecordProviderRequest(b.Name(), operation, status)
	}
	if err != nil {
		return nil, err
	}
	out, _ := res.(*T)
	return out, nil
}

// Compile-time check
var _ outbound.PaymentProviderPort = (*BreakerProvider)(nil)
