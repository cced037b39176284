package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type action struct {
	name   string
	target PaymentStatus
	apply  func(p *Payment) error
}

var actions = []action{
	{"process", StatusProcessing, func(p *Payment) error { return p.Process("ext_1", "https://pay.example/1") }},
	{"complete", StatusCompleted, func(p *Payment) error { return p.Complete() }},
	{"fail", StatusFailed, func(p *Payment) error { return p.Fail("card declined") }},
	{"refund", StatusRefunded, func(p *Payment) error { return p.Refund() }},
	{"retry", StatusPending, func(p *Payment) error { return p.Retry() }},
}

func paymentIn(t *testing.T, status PaymentStatus) *Payment {
	t.Helper()
	p, err := NewPayment("O1", mustMoney(t, "99.99", "USD"), "stripe")
	require.NoError(t, err)
	p.PullEvents()

	p.status = status
	if status != StatusPending {
		p.externalID = "ext_0"
	}
	return p
}

func TestPayment_TransitionTable(t *testing.T) {
	for _, from := range AllStatuses() {
		for _, a := range actions {
			from, a := from, a
			t.Run(string(from)+"/"+a.name, func(t *testing.T) {
				p := paymentIn(t, from)
				err := a.apply(p)

				if from.CanTransitionTo(a.target) {
					require.NoError(t, err)
					assert.Equal(t, a.target, p.Status())
					assert.Len(t, p.Events(), 1)
					return
				}

				require.Error(t, err)
				var stateErr *InvalidPaymentStateError
				require.True(t, errors.As(err, &stateErr))
				assert.Equal(t, from, stateErr.CurrentState)
				assert.Equal(t, a.name, stateErr.AttemptedAction)
				assert.True(t, errors.Is(err, ErrInvalidPaymentState))
				assert.Equal(t, from, p.Status())
				assert.Empty(t, p.Events())
			})
		}
	}
}

func TestPaymentStatus(t *testing.T) {
	assert.True(t, StatusRefunded.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
	assert.ElementsMatch(t, []PaymentStatus{StatusProcessing, StatusFailed}, StatusPending.AllowedTransitions())

	_, err := ParsePaymentStatus("settled")
	assert.Error(t, err)

	s, err := ParsePaymentStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s)
}

func TestNewPayment(t *testing.T) {
	t.Run("starts pending with a created event", func(t *testing.T) {
		p, err := NewPayment("O1", mustMoney(t, "99.99", "usd"), "stripe")
		require.NoError(t, err)

		assert.Equal(t, StatusPending, p.Status())
		events := p.Events()
		require.Len(t, events, 1)
		created, ok := events[0].(*PaymentCreated)
		require.True(t, ok)
		assert.Equal(t, EventPaymentCreated, created.EventType())
		assert.Equal(t, "99.99", created.Amount)
		assert.Equal(t, "USD", created.Currency)
		assert.Equal(t, p.ID(), created.AggregateID())
	})

	t.Run("rejects empty order id", func(t *testing.T) {
		_, err := NewPayment("  ", mustMoney(t, "1", "USD"), "stripe")
		assert.True(t, errors.Is(err, ErrInvalidOrderID))
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		_, err := NewPayment("O1", mustMoney(t, "0", "USD"), "stripe")
		assert.True(t, errors.Is(err, ErrInvalidAmount))
	})
}

func TestRestorePayment_EmitsNothing(t *testing.T) {
	original := paymentIn(t, StatusCompleted)
	restored := RestorePayment(
		original.ID(), original.OrderID(), original.Amount(), StatusCompleted,
		"stripe", "ext_0", "", "", 3,
		original.CreatedAt(), original.UpdatedAt(), nil,
	)

	assert.Empty(t, restored.Events())
	assert.Equal(t, 3, restored.Version())
	require.NoError(t, restored.Refund())
	assert.Len(t, restored.Events(), 1)
}

func TestPayment_EventPayloads(t *testing.T) {
	p := paymentIn(t, StatusPending)

	require.NoError(t, p.Process("ext_1", "https://checkout/1"))
	require.NoError(t, p.Complete())
	require.NotNil(t, p.CompletedAt())
	require.NoError(t, p.Refund())

	events := p.PullEvents()
	require.Len(t, events, 3)
	assert.Empty(t, p.Events())

	processed := events[0].(*PaymentProcessed)
	assert.Equal(t, "ext_1", processed.ExternalID)
	assert.Equal(t, "https://checkout/1", processed.CheckoutURL)

	completed := events[1].(*PaymentCompleted)
	assert.Equal(t, "ext_1", completed.ExternalID)
	assert.Equal(t, "99.99", completed.Amount)

	refunded := events[2].(*PaymentRefunded)
	assert.Equal(t, "USD", refunded.Currency)
}

func TestPayment_FailCarriesReason(t *testing.T) {
	p := paymentIn(t, StatusProcessing)
	require.NoError(t, p.Fail("insufficient funds"))

	assert.Equal(t, "insufficient funds", p.FailureReason())
	failed := p.Events()[0].(*PaymentFailed)
	assert.Equal(t, "insufficient funds", failed.Reason)
	assert.Equal(t, "ext_0", failed.ExternalID)
}

func TestPayment_ProcessRequiresExternalID(t *testing.T) {
	p := paymentIn(t, StatusPending)
	err := p.Process("", "")
	assert.True(t, errors.Is(err, ErrInvalidExternalID))
	assert.Equal(t, StatusPending, p.Status())
	assert.Empty(t, p.Events())
}

func TestPayment_RetryClearsProviderReference(t *testing.T) {
	p := paymentIn(t, StatusFailed)
	p.failureReason = "expired"

	require.NoError(t, p.Retry())
	assert.Equal(t, StatusPending, p.Status())
	assert.Empty(t, p.ExternalID())
	assert.Empty(t, p.FailureReason())
}

func TestTransaction_CanUpdateStatus(t *testing.T) {
	p := paymentIn(t, StatusCompleted)
	txn := NewTransaction(p, TransactionRefund, TransactionPending, "re_1", "")

	assert.True(t, txn.CanUpdateStatus(TransactionSucceeded))
	assert.False(t, txn.CanUpdateStatus(TransactionPending))

	txn.Status = TransactionSucceeded
	assert.False(t, txn.CanUpdateStatus(TransactionFailed))
}
