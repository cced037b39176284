package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/infra/events"
)

// paymentStatusByEvent maps each payment event to the status it leaves the
// payment in.
var paymentStatusByEvent = map[string]payment.PaymentStatus{
	payment.EventPaymentCreated:   payment.StatusPending,
	payment.EventPaymentProcessed: payment.StatusProcessing,
	payment.EventPaymentCompleted: payment.StatusCompleted,
	payment.EventPaymentFailed:    payment.StatusFailed,
	payment.EventPaymentRefunded:  payment.StatusRefunded,
	payment.EventPaymentRetried:   payment.StatusPending,
}

// registerEventHandlers registers all domain event handlers.
func (a *App) registerEventHandlers() {
	// Payments by resulting status
	a.eventBus.Register(events.NewHandlerFunc(payment.AllEventTypes(), func(_ context.Context, e events.Event) error {
		if status, ok := paymentStatusByEvent[e.EventType()]; ok {
			a.metrics.RecordPayment(status.String())
		}
		return nil
	}))

	// Audit trail
	audit := a.logger.Named("audit")
	a.eventBus.Register(events.NewHandlerFunc(payment.AllEventTypes(), func(_ context.Context, e events.Event) error {
		audit.Info("payment event",
			zap.String("event_type", e.EventType()),
			zap.String("event_id", e.EventID().String()),
			zap.String("payment_id", e.AggregateID().String()),
			zap.Time("occurred_at", e.OccurredAt()),
		)
		return nil
	}))
}
