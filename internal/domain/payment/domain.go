package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/port/outbound"
	"github.com/uniedit/payflow/internal/utils/requestctx"
	"go.uber.org/zap"
)

// CreatePaymentInput carries the fields needed to open a payment.
type CreatePaymentInput struct {
	OrderID  string
	Amount   string
	Currency string
	Provider string
}

// ProcessPaymentInput carries the checkout options forwarded to the provider.
type ProcessPaymentInput struct {
	ReturnURL string
	CancelURL string
	Metadata  map[string]string
}

// PaymentDomain orchestrates the Payment aggregate, its stores, the provider
// adapters and event publication.
type PaymentDomain interface {
	// CreatePayment validates the input and stores a pending payment.
	CreatePayment(ctx context.Context, in CreatePaymentInput) (*Payment, error)

	// ProcessPayment opens a checkout at the provider and moves the payment to processing.
	ProcessPayment(ctx context.Context, id uuid.UUID, in ProcessPaymentInput) (*Payment, error)

	// ConfirmPayment asks the provider for the payment's state and applies it.
	ConfirmPayment(ctx context.Context, id uuid.UUID) (*Payment, error)

	// CompletePayment marks a processing payment as completed.
	CompletePayment(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FailPayment marks a pending or processing payment as failed.
	FailPayment(ctx context.Context, id uuid.UUID, reason string) (*Payment, error)

	// RefundPayment refunds a completed payment in full.
	RefundPayment(ctx context.Context, id uuid.UUID) (*Payment, error)

	// RetryPayment reopens a failed payment.
	RetryPayment(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetPayment returns a payment by ID.
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)

	// ListPayments lists payments by filter.
	ListPayments(ctx context.Context, filter Filter) ([]*Payment, int64, error)

	// ListTransactions returns the ledger rows of a payment.
	ListTransactions(ctx context.Context, id uuid.UUID) ([]*Transaction, error)

	// ApplyProviderEvent reconciles a verified webhook event with the payment it refers to.
	ApplyProviderEvent(ctx context.Context, provider string, event *outbound.ProviderEvent) error
}

// paymentDomain implements PaymentDomain.
type paymentDomain struct {
	payments        Repository
	transactions    TransactionRepository
	providers       outbound.PaymentProviderRegistryPort
	publisher       outbound.EventPublisherPort
	defaultProvider string
	logger          *zap.Logger
}

// NewPaymentDomain creates a new payment domain service.
func NewPaymentDomain(
	payments Repository,
	transactions TransactionRepository,
	providers outbound.PaymentProviderRegistryPort,
	publisher outbound.EventPublisherPort,
	defaultProvider string,
	logger *zap.Logger,
) PaymentDomain {
	return &paymentDomain{
		payments:        payments,
		transactions:    transactions,
		providers:       providers,
		publisher:       publisher,
		defaultProvider: defaultProvider,
		logger:          logger.Named("payment"),
	}
}

func (d *paymentDomain) CreatePayment(ctx context.Context, in CreatePaymentInput) (*Payment, error) {
	amount, err := MoneyFromString(in.Amount, in.Currency)
	if err != nil {
		return nil, err
	}

	providerName := strings.ToLower(strings.TrimSpace(in.Provider))
	if providerName == "" {
		providerName = d.defaultProvider
	}
	if _, err := d.providers.Get(providerName); err != nil {
		return nil, &ValidationError{Field: "provider", Err: err}
	}

	p, err := NewPayment(in.OrderID, amount, providerName)
	if err != nil {
		return nil, err
	}

	if err := d.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	d.publish(ctx, p)

	d.logger.With(requestctx.Fields(ctx)...).Info("payment created",
		zap.String("payment_id", p.ID().String()),
		zap.String("order_id", p.OrderID()),
		zap.String("amount", p.Amount().String()),
		zap.String("provider", providerName),
	)
	return p, nil
}

func (d *paymentDomain) ProcessPayment(ctx context.Context, id uuid.UUID, in ProcessPaymentInput) (*Payment, error) {
	p, err := d.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch p.Status() {
	case StatusProcessing, StatusCompleted, StatusRefunded:
		return nil, fmt.Errorf("%w: payment is %s", ErrPaymentAlreadyProcessed, p.Status())
	case StatusFailed:
		return nil, &InvalidPaymentStateError{CurrentState: p.Status(), AttemptedAction: "process"}
	}

	provider, err := d.providers.Get(p.Provider())
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"order_id":   p.OrderID(),
		"payment_id": p.ID().String(),
	}
	for k, v := range in.Metadata {
		if _, reserved := metadata[k]; !reserved {
			metadata[k] = v
		}
	}

	intent, err := provider.CreatePaymentIntent(ctx, &outbound.PaymentIntentRequest{
		Amount:         toProviderAmount(p.Amount()),
		OrderID:        p.OrderID(),
		ReturnURL:      in.ReturnURL,
		CancelURL:      in.CancelURL,
		Metadata:       metadata,
		IdempotencyKey: fmt.Sprintf("%s:intent:%d", p.ID(), p.Version()),
	})
	if err != nil {
		if errors.Is(err, outbound.ErrProviderUnavailable) {
			return nil, &PaymentProviderError{Provider: provider.Name(), Operation: "create_payment_intent", Err: err}
		}
		return nil, d.failAfterProviderError(ctx, p, provider.Name(), "create_payment_intent", err)
	}

	if err := p.Process(intent.ExternalID, intent.CheckoutURL); err != nil {
		return nil, err
	}
	if err := d.save(ctx, p); err != nil {
		return nil, err
	}

	d.logger.With(requestctx.Fields(ctx)...).Info("payment processing",
		zap.String("payment_id", p.ID().String()),
		zap.String("external_id", p.ExternalID()),
	)
	return p, nil
}

func (d *paymentDomain) ConfirmPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := d.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status() != StatusProcessing {
		return nil, &InvalidPaymentStateError{CurrentState: p.Status(), AttemptedAction: "confirm"}
	}

	provider, err := d.providers.Get(p.Provider())
	if err != nil {
		return nil, err
	}

	confirmation, err := provider.ConfirmPayment(ctx, p.ExternalID())
	if err != nil {
		return nil, &PaymentProviderError{Provider: provider.Name(), Operation: "confirm_payment", Err: err}
	}

	switch confirmation.Status {
	case outbound.ProviderPaymentSucceeded:
		if err := p.Complete(); err != nil {
			return nil, err
		}
		return p, d.save(ctx, p, NewTransaction(p, TransactionCharge, TransactionSucceeded, p.ExternalID(), ""))
	case outbound.ProviderPaymentFailed:
		if err := p.Fail(confirmation.FailureReason); err != nil {
			return nil, err
		}
		return p, d.save(ctx, p, NewTransaction(p, TransactionCharge, TransactionFailed, p.ExternalID(), confirmation.FailureReason))
	default:
		return p, nil
	}
}

func (d *paymentDomain) CompletePayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := d.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.Complete(); err != nil {
		return nil, err
	}
	return p, d.save(ctx, p, NewTransaction(p, TransactionCharge, TransactionSucceeded, p.ExternalID(), ""))
}

func (d *paymentDomain) FailPayment(ctx context.Context, id uuid.UUID, reason string) (*Payment, error) {
	p, err := d.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.Fail(reason); err != nil {
		return nil, err
	}
	var txns []*Transaction
	if p.ExternalID() != "" {
		txns = append(txns, NewTransaction(p, TransactionCharge, TransactionFailed, p.ExternalID(), reason))
	}
	return p, d.save(ctx, p, txns...)
}

func (d *paymentDomain) RefundPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := d.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status().CanTransitionTo(StatusRefunded) {
		return nil, &InvalidPaymentStateError{CurrentState: p.Status(), AttemptedAction: "refund"}
	}

	provider, err := d.providers.Get(p.Provider())
	if err != nil {
		return nil, err
	}

	refund, err := provider.Refund(ctx, p.ExternalID(), nil)
	if err != nil {
		return nil, &PaymentProviderError{Provider: provider.Name(), Operation: "refund", Err: err}
	}
	status := refundTransactionStatus(refund.Status)
	if status == TransactionFailed {
		return nil, &PaymentProviderError{
			Provider:  provider.Name(),
			Operation: "refund",
			Err:       fmt.Errorf("refund %s rejected: %s", refund.RefundID, refund.FailureReason),
		}
	}

	if err := p.Refund(); err != nil {
		return nil, err
	}
	if err := d.save(ctx, p, NewTransaction(p, TransactionRefund, status, refund.RefundID, "")); err != nil {
		return nil, err
	}

	d.logger.With(requestctx.Fields(ctx)...).Info("payment refunded",
		zap.String("payment_id", p.ID().String()),
		zap.String("refund_id", refund.RefundID),
		zap.String("refund_status", string(status)),
	)
	return p, nil
}

func (d *paymentDomain) RetryPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := d.payments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.Retry(); err != nil {
		return nil, err
	}
	return p, d.save(ctx, p)
}

func (d *paymentDomain) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return d.payments.FindByID(ctx, id)
}

func (d *paymentDomain) ListPayments(ctx context.Context, filter Filter) ([]*Payment, int64, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, &ValidationError{Field: "status", Err: fmt.Errorf("unknown status %q", filter.Status)}
	}
	return d.payments.List(ctx, filter)
}

func (d *paymentDomain) ListTransactions(ctx context.Context, id uuid.UUID) ([]*Transaction, error) {
	if _, err := d.payments.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return d.transactions.ListByPayment(ctx, id)
}

func (d *paymentDomain) ApplyProviderEvent(ctx context.Context, provider string, event *outbound.ProviderEvent) error {
	log := d.logger.With(
		zap.String("provider", provider),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)

	if event.Kind == outbound.EventUnknown || event.Kind == "" {
		log.Debug("ignoring unhandled webhook event")
		return nil
	}

	p, err := d.locate(ctx, provider, event)
	if err != nil {
		return err
	}

	switch event.Kind {
	case outbound.EventCheckoutCompleted:
		return d.applyCompleted(ctx, p, event, log)
	case outbound.EventCheckoutExpired, outbound.EventPaymentFailed:
		return d.applyFailed(ctx, p, event, log)
	case outbound.EventRefundCompleted:
		return d.applyRefunded(ctx, p, event, log)
	default:
		log.Debug("ignoring unhandled webhook event kind", zap.String("kind", string(event.Kind)))
		return nil
	}
}

func (d *paymentDomain) applyCompleted(ctx context.Context, p *Payment, event *outbound.ProviderEvent, log *zap.Logger) error {
	switch p.Status() {
	case StatusCompleted, StatusRefunded:
		log.Debug("payment already completed", zap.String("payment_id", p.ID().String()))
		return nil
	case StatusPending:
		// The checkout was opened but the processing write never landed.
		// Events located by order id may carry no provider reference; the
		// event id stands in so the charge row still has one.
		reference := event.ExternalID
		if reference == "" {
			reference = event.ID
		}
		if err := p.Process(reference, ""); err != nil {
			return err
		}
	}
	if err := p.Complete(); err != nil {
		return err
	}
	if err := d.save(ctx, p, NewTransaction(p, TransactionCharge, TransactionSucceeded, p.ExternalID(), "")); err != nil {
		return err
	}
	log.Info("payment completed by webhook", zap.String("payment_id", p.ID().String()))
	return nil
}

func (d *paymentDomain) applyFailed(ctx context.Context, p *Payment, event *outbound.ProviderEvent, log *zap.Logger) error {
	switch p.Status() {
	case StatusFailed:
		return nil
	case StatusCompleted, StatusRefunded:
		log.Warn("ignoring failure notice for settled payment",
			zap.String("payment_id", p.ID().String()),
			zap.String("status", string(p.Status())),
		)
		return nil
	}

	reason := event.FailureReason
	if reason == "" {
		reason = string(event.Kind)
	}
	if err := p.Fail(reason); err != nil {
		return err
	}
	var txns []*Transaction
	if p.ExternalID() != "" {
		txns = append(txns, NewTransaction(p, TransactionCharge, TransactionFailed, p.ExternalID(), reason))
	}
	if err := d.save(ctx, p, txns...); err != nil {
		return err
	}
	log.Info("payment failed by webhook",
		zap.String("payment_id", p.ID().String()),
		zap.String("reason", reason),
	)
	return nil
}

func (d *paymentDomain) applyRefunded(ctx context.Context, p *Payment, event *outbound.ProviderEvent, log *zap.Logger) error {
	refundID := event.Metadata["refund_id"]

	if p.Status() == StatusRefunded {
		if refundID == "" {
			return nil
		}
		txn, err := d.transactions.FindByExternalID(ctx, refundID)
		if errors.Is(err, ErrTransactionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !txn.CanUpdateStatus(TransactionSucceeded) {
			return nil
		}
		return d.transactions.UpdateStatus(ctx, txn.ID, TransactionSucceeded, "")
	}

	// Refund issued outside this service (e.g. from the provider dashboard).
	if err := p.Refund(); err != nil {
		return err
	}
	if err := d.save(ctx, p, NewTransaction(p, TransactionRefund, TransactionSucceeded, refundID, "")); err != nil {
		return err
	}
	log.Info("payment refunded by webhook", zap.String("payment_id", p.ID().String()))
	return nil
}

func (d *paymentDomain) locate(ctx context.Context, provider string, event *outbound.ProviderEvent) (*Payment, error) {
	if event.ExternalID != "" {
		p, err := d.payments.FindByExternalID(ctx, provider, event.ExternalID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
	}
	orderID := event.OrderID
	if orderID == "" {
		orderID = event.Metadata["order_id"]
	}
	if orderID != "" {
		return d.payments.FindLatestByOrderID(ctx, orderID)
	}
	return nil, fmt.Errorf("%w: external_id=%q", ErrPaymentNotFound, event.ExternalID)
}

// failAfterProviderError moves the payment to failed and records the failed charge.
func (d *paymentDomain) failAfterProviderError(ctx context.Context, p *Payment, provider, op string, cause error) error {
	providerErr := &PaymentProviderError{Provider: provider, Operation: op, Err: cause}

	reason := fmt.Sprintf("%s failed at %s", op, provider)
	if err := p.Fail(reason); err != nil {
		return providerErr
	}
	if err := d.save(ctx, p); err != nil {
		d.logger.Error("failed to persist payment failure",
			zap.String("payment_id", p.ID().String()),
			zap.Error(err),
		)
	}
	d.logger.Warn("provider call failed",
		zap.String("payment_id", p.ID().String()),
		zap.String("operation", op),
		zap.Error(cause),
	)
	return providerErr
}

// save persists p with optional ledger rows, then publishes its events.
func (d *paymentDomain) save(ctx context.Context, p *Payment, txns ...*Transaction) error {
	if err := d.payments.Update(ctx, p, txns...); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	p.MarkPersisted()
	d.publish(ctx, p)
	return nil
}

func (d *paymentDomain) publish(ctx context.Context, p *Payment) {
	for _, event := range p.PullEvents() {
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Error("publish event failed",
				zap.String("event_type", event.EventType()),
				zap.String("payment_id", p.ID().String()),
				zap.Error(err),
			)
		}
	}
}

func toProviderAmount(m Money) outbound.ProviderAmount {
	return outbound.ProviderAmount{Value: m.Amount(), Currency: m.Currency().String()}
}

func refundTransactionStatus(providerStatus string) TransactionStatus {
	switch strings.ToLower(providerStatus) {
	case "succeeded", "success", "completed", "processed":
		return TransactionSucceeded
	case "failed", "canceled", "cancelled":
		return TransactionFailed
	default:
		return TransactionPending
	}
}
