package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/utils/pagination"
)

// Filter narrows payment listings.
type Filter struct {
	OrderID  string
	Status   PaymentStatus
	Provider string
	pagination.Pagination
}

// Repository persists Payment aggregates.
// This interface is defined in the domain layer and implemented by outbound adapters.
type Repository interface {
	// Create stores a new payment.
	Create(ctx context.Context, p *Payment) error

	// Update stores p if its persisted version still equals p.Version() and
	// appends the given ledger rows in the same unit of work. A stale
	// version yields ErrConcurrentModification.
	Update(ctx context.Context, p *Payment, appended ...*Transaction) error

	// FindByID returns ErrPaymentNotFound when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByExternalID locates a payment by provider reference.
	FindByExternalID(ctx context.Context, provider, externalID string) (*Payment, error)

	// FindLatestByOrderID returns the most recent payment for an order.
	FindLatestByOrderID(ctx context.Context, orderID string) (*Payment, error)

	// List returns a page of payments and the total count.
	List(ctx context.Context, filter Filter) ([]*Payment, int64, error)
}

// TransactionRepository reads and corrects ledger rows. New rows are written
// through Repository.Update.
type TransactionRepository interface {
	// ListByPayment returns a payment's rows oldest first.
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]*Transaction, error)

	// FindByExternalID returns ErrTransactionNotFound when absent.
	FindByExternalID(ctx context.Context, externalID string) (*Transaction, error)

	// UpdateStatus applies the narrow status correction path.
	UpdateStatus(ctx context.Context, id uuid.UUID, status TransactionStatus, failureReason string) error
}
