package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrPaymentNotFound is returned when a payment is not found.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrTransactionNotFound is returned when a ledger row is not found.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidPaymentState matches every *InvalidPaymentStateError.
	ErrInvalidPaymentState = errors.New("invalid payment state")

	// ErrPaymentAlreadyProcessed is returned when a payment was already
	// handed to a provider.
	ErrPaymentAlreadyProcessed = errors.New("payment already processed")

	// ErrConcurrentModification is returned when a payment changed between
	// read and write.
	ErrConcurrentModification = errors.New("payment was modified concurrently")

	// ErrInvalidAmount is returned for negative or unparsable amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountExceedsMaximum is returned when an amount is above the configured maximum.
	ErrAmountExceedsMaximum = errors.New("amount exceeds maximum")

	// ErrUnsupportedCurrency is returned for currencies outside the supported set.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrCurrencyMismatch is returned when combining different currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")

	// ErrNegativeResult is returned when arithmetic would go below zero.
	ErrNegativeResult = errors.New("negative result")

	// ErrInvalidOrderID is returned for an empty order reference.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidExternalID is returned for an empty provider reference.
	ErrInvalidExternalID = errors.New("invalid external id")

	// ErrInvalidTransactionStatus is returned for ledger corrections that are not allowed.
	ErrInvalidTransactionStatus = errors.New("invalid transaction status change")
)

// InvalidPaymentStateError reports a transition the status table forbids.
type InvalidPaymentStateError struct {
	CurrentState    PaymentStatus
	AttemptedAction string
}

func (e *InvalidPaymentStateError) Error() string {
	return fmt.Sprintf("cannot %s payment in state %s", e.AttemptedAction, e.CurrentState)
}

func (e *InvalidPaymentStateError) Is(target error) bool {
	return target == ErrInvalidPaymentState
}

// ValidationError reports an invalid input field. It is raised before any
// state is mutated.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// PaymentProviderError wraps a failure returned by a provider adapter.
type PaymentProviderError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *PaymentProviderError) Error() string {
	return fmt.Sprintf("provider %s %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *PaymentProviderError) Unwrap() error { return e.Err }

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
