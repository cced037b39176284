package webhook

import (
	"errors"

	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/port/outbound"
)

// Outcome classifies a processing attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ProcessResult is the outcome of one processing attempt.
type ProcessResult struct {
	Outcome Outcome
	Err     error
}

func Success() ProcessResult                  { return ProcessResult{Outcome: OutcomeSuccess} }
func RetryableFailure(err error) ProcessResult { return ProcessResult{Outcome: OutcomeRetryable, Err: err} }
func FatalFailure(err error) ProcessResult     { return ProcessResult{Outcome: OutcomeFatal, Err: err} }

// Classify maps an error from event processing to a result. Failures that
// would repeat identically on retry are fatal.
func Classify(err error) ProcessResult {
	switch {
	case err == nil:
		return Success()
	case errors.Is(err, outbound.ErrInvalidSignature),
		errors.Is(err, outbound.ErrMalformedEvent),
		errors.Is(err, payment.ErrInvalidPaymentState),
		payment.IsValidationError(err):
		return FatalFailure(err)
	default:
		return RetryableFailure(err)
	}
}
