package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds shared across the HTTP boundary.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("resource conflict")
	ErrInternal       = errors.New("internal error")
	ErrRateLimited    = errors.New("rate limited")
	ErrUpstream       = errors.New("upstream error")
	ErrServiceUnavail = errors.New("service unavailable")
)

// AppError is the only error shape that crosses the HTTP boundary: a
// machine-readable code plus a client-safe message. Err is kept for logs.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	StatusCode int            `json:"-"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, otherwise defers to the wrapped error.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// ErrorResponse represents the JSON error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToResponse converts an AppError to ErrorResponse.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: e.Code, Message: e.Message, Details: e.Details}}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates a new application error.
func NewAppError(code string, message string, statusCode int, err error) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode, Err: err}
}

func NotFound(resource string) *AppError {
	return NewAppError("NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound, ErrNotFound)
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return NewAppError("FORBIDDEN", message, http.StatusForbidden, ErrForbidden)
}

func BadRequest(message string) *AppError {
	return NewAppError("BAD_REQUEST", message, http.StatusBadRequest, ErrBadRequest)
}

// ValidationError reports an invalid field; the field name is part of the message.
func ValidationError(field, message string) *AppError {
	return NewAppError("VALIDATION_ERROR", fmt.Sprintf("%s: %s", field, message), http.StatusUnprocessableEntity, ErrBadRequest).
		WithDetails(map[string]any{"field": field})
}

func Conflict(message string) *AppError {
	return NewAppError("CONFLICT", message, http.StatusConflict, ErrConflict)
}

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return NewAppError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError, err)
}

func RateLimited(message string) *AppError {
	if message == "" {
		message = "too many requests"
	}
	return NewAppError("RATE_LIMITED", message, http.StatusTooManyRequests, ErrRateLimited)
}

func ServiceUnavailable(message string) *AppError {
	if message == "" {
		message = "service temporarily unavailable"
	}
	return NewAppError("SERVICE_UNAVAILABLE", message, http.StatusServiceUnavailable, ErrServiceUnavail)
}

// --- Payment error kinds ---

func InvalidPaymentState(message string) *AppError {
	return NewAppError("INVALID_PAYMENT_STATE", message, http.StatusConflict, ErrConflict)
}

func PaymentAlreadyProcessed(message string) *AppError {
	return NewAppError("PAYMENT_ALREADY_PROCESSED", message, http.StatusConflict, ErrConflict)
}

func IdempotencyConflict() *AppError {
	return NewAppError("IDEMPOTENCY_CONFLICT",
		"idempotency key was already used with a different request",
		http.StatusUnprocessableEntity, ErrConflict)
}

func OperationInProgress() *AppError {
	return NewAppError("OPERATION_IN_PROGRESS",
		"a request with this idempotency key is still being processed",
		http.StatusConflict, ErrConflict)
}

// ProviderError reports a failed call to a payment provider without leaking
// the provider's message.
func ProviderError(provider string) *AppError {
	return NewAppError("PROVIDER_ERROR",
		fmt.Sprintf("payment provider %s rejected the request", provider),
		http.StatusBadGateway, ErrUpstream)
}

func InvalidSignature() *AppError {
	return NewAppError("INVALID_SIGNATURE", "webhook signature verification failed", http.StatusBadRequest, ErrBadRequest)
}
