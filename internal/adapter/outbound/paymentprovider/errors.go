package paymentprovider

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v76"
)

// RequestError is a non-2xx answer from a provider REST API.
type RequestError struct {
	Provider   string
	Operation  string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Operation, e.StatusCode, e.Message)
}

// isClientError reports whether err is a provider rejection of the request
// itself. Such errors do not count against the circuit breaker.
func isClientError(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode >= 400 && reqErr.StatusCode < 500 && reqErr.StatusCode != http.StatusTooManyRequests
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != http.StatusTooManyRequests
	}
	return false
}
