package idempotency

import "errors"

var (
	// ErrIdempotencyConflict is returned when a key is reused with a different request.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")

	// ErrOperationInProgress is returned while the first request for a key is still running.
	ErrOperationInProgress = errors.New("operation in progress")

	// ErrRecordNotFound is returned by stores when no record exists for a key.
	ErrRecordNotFound = errors.New("idempotency record not found")

	// ErrDuplicateKey is returned by Store.Create when the key already exists.
	ErrDuplicateKey = errors.New("idempotency key already exists")

	// ErrRecordFinalized is returned when completing or failing a record that left processing.
	ErrRecordFinalized = errors.New("idempotency record already finalized")

	// ErrEmptyKey is returned when Execute is called without a key.
	ErrEmptyKey = errors.New("idempotency key is empty")
)
