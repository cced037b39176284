package webhook

import "errors"

var (
	ErrEventNotFound = errors.New("webhook event not found")
	ErrEventClaimed  = errors.New("webhook event was modified concurrently")

	// ErrInvalidEventState is returned for status changes the lifecycle forbids.
	ErrInvalidEventState = errors.New("invalid webhook event state")

	// ErrNotDeadLettered is returned when replaying an event that is not dead-lettered.
	ErrNotDeadLettered = errors.New("webhook event is not dead-lettered")

	// ErrReplayLimited is returned when manual replays of an event exceed the configured rate.
	ErrReplayLimited = errors.New("webhook event replay rate exceeded")

	// ErrProcessingAbandoned is recorded for events left in processing past the stale threshold.
	ErrProcessingAbandoned = errors.New("processing abandoned")
)
