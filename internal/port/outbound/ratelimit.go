package outbound

import (
	"context"
	"time"
)

// RateLimiterPort defines sliding-window rate limiting.
type RateLimiterPort interface {
	// Allow checks if one more action is allowed within the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// GetRemaining returns remaining actions in the window.
	GetRemaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}
