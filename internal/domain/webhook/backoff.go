package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = time.Hour
)

// Backoff computes exponential retry delays with ±10% jitter.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Rand returns a value in [0, 1). Defaults to math/rand/v2.
	Rand func() float64
}

// NewBackoff returns a Backoff, substituting defaults for non-positive delays.
func NewBackoff(base, maxDelay time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Backoff{BaseDelay: base, MaxDelay: maxDelay, Rand: rand.Float64}
}

// Delay returns min(base*2^n + jitter, max) where jitter is uniform in
// ±10% of base*2^n.
func (b *Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	exponential := float64(b.BaseDelay) * math.Pow(2, float64(retryCount))

	random := rand.Float64
	if b.Rand != nil {
		random = b.Rand
	}
	jitter := exponential * 0.1 * (random()*2 - 1)

	delay := exponential + jitter
	if delay > float64(b.MaxDelay) || math.IsInf(delay, 0) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

// CalculateNextRetryTime returns now + Delay(retryCount).
func (b *Backoff) CalculateNextRetryTime(retryCount int, now time.Time) time.Time {
	return now.Add(b.Delay(retryCount))
}
