package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uniedit/payflow/internal/port/outbound"
	apperrors "github.com/uniedit/payflow/internal/utils/errors"
	"go.uber.org/zap"
)

const (
	// RateLimitRemaining is the header for remaining requests.
	RateLimitRemaining = "X-RateLimit-Remaining"
	// RateLimitLimit is the header for the limit.
	RateLimitLimit = "X-RateLimit-Limit"
	// RetryAfter is the header for retry time.
	RetryAfter = "Retry-After"
)

// RateLimitConfig holds rate limit configuration.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// KeyFunc builds the limiter bucket for a request. Defaults to client IP.
	KeyFunc func(*gin.Context) string
	// Logger receives limiter errors. Requests are allowed when the limiter fails.
	Logger *zap.Logger
}

// RateLimit rejects requests over cfg.Limit per cfg.Window with 429. A nil
// limiter or a non-positive limit disables the check.
func RateLimit(limiter outbound.RateLimiterPort, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	limit := strconv.Itoa(cfg.Limit)
	retryAfter := strconv.Itoa(int(cfg.Window.Round(time.Second).Seconds()))

	return func(c *gin.Context) {
		if limiter == nil || cfg.Limit <= 0 {
			c.Next()
			return
		}

		key := cfg.KeyFunc(c)
		ctx := c.Request.Context()

		allowed, err := limiter.Allow(ctx, key, cfg.Limit, cfg.Window)
		if err != nil {
			cfg.Logger.Warn("rate limiter unavailable, allowing request",
				zap.String("key", key),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header(RateLimitLimit, limit)
		if !allowed {
			c.Header(RateLimitRemaining, "0")
			c.Header(RetryAfter, retryAfter)
			appErr := apperrors.RateLimited("too many requests, please try again later")
			_ = c.Error(appErr)
			c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		if remaining, err := limiter.GetRemaining(ctx, key, cfg.Limit, cfg.Window); err == nil {
			c.Header(RateLimitRemaining, strconv.Itoa(remaining))
		}
		c.Next()
	}
}

// RateLimitWebhooks limits webhook deliveries per provider and sender IP, so
// a misbehaving sender for one provider cannot starve the others.
func RateLimitWebhooks(limiter outbound.RateLimiterPort, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return RateLimit(limiter, RateLimitConfig{
		Limit:  limit,
		Window: window,
		KeyFunc: func(c *gin.Context) string {
			return "webhook:" + strings.ToLower(c.Param("provider")) + ":" + c.ClientIP()
		},
		Logger: logger,
	})
}
