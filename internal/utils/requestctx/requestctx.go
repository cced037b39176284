// Package requestctx carries request-scoped correlation values through
// context.Context so domain log lines can be tied back to the HTTP call.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	idempotencyKeyKey
)

func with(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	return get(ctx, requestIDKey)
}

// WithIdempotencyKey records the client-supplied Idempotency-Key.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return with(ctx, idempotencyKeyKey, key)
}

func IdempotencyKey(ctx context.Context) string {
	return get(ctx, idempotencyKeyKey)
}

// Fields returns the correlation values present in ctx as zap fields.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if key := IdempotencyKey(ctx); key != "" {
		fields = append(fields, zap.String("idempotency_key", key))
	}
	return fields
}
