package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uniedit/payflow/internal/domain/idempotency"
	apperrors "github.com/uniedit/payflow/internal/utils/errors"
	"github.com/uniedit/payflow/internal/utils/requestctx"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader is the header for idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayedHeader marks a response served from the idempotency store.
	IdempotentReplayedHeader = "Idempotent-Replayed"
	// OriginalStatusHeader carries the status code of the first response.
	OriginalStatusHeader = "X-Original-Status"

	maxIdempotencyKeyLength = 255
)

// errHandlerFailed marks a server-side failure so the record is released
// and the client may retry with the same key.
var errHandlerFailed = errors.New("handler responded with a server error")

// ReplayRecorder counts replayed responses.
type ReplayRecorder interface {
	RecordIdempotencyReplay()
}

// IdempotencyConfig holds idempotency middleware configuration.
type IdempotencyConfig struct {
	// TTL is the lifetime of a stored response. Zero uses the guard's default.
	TTL time.Duration
	// Methods are the HTTP methods to apply idempotency check.
	// Default: POST, PUT, PATCH
	Methods []string
	// Recorder counts replays. Optional.
	Recorder ReplayRecorder
	Logger   *zap.Logger
}

// DefaultIdempotencyConfig returns the default idempotency configuration.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		Methods: []string{http.MethodPost, http.MethodPut, http.MethodPatch},
	}
}

// idempotencyResponseWriter wraps gin.ResponseWriter to capture the response.
type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *idempotencyResponseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency returns a middleware that runs each keyed request at most once.
// Requests without an Idempotency-Key header pass through untouched.
func Idempotency(guard *idempotency.Guard, cfg IdempotencyConfig) gin.HandlerFunc {
	if len(cfg.Methods) == 0 {
		cfg.Methods = DefaultIdempotencyConfig().Methods
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	methodSet := make(map[string]bool)
	for _, m := range cfg.Methods {
		methodSet[m] = true
	}

	return func(c *gin.Context) {
		if guard == nil || !methodSet[c.Request.Method] {
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			abortWith(c, apperrors.ValidationError(IdempotencyKeyHeader,
				fmt.Sprintf("must be at most %d characters", maxIdempotencyKeyLength)))
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortWith(c, apperrors.BadRequest("unreadable request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request = c.Request.WithContext(requestctx.WithIdempotencyKey(c.Request.Context(), key))

		fingerprint := idempotency.Fingerprint(c.Request.Method, c.Request.URL.Path, body)

		resp, err := guard.Execute(c.Request.Context(), key, fingerprint, cfg.TTL, func(ctx context.Context) (*idempotency.Response, error) {
			writer := &idempotencyResponseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
			c.Writer = writer
			c.Next()

			status := c.Writer.Status()
			if status >= http.StatusInternalServerError {
				return nil, errHandlerFailed
			}
			return &idempotency.Response{StatusCode: status, Body: writer.body.Bytes()}, nil
		})

		switch {
		case err == nil && resp.Replayed:
			if cfg.Recorder != nil {
				cfg.Recorder.RecordIdempotencyReplay()
			}
			c.Header(IdempotentReplayedHeader, "true")
			c.Header(OriginalStatusHeader, strconv.Itoa(resp.StatusCode))
			c.Data(resp.StatusCode, gin.MIMEJSON, resp.Body)
			c.Abort()
		case err == nil, errors.Is(err, errHandlerFailed):
			// The handler already wrote its response.
		case errors.Is(err, idempotency.ErrIdempotencyConflict):
			abortWith(c, apperrors.IdempotencyConflict())
		case errors.Is(err, idempotency.ErrOperationInProgress):
			abortWith(c, apperrors.OperationInProgress())
		default:
			cfg.Logger.With(requestctx.Fields(c.Request.Context())...).Error("idempotency guard failed", zap.Error(err))
			if !c.Writer.Written() {
				abortWith(c, apperrors.Internal(err))
			}
		}
	}
}

func abortWith(c *gin.Context, appErr *apperrors.AppError) {
	_ = c.Error(appErr)
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}
