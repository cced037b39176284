package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/payflow/internal/shared/logger"
	"github.com/uniedit/payflow/internal/utils/requestctx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func bufferedLogger(level string) (*bytes.Buffer, func() *gin.Engine) {
	buf := &bytes.Buffer{}
	log := logger.New(&logger.Config{Level: level, Format: "json", Output: buf})
	return buf, func() *gin.Engine {
		router := gin.New()
		router.Use(RequestID(), Logging(log), Recovery(log))
		return router
	}
}

func TestRequestID(t *testing.T) {
	echo := func(header string) *httptest.ResponseRecorder {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/health", func(c *gin.Context) {
			// Both views of the id must agree.
			assert.Equal(t, GetRequestID(c), requestctx.RequestID(c.Request.Context()))
			c.String(http.StatusOK, GetRequestID(c))
		})
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		if header != "" {
			req.Header.Set(RequestIDHeader, header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("keeps a well-formed caller id", func(t *testing.T) {
		w := echo("req-7f3a")
		assert.Equal(t, "req-7f3a", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-7f3a", w.Body.String())
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"contains whitespace", "abc def"},
		{"contains newline", "abc\nforged=1"},
		{"too long", strings.Repeat("a", maxRequestIDLength+1)},
	}
	for _, tt := range tests {
		t.Run("replaces "+tt.name, func(t *testing.T) {
			w := echo(tt.header)
			id := w.Header().Get(RequestIDHeader)
			assert.NotEmpty(t, id)
			assert.NotEqual(t, tt.header, id)
			assert.Len(t, id, 36)
			assert.Equal(t, id, w.Body.String())
		})
	}
}

func TestGetRequestID_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetRequestID(c))
}

func TestLogging(t *testing.T) {
	t.Run("records correlation fields for payment calls", func(t *testing.T) {
		buf, newRouter := bufferedLogger("info")
		router := newRouter()
		router.POST("/api/v1/payments", func(c *gin.Context) {
			c.Status(http.StatusCreated)
		})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments?source=checkout", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		req.Header.Set(IdempotencyKeyHeader, "order-42")
		req.Header.Set("User-Agent", "shop/2.1")
		router.ServeHTTP(httptest.NewRecorder(), req)

		out := buf.String()
		assert.Contains(t, out, "HTTP Request")
		assert.Contains(t, out, `"status":201`)
		assert.Contains(t, out, `"request_id":"req-1"`)
		assert.Contains(t, out, `"idempotency_key":"order-42"`)
		assert.Contains(t, out, "source=checkout")
		assert.Contains(t, out, "shop/2.1")
	})

	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"rejected webhook logs a warning", http.StatusBadRequest, `"level":"warn"`},
		{"failed webhook logs an error", http.StatusInternalServerError, `"level":"error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, newRouter := bufferedLogger("warn")
			router := newRouter()
			router.POST("/api/v1/webhooks/:provider", func(c *gin.Context) {
				c.Status(tt.status)
			})

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", nil))

			assert.Contains(t, buf.String(), tt.level)
			assert.Contains(t, buf.String(), "/api/v1/webhooks/stripe")
		})
	}

	t.Run("success is below warn level", func(t *testing.T) {
		buf, newRouter := bufferedLogger("warn")
		router := newRouter()
		router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Empty(t, buf.String())
	})
}

func TestRecovery(t *testing.T) {
	t.Run("answers 500 and logs the panic", func(t *testing.T) {
		buf, newRouter := bufferedLogger("error")
		router := newRouter()
		router.POST("/api/v1/webhooks/:provider", func(c *gin.Context) {
			panic("decoder exploded")
		})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", nil)
		req.Header.Set(RequestIDHeader, "req-panic")
		w := httptest.NewRecorder()
		require.NotPanics(t, func() { router.ServeHTTP(w, req) })

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
		assert.NotContains(t, w.Body.String(), "decoder exploded")

		out := buf.String()
		assert.Contains(t, out, "Panic recovered")
		assert.Contains(t, out, "decoder exploded")
		assert.Contains(t, out, `"request_id":"req-panic"`)
	})

	t.Run("nil logger", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(nil))
		router.GET("/panic", func(c *gin.Context) { panic("boom") })

		w := httptest.NewRecorder()
		require.NotPanics(t, func() { router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil)) })
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestCORS(t *testing.T) {
	t.Run("answers preflight for idempotent POST", func(t *testing.T) {
		router := gin.New()
		router.Use(CORS(CORSConfig{AllowOrigins: []string{"https://shop.example"}}))
		router.POST("/api/v1/payments", func(c *gin.Context) {
			c.Status(http.StatusCreated)
		})

		req := httptest.NewRequest(http.MethodOptions, "/api/v1/payments", nil)
		req.Header.Set("Origin", "https://shop.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", IdempotencyKeyHeader)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("exposes the replay header", func(t *testing.T) {
		router := gin.New()
		router.Use(CORS(CORSConfig{AllowOrigins: []string{"https://shop.example"}}))
		router.POST("/api/v1/payments", func(c *gin.Context) {
			c.Header(IdempotentReplayedHeader, "true")
			c.Status(http.StatusCreated)
		})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", nil)
		req.Header.Set("Origin", "https://shop.example")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), IdempotentReplayedHeader)
	})
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	assert.Equal(t, []string{"*"}, cfg.AllowOrigins)
	assert.Contains(t, cfg.AllowMethods, "POST")
	assert.Contains(t, cfg.AllowHeaders, "Authorization")
	assert.Contains(t, cfg.AllowHeaders, IdempotencyKeyHeader)
	assert.Contains(t, cfg.ExposeHeaders, IdempotentReplayedHeader)
	assert.False(t, cfg.AllowCredentials)
}
