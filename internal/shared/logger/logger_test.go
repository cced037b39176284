package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Run("creates with default config", func(t *testing.T) {
		l := New(nil)
		assert.NotNil(t, l)
	})

	t.Run("json format", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := New(&Config{Level: "debug", Format: "json", Output: buf})

		l.Info("test message", zap.String("payment_id", "p-1"))
		require.NoError(t, l.Sync())

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "test message", entry["msg"])
		assert.Equal(t, "p-1", entry["payment_id"])
		assert.Equal(t, "info", entry["level"])
	})

	t.Run("console format", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := New(&Config{Level: "info", Format: "console", Output: buf})

		l.Info("test message")
		output := buf.String()
		assert.Contains(t, output, "test message")
		assert.Contains(t, output, "INFO")
		assert.False(t, strings.HasPrefix(output, "{"))
	})
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		logFunc func(*zap.Logger, string)
		logged  bool
	}{
		{"debug", func(l *zap.Logger, msg string) { l.Debug(msg) }, true},
		{"info", func(l *zap.Logger, msg string) { l.Debug(msg) }, false},
		{"warn", func(l *zap.Logger, msg string) { l.Info(msg) }, false},
		{"warning", func(l *zap.Logger, msg string) { l.Warn(msg) }, true},
		{"error", func(l *zap.Logger, msg string) { l.Warn(msg) }, false},
		{"bogus", func(l *zap.Logger, msg string) { l.Info(msg) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := New(&Config{Level: tt.level, Output: buf})

			tt.logFunc(l, "message")
			assert.Equal(t, tt.logged, buf.Len() > 0)
		})
	}
}

func TestContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Output: buf})

	ctx := ContextWithLogger(context.Background(), l)
	FromContext(ctx).Info("from context")
	assert.Contains(t, buf.String(), "from context")

	assert.NotNil(t, FromContext(context.Background()))
}
