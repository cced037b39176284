package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type testEvent struct {
	BaseEvent
}

func newTestEvent(eventType string) testEvent {
	return testEvent{BaseEvent: NewBaseEvent(eventType, uuid.New(), "test", time.Now())}
}

func TestBus_Publish(t *testing.T) {
	t.Run("dispatches to subscribers in registration order", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		var order []string

		bus.Register(NewHandlerFunc([]string{"a"}, func(ctx context.Context, e Event) error {
			order = append(order, "first")
			return nil
		}))
		bus.Register(NewHandlerFunc([]string{"a", "b"}, func(ctx context.Context, e Event) error {
			order = append(order, "second:"+e.EventType())
			return nil
		}))

		assert.NoError(t, bus.Publish(context.Background(), newTestEvent("a")))
		assert.NoError(t, bus.Publish(context.Background(), newTestEvent("b")))
		assert.Equal(t, []string{"first", "second:a", "second:b"}, order)
	})

	t.Run("isolates failing and panicking handlers", func(t *testing.T) {
		bus := NewBus(nil)
		called := 0

		bus.Register(NewHandlerFunc([]string{"x"}, func(ctx context.Context, e Event) error {
			return errors.New("boom")
		}))
		bus.Register(NewHandlerFunc([]string{"x"}, func(ctx context.Context, e Event) error {
			panic("bad handler")
		}))
		bus.Register(NewHandlerFunc([]string{"x"}, func(ctx context.Context, e Event) error {
			called++
			return nil
		}))

		assert.NoError(t, bus.PublishAll(context.Background(), []Event{newTestEvent("x"), newTestEvent("x")}))
		assert.Equal(t, 2, called)
	})

	t.Run("no subscribers is not an error", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		assert.NoError(t, bus.Publish(context.Background(), newTestEvent("nobody")))
	})
}
