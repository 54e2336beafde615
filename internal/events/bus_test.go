package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitReachesAllSubscribers(t *testing.T) {
	bus := NewEventBus()

	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)

	for _, name := range []string{"first", "second"} {
		bus.Subscribe(EventProfileUpdated, name, func(ctx context.Context, e Event) error {
			defer wg.Done()
			count.Add(1)
			return nil
		})
	}

	bus.Emit(context.Background(), Event{Type: EventProfileUpdated, Source: "test"})
	wg.Wait()

	assert.Equal(t, int32(2), count.Load())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()

	var count atomic.Int32
	bus.Subscribe(EventScoreSubmitted, "counter", func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})
	bus.Unsubscribe(EventScoreSubmitted, "counter")

	bus.Emit(context.Background(), Event{Type: EventScoreSubmitted})
	bus.Stop()

	assert.Zero(t, count.Load())
	assert.Zero(t, bus.HandlerCount(EventScoreSubmitted))
}

func TestEmitSyncReturnsFirstError(t *testing.T) {
	bus := NewEventBus()

	wantErr := errors.New("handler failed")
	bus.Subscribe(EventServerError, "failing", func(ctx context.Context, e Event) error {
		return wantErr
	})
	bus.Subscribe(EventServerError, "ok", func(ctx context.Context, e Event) error {
		return nil
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventServerError})
	require.ErrorIs(t, err, wantErr)
}

func TestPanickingHandlerDoesNotAffectOthers(t *testing.T) {
	bus := NewEventBus()

	done := make(chan struct{})
	bus.Subscribe(EventConnected, "panicking", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	bus.Subscribe(EventConnected, "survivor", func(ctx context.Context, e Event) error {
		close(done)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventConnected})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("surviving handler was never invoked")
	}
}

func TestEmitAfterStopIsDropped(t *testing.T) {
	bus := NewEventBus()

	var count atomic.Int32
	bus.Subscribe(EventDisconnected, "counter", func(ctx context.Context, e Event) error {
		count.Add(1)
		return nil
	})

	bus.Stop()
	bus.Emit(context.Background(), Event{Type: EventDisconnected})

	assert.Zero(t, count.Load())
}

func TestMessageEventTopic(t *testing.T) {
	assert.Equal(t, EventType("message/profileUpdate"), MessageEvent("profileUpdate"))
}
