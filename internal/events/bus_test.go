package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestEmitSyncReachesTypedAndWildcardHandlers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var typed, all atomic.Int32
	bus.Subscribe(EventAccountLogin, "typed", func(ctx context.Context, e Event) error {
		typed.Add(1)
		return nil
	})
	bus.SubscribeAll("all", func(ctx context.Context, e Event) error {
		all.Add(1)
		if e.Time.IsZero() {
			t.Error("event time not stamped")
		}
		return nil
	})

	if err := bus.EmitSync(context.Background(), Event{Type: EventAccountLogin}); err != nil {
		t.Fatal(err)
	}
	if err := bus.EmitSync(context.Background(), Event{Type: EventHeartbeat}); err != nil {
		t.Fatal(err)
	}

	if typed.Load() != 1 || all.Load() != 2 {
		t.Fatalf("typed=%d all=%d, want 1 and 2", typed.Load(), all.Load())
	}
	if n := bus.HandlerCount(EventAccountLogin); n != 2 {
		t.Fatalf("HandlerCount = %d, want 2", n)
	}
}

func TestEmitSyncReturnsHandlerErrorAndSurvivesPanic(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	boom := errors.New("boom")
	bus.Subscribe(EventDecodeError, "fails", func(ctx context.Context, e Event) error { return boom })
	bus.Subscribe(EventDecodeError, "panics", func(ctx context.Context, e Event) error { panic("bad handler") })

	if err := bus.EmitSync(context.Background(), Event{Type: EventDecodeError}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestEmitIsAsyncAndStopWaits(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	var seen []EventType
	bus.SubscribeAll("collector", func(ctx context.Context, e Event) error {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
		return nil
	})

	for i := 0; i < 10; i++ {
		bus.Emit(context.Background(), Event{Type: EventLoginSeed})
	}
	bus.Stop()

	mu.Lock()
	n := len(seen)
	mu.Unlock()
	if n != 10 {
		t.Fatalf("handled %d events before Stop returned, want 10", n)
	}

	bus.Emit(context.Background(), Event{Type: EventLoginSeed})
	bus.Stop()
	if len(seen) != 10 {
		t.Fatal("event delivered after Stop")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	h := func(ctx context.Context, e Event) error { calls.Add(1); return nil }
	bus.Subscribe(EventPostLogin, "a", h)
	bus.SubscribeAll("b", h)
	bus.Unsubscribe(EventPostLogin, "a")
	bus.UnsubscribeAll("b")

	_ = bus.EmitSync(context.Background(), Event{Type: EventPostLogin})
	if calls.Load() != 0 {
		t.Fatalf("calls = %d after unsubscribe", calls.Load())
	}
}

func TestConnIDFromPayload(t *testing.T) {
	e := Event{Type: EventAccountLogin, Payload: AccountLoginPayload{ConnID: 7}}
	if id, ok := e.ConnID(); !ok || id != 7 {
		t.Fatalf("ConnID = %d, %v", id, ok)
	}
	if _, ok := (Event{Payload: HeartbeatPayload{}}).ConnID(); ok {
		t.Fatal("heartbeat has no connection id")
	}
}
