package events

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nova-universe/pulse/pkg/types"
)

// testLogger returns a logger that discards output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func event(id uuid.UUID) types.TransitionEvent {
	return types.TransitionEvent{
		MonitorID:      id,
		PreviousStatus: types.StatusUp,
		NewStatus:      types.StatusDown,
		At:             time.Now(),
	}
}

func TestFanOut(t *testing.T) {
	bus := NewBus(4, testLogger())
	a := bus.Subscribe("a")
	b := bus.Subscribe("b")

	ev := event(uuid.New())
	bus.Publish(ev)
	bus.Close()

	for _, sub := range []*Subscription{a, b} {
		got, ok := <-sub.C()
		if !ok {
			t.Fatalf("subscriber %s: channel closed before delivery", sub.Name())
		}
		if got.MonitorID != ev.MonitorID {
			t.Errorf("subscriber %s: wrong event", sub.Name())
		}
	}
}

func TestPublish_DropsWhenFull(t *testing.T) {
	bus := NewBus(2, testLogger())
	sub := bus.Subscribe("slow")

	for i := 0; i < 5; i++ {
		bus.Publish(event(uuid.New()))
	}

	if sub.Dropped() != 3 {
		t.Errorf("expected 3 dropped events, got %d", sub.Dropped())
	}
	if bus.TotalDropped() != 3 {
		t.Errorf("expected bus total 3, got %d", bus.TotalDropped())
	}

	// The queued events are still deliverable.
	bus.Close()
	delivered := 0
	for range sub.C() {
		delivered++
	}
	if delivered != 2 {
		t.Errorf("expected 2 delivered events, got %d", delivered)
	}
}

func TestPublish_NeverBlocks(t *testing.T) {
	bus := NewBus(1, testLogger())
	bus.Subscribe("stuck")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(event(uuid.New()))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	bus.Close()
}

func TestPublishAfterClose_IsNoOp(t *testing.T) {
	bus := NewBus(4, testLogger())
	sub := bus.Subscribe("a")
	bus.Close()

	bus.Publish(event(uuid.New()))

	if _, ok := <-sub.C(); ok {
		t.Error("expected closed empty channel")
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	bus := NewBus(4, testLogger())
	bus.Close()

	sub := bus.Subscribe("late")
	if _, ok := <-sub.C(); ok {
		t.Error("late subscription should be closed immediately")
	}
}
