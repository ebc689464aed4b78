package events

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)

	bus.Subscribe(EventSignalGenerated, func(e Event) { got <- e })
	bus.PublishSignal("BUY", "crossover", 12.5, 80)

	select {
	case e := <-got:
		if e.Data["side"] != "BUY" {
			t.Errorf("side = %v, want BUY", e.Data["side"])
		}
		if e.Timestamp.IsZero() {
			t.Error("publish must stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestSubscriberIgnoresOtherTypes(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)

	bus.Subscribe(EventPositionClosed, func(e Event) { got <- e })
	bus.PublishSignal("SELL", "crossover", 88.0, 60)

	select {
	case <-got:
		t.Fatal("subscriber for another type must not fire")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	done := make(chan struct{}, 3)
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
		done <- struct{}{}
	})

	bus.PublishSignal("BUY", "crossover", 10, 75)
	bus.PublishRiskBlocked("cooldown")
	bus.PublishError("engine", "poll failed", nil)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("all-events subscriber missed an event")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
