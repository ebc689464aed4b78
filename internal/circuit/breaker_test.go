package circuit

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func newTestBreaker() (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	return NewBreaker(Config{FailureThreshold: 3, Cooldown: 10 * time.Second}, clk.now), clk
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker()

	b.Record(true)
	b.Record(true)
	if err := b.Allow(); err != nil {
		t.Fatal("two failures below the threshold must not trip")
	}

	b.Record(true)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want open after the third failure", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker()

	b.Record(true)
	b.Record(true)
	b.Record(false)
	b.Record(true)
	b.Record(true)
	if err := b.Allow(); err != nil {
		t.Error("a success must reset the consecutive failure count")
	}
}

func TestHalfOpenProbeAfterCooldown(t *testing.T) {
	b, clk := newTestBreaker()

	for i := 0; i < 3; i++ {
		b.Record(true)
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatal("expected open breaker")
	}

	clk.t = clk.t.Add(11 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("cooldown elapsed must allow a probe, got %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Errorf("state = %s, want half-open probe", b.State())
	}

	// Probe success closes the breaker.
	b.Record(false)
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed after a successful probe", b.State())
	}
}

func TestHalfOpenFailureRetrips(t *testing.T) {
	b, clk := newTestBreaker()

	for i := 0; i < 3; i++ {
		b.Record(true)
	}
	clk.t = clk.t.Add(11 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatal("expected half-open probe")
	}

	b.Record(true)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Error("a failed probe must re-trip immediately")
	}
}
