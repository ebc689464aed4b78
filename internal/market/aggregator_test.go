package market

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func tick(offset time.Duration, bid, ask float64) Tick {
	return Tick{Time: t0.Add(offset), Bid: bid, Ask: ask}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestIngestBuildsM1Bar(t *testing.T) {
	a := NewAggregator(1000, 500)

	a.Ingest(tick(0, 4248.50, 4248.90))
	a.Ingest(tick(10*time.Second, 4249.10, 4249.50))
	a.Ingest(tick(20*time.Second, 4247.80, 4248.20))
	a.Ingest(tick(30*time.Second, 4248.60, 4249.00))

	bars := a.Bars(M1, 10)
	if len(bars) != 1 {
		t.Fatalf("expected 1 in-progress bar, got %d", len(bars))
	}

	b := bars[0]
	if b.Complete {
		t.Error("in-progress bar must not be marked complete")
	}
	if !almostEqual(b.Open, 4248.70) {
		t.Errorf("open = %.2f, want 4248.70", b.Open)
	}
	if !almostEqual(b.High, 4249.30) {
		t.Errorf("high = %.2f, want 4249.30", b.High)
	}
	if !almostEqual(b.Low, 4248.00) {
		t.Errorf("low = %.2f, want 4248.00", b.Low)
	}
	if !almostEqual(b.Close, 4248.80) {
		t.Errorf("close = %.2f, want 4248.80", b.Close)
	}
	if b.TickCount != 4 {
		t.Errorf("tick count = %d, want 4", b.TickCount)
	}
	if b.Low > b.Open || b.Low > b.Close || b.High < b.Open || b.High < b.Close {
		t.Errorf("bar violates low <= open,close <= high: %+v", b)
	}
}

func TestDuplicateTickCoalesced(t *testing.T) {
	a := NewAggregator(1000, 500)

	if !a.Ingest(tick(0, 4248.50, 4248.90)) {
		t.Fatal("first tick should be accepted")
	}
	// Same M1 bucket, same bid/ask: coalesced.
	if a.Ingest(tick(5*time.Second, 4248.50, 4248.90)) {
		t.Error("duplicate quote in the same bucket should be coalesced")
	}
	// Same quote but a new bucket: accepted.
	if !a.Ingest(tick(61*time.Second, 4248.50, 4248.90)) {
		t.Error("same quote in a new bucket should be accepted")
	}
	// Same bucket but the price moved: accepted.
	if !a.Ingest(tick(65*time.Second, 4248.60, 4249.00)) {
		t.Error("changed quote should be accepted")
	}

	stats := a.Stats()
	if stats.TicksAccepted != 3 {
		t.Errorf("accepted = %d, want 3", stats.TicksAccepted)
	}
	if stats.TicksCoalesced != 1 {
		t.Errorf("coalesced = %d, want 1", stats.TicksCoalesced)
	}
}

func TestCoalescedTickRefreshesLiveness(t *testing.T) {
	a := NewAggregator(1000, 500)

	a.Ingest(tick(0, 4248.50, 4248.90))
	a.Ingest(tick(30*time.Second, 4248.50, 4248.90)) // coalesced

	if got := a.Stats().LastTickAt; !got.Equal(t0.Add(30 * time.Second)) {
		t.Errorf("last tick at = %v, coalesced tick must still refresh liveness", got)
	}
}

func TestGapBucketsEmitFlatBars(t *testing.T) {
	a := NewAggregator(1000, 500)

	a.Ingest(tick(0, 4248.50, 4248.90))
	// Next tick lands three M1 buckets later; the two quiet buckets in
	// between must come out flat at the last close.
	a.Ingest(tick(3*time.Minute, 4250.10, 4250.50))

	bars := a.Bars(M1, 10)
	if len(bars) != 4 {
		t.Fatalf("expected 4 bars (1 completed + 2 flat + 1 in-progress), got %d", len(bars))
	}

	lastClose := bars[0].Close
	for i := 1; i <= 2; i++ {
		b := bars[i]
		if !b.Complete {
			t.Errorf("gap bar %d should be complete", i)
		}
		if b.Open != lastClose || b.High != lastClose || b.Low != lastClose || b.Close != lastClose {
			t.Errorf("gap bar %d not flat at last close %.2f: %+v", i, lastClose, b)
		}
		if b.TickCount != 0 {
			t.Errorf("gap bar %d tick count = %d, want 0", i, b.TickCount)
		}
		wantStart := t0.Add(time.Duration(i) * time.Minute)
		if !b.Start.Equal(wantStart) {
			t.Errorf("gap bar %d start = %v, want %v", i, b.Start, wantStart)
		}
	}

	if bars[3].Complete {
		t.Error("newest bar should be in-progress")
	}
}

func TestBarsSnapshotOrderingAndLimit(t *testing.T) {
	a := NewAggregator(10000, 500)

	for i := 0; i < 10; i++ {
		px := 4240.0 + float64(i)
		a.Ingest(tick(time.Duration(i)*time.Minute, px-0.2, px+0.2))
	}

	bars := a.Bars(M1, 5)
	if len(bars) != 5 {
		t.Fatalf("expected 5 bars, got %d", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Start.After(bars[i-1].Start) {
			t.Errorf("bars not in ascending time order at index %d", i)
		}
	}
	if bars[len(bars)-1].Complete {
		t.Error("final snapshot element should be the in-progress bar")
	}
}

func TestHigherTimeframeAggregation(t *testing.T) {
	a := NewAggregator(100000, 500)

	// 16 minutes of ticks spans two M15 buckets.
	for i := 0; i < 16; i++ {
		px := 4240.0 + float64(i)
		a.Ingest(tick(time.Duration(i)*time.Minute, px-0.2, px+0.2))
	}

	m15 := a.Bars(M15, 10)
	if len(m15) != 2 {
		t.Fatalf("expected 2 M15 bars, got %d", len(m15))
	}
	if !m15[0].Complete {
		t.Error("first M15 bar should be complete")
	}
	if !almostEqual(m15[0].Open, 4240.0) || !almostEqual(m15[0].Close, 4254.0) {
		t.Errorf("M15 bar OHLC unexpected: %+v", m15[0])
	}
	if m15[1].Complete {
		t.Error("second M15 bar should be in-progress")
	}
}

func TestRingBufferWrapKeepsNewest(t *testing.T) {
	a := NewAggregator(5, 500)

	for i := 0; i < 8; i++ {
		px := 4240.0 + float64(i)
		a.Ingest(tick(time.Duration(i)*time.Minute, px-0.2, px+0.2))
	}

	ticks := a.RecentTicks(10)
	if len(ticks) != 5 {
		t.Fatalf("expected ring to hold 5 ticks, got %d", len(ticks))
	}
	if !almostEqual(ticks[0].Mid(), 4243.0) {
		t.Errorf("oldest retained tick mid = %.2f, want 4243.00", ticks[0].Mid())
	}
	if !almostEqual(ticks[4].Mid(), 4247.0) {
		t.Errorf("newest tick mid = %.2f, want 4247.00", ticks[4].Mid())
	}
}

func TestSeedBarsWarmStart(t *testing.T) {
	a := NewAggregator(1000, 500)

	seed := make([]Bar, 3)
	for i := range seed {
		px := 4230.0 + float64(i)
		seed[i] = Bar{
			Start: t0.Add(time.Duration(i-3) * time.Minute),
			Open:  px, High: px + 1, Low: px - 1, Close: px + 0.5,
		}
	}
	a.SeedBars(M1, seed)

	a.Ingest(tick(0, 4248.50, 4248.90))

	bars := a.Bars(M1, 10)
	if len(bars) != 4 {
		t.Fatalf("expected 3 seeded + 1 live bar, got %d", len(bars))
	}
	for i := 0; i < 3; i++ {
		if !bars[i].Complete {
			t.Errorf("seeded bar %d should be complete", i)
		}
	}
}

func TestSpreadAndLastTick(t *testing.T) {
	a := NewAggregator(1000, 500)

	if _, ok := a.LastTick(); ok {
		t.Error("LastTick before any ingest should report none")
	}
	if a.Spread() != 0 {
		t.Error("spread before any ingest should be 0")
	}

	a.Ingest(tick(0, 4248.50, 4251.65))
	if got := a.Spread(); got < 3.1499 || got > 3.1501 {
		t.Errorf("spread = %.4f, want 3.15", got)
	}
}
