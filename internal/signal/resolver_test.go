package signal

import (
	"testing"
	"time"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/consensus"
	"github.com/HCTech2/GOLD-HFT/internal/indicators"
	"github.com/HCTech2/GOLD-HFT/internal/market"
	"github.com/HCTech2/GOLD-HFT/internal/venue"
)

type fakeSource struct {
	bars map[market.Timeframe][]market.Bar
}

func (f fakeSource) Bars(tf market.Timeframe, n int) []market.Bar {
	b := f.bars[tf]
	if n < len(b) {
		return b[len(b)-n:]
	}
	return b
}

func newResolver(src consensus.BarSource) *Resolver {
	cfg := config.Default()
	ind := indicators.NewEngine(cfg.SignalConfig)
	cons := consensus.New(cfg.ConsensusConfig, cfg.SignalConfig, ind, src)
	return NewResolver(cfg.SignalConfig, ind, cons, src)
}

func TestBaseHint(t *testing.T) {
	r := newResolver(fakeSource{})

	cases := []struct {
		name     string
		m1, m5   float64
		side     venue.Side
		hasHint  bool
		conflict bool
	}{
		{"m1 oversold", 20, 60, venue.SideBuy, true, false},
		{"both below midline", 45, 48, venue.SideBuy, true, false},
		{"m1 overbought", 80, 40, venue.SideSell, true, false},
		{"both above midline", 55, 52, venue.SideSell, true, false},
		{"mixed midline", 45, 55, "", false, false},
		{"both at midline", 50, 50, "", false, false},
		{"opposite extremes m1 low", 10, 90, "", false, true},
		{"opposite extremes m1 high", 90, 10, "", false, true},
	}
	for _, tc := range cases {
		side, hasHint, conflict := r.baseHint(tc.m1, tc.m5)
		if side != tc.side || hasHint != tc.hasHint || conflict != tc.conflict {
			t.Errorf("%s: baseHint(%.0f, %.0f) = (%q, %v, %v), want (%q, %v, %v)",
				tc.name, tc.m1, tc.m5, side, hasHint, conflict, tc.side, tc.hasHint, tc.conflict)
		}
	}
}

func TestConflictIsOrderIndependent(t *testing.T) {
	r := newResolver(fakeSource{})

	_, _, c1 := r.baseHint(10, 90)
	_, _, c2 := r.baseHint(90, 10)
	if !c1 || !c2 {
		t.Errorf("opposite extremes must conflict regardless of ordering: got %v, %v", c1, c2)
	}
}

func TestEntryTriggerCrossover(t *testing.T) {
	r := newResolver(fakeSource{})

	buyReading := indicators.Reading{
		STC: 30, STCValid: true,
		Crossover:  indicators.CrossBullish,
		LinesValid: true,
	}
	if ok, reason := r.entryTrigger(venue.SideBuy, buyReading); !ok {
		t.Error("bullish crossover should trigger a buy entry")
	} else if reason == "" {
		t.Error("trigger reason must not be empty")
	}

	// A bearish cross never triggers a buy.
	buyReading.Crossover = indicators.CrossBearish
	if ok, _ := r.entryTrigger(venue.SideBuy, buyReading); ok {
		t.Error("bearish crossover must not trigger a buy entry")
	}

	sellReading := indicators.Reading{
		STC: 70, STCValid: true,
		Crossover:  indicators.CrossBearish,
		LinesValid: true,
	}
	if ok, _ := r.entryTrigger(venue.SideSell, sellReading); !ok {
		t.Error("bearish crossover should trigger a sell entry")
	}
}

func TestEntryTriggerExtremeBypass(t *testing.T) {
	r := newResolver(fakeSource{})

	// Oscillator pinned near 0 with tenkan already above kijun: enter
	// without waiting for a fresh cross.
	reading := indicators.Reading{
		STC: 3, STCValid: true,
		Crossover:  indicators.CrossNone,
		LinesValid: true,
		Lines:      indicators.IchimokuLines{Tenkan: 4250, Kijun: 4248},
	}
	if ok, _ := r.entryTrigger(venue.SideBuy, reading); !ok {
		t.Error("extreme oversold with aligned lines should trigger a buy")
	}

	// Same oscillator but lines on the wrong side: no bypass.
	reading.Lines = indicators.IchimokuLines{Tenkan: 4248, Kijun: 4250}
	if ok, _ := r.entryTrigger(venue.SideBuy, reading); ok {
		t.Error("extreme bypass requires lines on the entry side")
	}

	// Oscillator merely low, not extreme: no bypass.
	reading.STC = 15
	reading.Lines = indicators.IchimokuLines{Tenkan: 4250, Kijun: 4248}
	if ok, _ := r.entryTrigger(venue.SideBuy, reading); ok {
		t.Error("non-extreme oscillator must not bypass the crossover")
	}

	// Sell-side bypass near 100.
	reading = indicators.Reading{
		STC: 97, STCValid: true,
		LinesValid: true,
		Lines:      indicators.IchimokuLines{Tenkan: 4248, Kijun: 4250},
		Crossover:  indicators.CrossNone,
	}
	if ok, _ := r.entryTrigger(venue.SideSell, reading); !ok {
		t.Error("extreme overbought with aligned lines should trigger a sell")
	}
}

func TestExtremeBypassDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.SignalConfig.AllowExtremeEntry = false
	ind := indicators.NewEngine(cfg.SignalConfig)
	cons := consensus.New(cfg.ConsensusConfig, cfg.SignalConfig, ind, fakeSource{})
	r := NewResolver(cfg.SignalConfig, ind, cons, fakeSource{})

	reading := indicators.Reading{
		STC: 3, STCValid: true,
		LinesValid: true,
		Lines:      indicators.IchimokuLines{Tenkan: 4250, Kijun: 4248},
		Crossover:  indicators.CrossNone,
	}
	if ok, _ := r.entryTrigger(venue.SideBuy, reading); ok {
		t.Error("disabled extreme bypass must not trigger entries")
	}
}

func TestResolveInsufficientData(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	short := make([]market.Bar, 10)
	for i := range short {
		short[i] = market.Bar{Start: start.Add(time.Duration(i) * time.Minute), Close: 4000}
	}
	src := fakeSource{bars: map[market.Timeframe][]market.Bar{
		market.M1: short, market.M5: short,
	}}
	r := newResolver(src)

	sig := r.Resolve(start)
	if sig.Generated {
		t.Error("no signal should be generated without indicator history")
	}
	if sig.Conflict {
		t.Error("insufficient data is not a conflict")
	}
	if sig.Reason != "insufficient data for base signal" {
		t.Errorf("reason = %q, want insufficient-data reason", sig.Reason)
	}
}
