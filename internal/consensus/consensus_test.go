package consensus

import (
	"strings"
	"testing"
	"time"

	"github.com/HCTech2/GOLD-HFT/config"
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

func barsFromCloses(closes []float64) []market.Bar {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Start: start.Add(time.Duration(i) * time.Minute),
			Open:  c, High: c, Low: c, Close: c,
			Complete: true,
		}
	}
	return bars
}

// uptrendCloses produces a series whose STC reads deep in the overbought
// band, voting bearish.
func uptrendCloses() []float64 {
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 4000
	}
	for i := 0; i < 15; i++ {
		closes[55+i] = 4000 + float64(i+1)*2
	}
	return closes
}

func newEvaluator(src BarSource, cfg config.ConsensusConfig) *Evaluator {
	sig := config.Default().SignalConfig
	return New(cfg, sig, indicators.NewEngine(sig), src)
}

func TestVoteFromSTC(t *testing.T) {
	e := newEvaluator(fakeSource{}, config.Default().ConsensusConfig)

	cases := []struct {
		stc   float64
		valid bool
		want  Vote
	}{
		{30, true, VoteBullish},  // inside widened buy band (< 40)
		{70, true, VoteBearish},  // inside widened sell band (> 60)
		{45, true, VoteBullish},  // midline lean
		{55, true, VoteBearish},  // midline lean
		{50, true, VoteNeutral},  // exactly the midline
		{0, false, VoteUnknown},  // insufficient data
		{0, true, VoteBullish},   // boundary reading is a valid extreme
		{100, true, VoteBearish}, // boundary reading is a valid extreme
	}
	for _, tc := range cases {
		r := indicators.Reading{STC: tc.stc, STCValid: tc.valid}
		if got := e.voteFromSTC(r); got != tc.want {
			t.Errorf("voteFromSTC(%.0f, valid=%v) = %s, want %s", tc.stc, tc.valid, got, tc.want)
		}
	}
}

func TestEvaluateAllTimeframesAligned(t *testing.T) {
	up := barsFromCloses(uptrendCloses())
	src := fakeSource{bars: map[market.Timeframe][]market.Bar{
		market.M15: up, market.M30: up, market.H1: up, market.H4: up,
	}}
	e := newEvaluator(src, config.Default().ConsensusConfig)

	out := e.Evaluate(venue.SideSell)
	if !out.Allowed {
		t.Fatalf("expected sell to be allowed, reason: %s", out.Reason)
	}
	if out.Aligned != 4 || out.Defined != 4 {
		t.Errorf("aligned/defined = %d/%d, want 4/4", out.Aligned, out.Defined)
	}
	if out.Confidence != 100 {
		t.Errorf("confidence = %.1f, want 100.0", out.Confidence)
	}

	// Opposite direction against a uniform trend: zero alignment.
	out = e.Evaluate(venue.SideBuy)
	if out.Allowed {
		t.Error("expected buy against uniform bearish votes to be rejected")
	}
	if out.Aligned != 0 {
		t.Errorf("aligned = %d, want 0", out.Aligned)
	}
	if !strings.Contains(out.Reason, "0/4") {
		t.Errorf("rejection reason %q should carry votes observed/defined", out.Reason)
	}
}

func TestUnknownVotesExcludedFromDenominator(t *testing.T) {
	up := barsFromCloses(uptrendCloses())
	short := barsFromCloses(make([]float64, 10))
	src := fakeSource{bars: map[market.Timeframe][]market.Bar{
		market.M15: up, market.M30: up, market.H1: short, market.H4: short,
	}}
	e := newEvaluator(src, config.Default().ConsensusConfig)

	out := e.Evaluate(venue.SideSell)
	if out.Defined != 2 {
		t.Fatalf("defined = %d, want 2 (unknown votes excluded)", out.Defined)
	}
	if out.Votes[market.H1] != VoteUnknown || out.Votes[market.H4] != VoteUnknown {
		t.Error("timeframes without history must vote UNKNOWN")
	}
	// Two of two defined votes agree: full confidence despite two unknowns.
	if out.Confidence != 100 {
		t.Errorf("confidence = %.1f, want 100.0", out.Confidence)
	}
	if !out.Allowed {
		t.Errorf("expected allowed with 2 aligned votes, reason: %s", out.Reason)
	}
}

func TestNoDefinedVotes(t *testing.T) {
	short := barsFromCloses(make([]float64, 10))
	src := fakeSource{bars: map[market.Timeframe][]market.Bar{
		market.M15: short, market.M30: short, market.H1: short, market.H4: short,
	}}
	e := newEvaluator(src, config.Default().ConsensusConfig)

	out := e.Evaluate(venue.SideBuy)
	if out.Allowed {
		t.Error("no defined votes can never satisfy the alignment threshold")
	}
	if out.Confidence != 0 {
		t.Errorf("confidence = %.1f, want 0.0", out.Confidence)
	}
	if out.Defined != 0 {
		t.Errorf("defined = %d, want 0", out.Defined)
	}
}

func TestAlignmentThresholdAgainstDefinedVotes(t *testing.T) {
	up := barsFromCloses(uptrendCloses())
	short := barsFromCloses(make([]float64, 10))
	src := fakeSource{bars: map[market.Timeframe][]market.Bar{
		market.M15: up, market.M30: short, market.H1: short, market.H4: short,
	}}

	cfg := config.Default().ConsensusConfig
	cfg.AlignmentThreshold = 2
	e := newEvaluator(src, cfg)

	out := e.Evaluate(venue.SideSell)
	if out.Allowed {
		t.Error("1 aligned vote must not satisfy a threshold of 2")
	}
	if !strings.Contains(out.Reason, "1/1") || !strings.Contains(out.Reason, "2") {
		t.Errorf("reason %q should carry observed votes and the requirement", out.Reason)
	}
}

func TestMultipliers(t *testing.T) {
	e := newEvaluator(fakeSource{}, config.Default().ConsensusConfig)

	if tp, sl := e.Multipliers(80); tp != 1.5 || sl != 0.7 {
		t.Errorf("high tier multipliers = %.1f/%.1f, want 1.5/0.7", tp, sl)
	}
	if tp, sl := e.Multipliers(50); tp != 1.0 || sl != 1.0 {
		t.Errorf("medium tier multipliers = %.1f/%.1f, want 1.0/1.0", tp, sl)
	}
	if tp, sl := e.Multipliers(20); tp != 0.6 || sl != 1.3 {
		t.Errorf("low tier multipliers = %.1f/%.1f, want 0.6/1.3", tp, sl)
	}

	cfg := config.Default().ConsensusConfig
	cfg.ConfidenceEnabled = false
	e = newEvaluator(fakeSource{}, cfg)
	if tp, sl := e.Multipliers(90); tp != 1.0 || sl != 1.0 {
		t.Errorf("disabled confidence multipliers = %.1f/%.1f, want 1.0/1.0", tp, sl)
	}
}
