package indicators

import (
	"testing"
	"time"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/market"
)

func signalConfig() config.SignalConfig {
	return config.Default().SignalConfig
}

func barsFromCloses(closes []float64) []market.Bar {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
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

// tenkanBelow yields tenkan < kijun: a recent dip against a flat base.
func tenkanBelow() []float64 {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 4000
	}
	for i := 51; i < 60; i++ {
		closes[i] = 3990
	}
	return closes
}

// tenkanAbove yields tenkan > kijun: a recent rally against a flat base.
func tenkanAbove() []float64 {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 4000
	}
	for i := 51; i < 60; i++ {
		closes[i] = 4010
	}
	return closes
}

func TestEvaluateInsufficientData(t *testing.T) {
	e := NewEngine(signalConfig())

	r := e.Evaluate(market.M1, barsFromCloses(make([]float64, 20)))
	if r.STCValid {
		t.Error("STC should be invalid with 20 bars")
	}
	if r.LinesValid {
		t.Error("ichimoku should be invalid with 20 bars")
	}
	if r.Crossover != CrossNone {
		t.Errorf("crossover = %s, want NONE", r.Crossover)
	}
}

func TestFirstEvaluationNeverReportsCrossover(t *testing.T) {
	e := NewEngine(signalConfig())

	r := e.Evaluate(market.M1, barsFromCloses(tenkanAbove()))
	if !r.LinesValid {
		t.Fatal("expected valid ichimoku reading")
	}
	if r.Crossover != CrossNone {
		t.Errorf("first evaluation crossover = %s, want NONE", r.Crossover)
	}
}

func TestCrossoverIsStateTransition(t *testing.T) {
	e := NewEngine(signalConfig())

	// Tenkan below, then above: one bullish cross, reported once.
	e.Evaluate(market.M1, barsFromCloses(tenkanBelow()))
	r := e.Evaluate(market.M1, barsFromCloses(tenkanAbove()))
	if r.Crossover != CrossBullish {
		t.Errorf("crossover = %s, want BULLISH", r.Crossover)
	}

	// Tenkan stays above: still bullish in absolute position, but no new
	// transition, so no crossover.
	r = e.Evaluate(market.M1, barsFromCloses(tenkanAbove()))
	if r.Crossover != CrossNone {
		t.Errorf("repeat evaluation crossover = %s, want NONE", r.Crossover)
	}

	// Back below: bearish transition.
	r = e.Evaluate(market.M1, barsFromCloses(tenkanBelow()))
	if r.Crossover != CrossBearish {
		t.Errorf("crossover = %s, want BEARISH", r.Crossover)
	}
}

func TestCrossoverStateIsPerTimeframe(t *testing.T) {
	e := NewEngine(signalConfig())

	e.Evaluate(market.M1, barsFromCloses(tenkanBelow()))
	// M5 has no prior state; its first evaluation must not borrow M1's.
	r := e.Evaluate(market.M5, barsFromCloses(tenkanAbove()))
	if r.Crossover != CrossNone {
		t.Errorf("M5 first evaluation crossover = %s, want NONE", r.Crossover)
	}
	// M1 transitions independently.
	r = e.Evaluate(market.M1, barsFromCloses(tenkanAbove()))
	if r.Crossover != CrossBullish {
		t.Errorf("M1 crossover = %s, want BULLISH", r.Crossover)
	}
}

func TestInsufficientDataClearsCrossoverState(t *testing.T) {
	e := NewEngine(signalConfig())

	e.Evaluate(market.M1, barsFromCloses(tenkanBelow()))
	e.Evaluate(market.M1, barsFromCloses(make([]float64, 10))) // data dropout
	r := e.Evaluate(market.M1, barsFromCloses(tenkanAbove()))
	if r.Crossover != CrossNone {
		t.Errorf("crossover after dropout = %s, want NONE (state cleared)", r.Crossover)
	}
}

func TestUpdateConfigResetsState(t *testing.T) {
	e := NewEngine(signalConfig())

	e.Evaluate(market.M1, barsFromCloses(tenkanBelow()))
	e.UpdateConfig(signalConfig())
	r := e.Evaluate(market.M1, barsFromCloses(tenkanAbove()))
	if r.Crossover != CrossNone {
		t.Errorf("crossover after config update = %s, want NONE", r.Crossover)
	}
}
