package indicators

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/market"
)

// Crossover reports a conversion/base line cross between two consecutive
// evaluations of the same timeframe.
type Crossover string

const (
	CrossNone    Crossover = "NONE"
	CrossBullish Crossover = "BULLISH"
	CrossBearish Crossover = "BEARISH"
)

// Reading is one indicator evaluation for a timeframe. Valid flags separate
// real readings from insufficient data; consumers must never substitute a
// placeholder number for an invalid reading.
type Reading struct {
	Timeframe  market.Timeframe `json:"timeframe"`
	STC        float64          `json:"stc"`
	STCValid   bool             `json:"stc_valid"`
	Lines      IchimokuLines    `json:"ichimoku"`
	LinesValid bool             `json:"ichimoku_valid"`
	Crossover  Crossover        `json:"crossover"`
}

type prevLines struct {
	tenkan float64
	kijun  float64
	valid  bool
}

// Engine evaluates indicators per timeframe and tracks line positions across
// evaluations so crossovers are detected as state transitions, not as
// absolute-position comparisons.
type Engine struct {
	mu     sync.Mutex
	cfg    config.SignalConfig
	prev   map[market.Timeframe]prevLines
	logger zerolog.Logger
}

// NewEngine creates an indicator engine with the given parameters.
func NewEngine(cfg config.SignalConfig) *Engine {
	return &Engine{
		cfg:    cfg,
		prev:   make(map[market.Timeframe]prevLines),
		logger: logging.Component("indicators"),
	}
}

// UpdateConfig swaps indicator parameters. Crossover state is cleared since
// prior line positions were computed under different periods.
func (e *Engine) UpdateConfig(cfg config.SignalConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.prev = make(map[market.Timeframe]prevLines)
}

// Evaluate computes the STC and Ichimoku readings for one timeframe from a
// bar snapshot and reports any crossover since the previous evaluation.
func (e *Engine) Evaluate(tf market.Timeframe, bars []market.Bar) Reading {
	e.mu.Lock()
	defer e.mu.Unlock()

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	r := Reading{Timeframe: tf, Crossover: CrossNone}

	if v, err := STC(closes, e.cfg.STCPeriod, e.cfg.STCFastLength, e.cfg.STCSlowLength); err == nil {
		r.STC = v
		r.STCValid = true
	}

	lines, err := Ichimoku(closes, e.cfg.TenkanPeriod, e.cfg.KijunPeriod, e.cfg.SenkouBPeriod)
	if err != nil {
		// Forget stale line state so the next valid reading does not
		// produce a phantom crossover against old values.
		delete(e.prev, tf)
		return r
	}
	r.Lines = lines
	r.LinesValid = true

	if p, ok := e.prev[tf]; ok && p.valid {
		switch {
		case p.tenkan <= p.kijun && lines.Tenkan > lines.Kijun:
			r.Crossover = CrossBullish
		case p.tenkan >= p.kijun && lines.Tenkan < lines.Kijun:
			r.Crossover = CrossBearish
		}
		if r.Crossover != CrossNone {
			e.logger.Debug().
				Str("timeframe", string(tf)).
				Str("crossover", string(r.Crossover)).
				Float64("tenkan", lines.Tenkan).
				Float64("kijun", lines.Kijun).
				Msg("line crossover detected")
		}
	}
	e.prev[tf] = prevLines{tenkan: lines.Tenkan, kijun: lines.Kijun, valid: true}

	return r
}
