package signal

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/consensus"
	"github.com/HCTech2/GOLD-HFT/internal/indicators"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/market"
	"github.com/HCTech2/GOLD-HFT/internal/venue"
)

// Signal is one resolver decision. Generated is false for every non-entry
// outcome; Reason always explains why.
type Signal struct {
	Time       time.Time         `json:"time"`
	Generated  bool              `json:"generated"`
	Side       venue.Side        `json:"side,omitempty"`
	Conflict   bool              `json:"conflict"`
	Reason     string            `json:"reason"`
	M1STC      float64           `json:"m1_stc"`
	M5STC      float64           `json:"m5_stc"`
	Confidence float64           `json:"confidence"`
	TPMult     float64           `json:"tp_mult"`
	SLMult     float64           `json:"sl_mult"`
	Consensus  consensus.Outcome `json:"consensus"`
}

// Resolver turns indicator readings into at most one entry signal per
// evaluation cycle.
type Resolver struct {
	cfg    config.SignalConfig
	ind    *indicators.Engine
	cons   *consensus.Evaluator
	src    consensus.BarSource
	needed int
	logger zerolog.Logger
}

// NewResolver creates a resolver over the shared indicator engine and
// consensus evaluator.
func NewResolver(cfg config.SignalConfig, ind *indicators.Engine, cons *consensus.Evaluator, src consensus.BarSource) *Resolver {
	needed := cfg.STCSlowLength + cfg.STCPeriod
	if cfg.SenkouBPeriod > needed {
		needed = cfg.SenkouBPeriod
	}
	return &Resolver{
		cfg:    cfg,
		ind:    ind,
		cons:   cons,
		src:    src,
		needed: needed,
		logger: logging.Component("signal"),
	}
}

func none(now time.Time, reason string) Signal {
	return Signal{Time: now, Reason: reason}
}

// baseHint derives the directional hint from the two base-timeframe
// oscillators. Opposite extremes cancel each other out; the check is
// symmetric, so neither ordering wins.
func (r *Resolver) baseHint(m1, m5 float64) (side venue.Side, hasHint, conflict bool) {
	if (m1 < r.cfg.STCBuyThreshold && m5 > r.cfg.STCSellThreshold) ||
		(m1 > r.cfg.STCSellThreshold && m5 < r.cfg.STCBuyThreshold) {
		return "", false, true
	}
	switch {
	case m1 < r.cfg.STCBuyThreshold || (m1 < 50 && m5 < 50):
		return venue.SideBuy, true, false
	case m1 > r.cfg.STCSellThreshold || (m1 > 50 && m5 > 50):
		return venue.SideSell, true, false
	default:
		return "", false, false
	}
}

// entryTrigger decides whether the M1 reading arms an entry in the hinted
// direction: a fresh line crossover, or an extreme oscillator reading while
// the lines already sit on the right side of each other.
func (r *Resolver) entryTrigger(side venue.Side, m1 indicators.Reading) (bool, string) {
	switch side {
	case venue.SideBuy:
		if m1.Crossover == indicators.CrossBullish {
			return true, "bullish line crossover"
		}
		if r.cfg.AllowExtremeEntry && m1.STC <= r.cfg.ExtremeThreshold && m1.Lines.Tenkan > m1.Lines.Kijun {
			return true, "extreme oversold with lines already aligned"
		}
	case venue.SideSell:
		if m1.Crossover == indicators.CrossBearish {
			return true, "bearish line crossover"
		}
		if r.cfg.AllowExtremeEntry && m1.STC >= 100-r.cfg.ExtremeThreshold && m1.Lines.Tenkan < m1.Lines.Kijun {
			return true, "extreme overbought with lines already aligned"
		}
	}
	return false, ""
}

// Resolve runs one signal evaluation: base hint from the M1/M5 oscillators,
// higher-timeframe agreement, then the entry trigger.
func (r *Resolver) Resolve(now time.Time) Signal {
	m1 := r.ind.Evaluate(market.M1, r.src.Bars(market.M1, r.needed))
	m5 := r.ind.Evaluate(market.M5, r.src.Bars(market.M5, r.needed))

	if !m1.STCValid || !m5.STCValid {
		return none(now, "insufficient data for base signal")
	}

	sig := Signal{Time: now, M1STC: m1.STC, M5STC: m5.STC}

	side, hasHint, conflict := r.baseHint(m1.STC, m5.STC)
	if conflict {
		sig.Conflict = true
		sig.Reason = "conflicting base signal"
		r.logger.Info().
			Float64("m1_stc", m1.STC).
			Float64("m5_stc", m5.STC).
			Msg("base timeframes at opposite extremes, no signal")
		return sig
	}
	if !hasHint {
		sig.Reason = "no directional bias"
		return sig
	}
	sig.Side = side

	cons := r.cons.Evaluate(side)
	sig.Consensus = cons
	sig.Confidence = cons.Confidence
	if !cons.Allowed {
		sig.Reason = cons.Reason
		return sig
	}
	if cons.Confidence < r.cons.MinConfidence() {
		sig.Reason = "consensus confidence below minimum"
		return sig
	}

	if !m1.LinesValid {
		sig.Reason = "insufficient data for entry trigger"
		return sig
	}

	triggered, trigger := r.entryTrigger(side, m1)
	if !triggered {
		sig.Reason = "no entry trigger"
		return sig
	}
	sig.Reason = trigger

	sig.Generated = true
	sig.TPMult, sig.SLMult = r.cons.Multipliers(cons.Confidence)

	r.logger.Info().
		Str("side", string(side)).
		Str("trigger", sig.Reason).
		Float64("m1_stc", m1.STC).
		Float64("m5_stc", m5.STC).
		Float64("confidence", cons.Confidence).
		Msg("entry signal generated")

	return sig
}
