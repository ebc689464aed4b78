package consensus

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/indicators"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
	"github.com/HCTech2/GOLD-HFT/internal/market"
	"github.com/HCTech2/GOLD-HFT/internal/venue"
)

// Vote is one higher-timeframe trend opinion.
type Vote string

const (
	VoteBullish Vote = "BULLISH"
	VoteBearish Vote = "BEARISH"
	// VoteNeutral is a defined vote with no directional lean. It counts in
	// the denominator but aligns with neither side.
	VoteNeutral Vote = "NEUTRAL"
	// VoteUnknown marks insufficient data. Unknown votes are excluded from
	// the denominator entirely so missing history cannot dilute alignment.
	VoteUnknown Vote = "UNKNOWN"
)

// Outcome is one multi-timeframe alignment evaluation.
type Outcome struct {
	Side       venue.Side                `json:"side"`
	Votes      map[market.Timeframe]Vote `json:"votes"`
	Aligned    int                       `json:"aligned"`
	Defined    int                       `json:"defined"`
	Required   int                       `json:"required"`
	Confidence float64                   `json:"confidence"` // aligned/defined, percent
	Allowed    bool                      `json:"allowed"`
	Reason     string                    `json:"reason,omitempty"`
}

// BarSource provides point-in-time bar snapshots per timeframe.
type BarSource interface {
	Bars(tf market.Timeframe, n int) []market.Bar
}

// Evaluator checks whether the higher timeframes agree with a prospective
// trade direction and scores how strongly they agree.
type Evaluator struct {
	cfg        config.ConsensusConfig
	buyThr     float64
	sellThr    float64
	timeframes []market.Timeframe
	ind        *indicators.Engine
	src        BarSource
	barsNeeded int
	logger     zerolog.Logger
}

// New creates an evaluator. Timeframe strings in cfg must parse; Validate on
// the config catches empty lists but not typos, so unknown names are skipped
// with a warning.
func New(cfg config.ConsensusConfig, sig config.SignalConfig, ind *indicators.Engine, src BarSource) *Evaluator {
	logger := logging.Component("consensus")

	tfs := make([]market.Timeframe, 0, len(cfg.Timeframes))
	for _, s := range cfg.Timeframes {
		tf, err := market.ParseTimeframe(s)
		if err != nil {
			logger.Warn().Str("timeframe", s).Msg("skipping unknown consensus timeframe")
			continue
		}
		tfs = append(tfs, tf)
	}

	needed := sig.STCSlowLength + sig.STCPeriod
	if sig.SenkouBPeriod > needed {
		needed = sig.SenkouBPeriod
	}

	return &Evaluator{
		cfg:        cfg,
		buyThr:     sig.STCBuyThreshold,
		sellThr:    sig.STCSellThreshold,
		timeframes: tfs,
		ind:        ind,
		src:        src,
		barsNeeded: needed,
		logger:     logger,
	}
}

// voteFromSTC maps an oscillator reading to a trend vote. The entry
// thresholds are widened by 15 points for trend context, and readings in the
// middle band lean by the 50 midline. Exactly 50 is a defined vote with no
// direction.
func (e *Evaluator) voteFromSTC(r indicators.Reading) Vote {
	if !r.STCValid {
		return VoteUnknown
	}
	switch {
	case r.STC < e.buyThr+15:
		return VoteBullish
	case r.STC > e.sellThr-15:
		return VoteBearish
	case r.STC < 50:
		return VoteBullish
	case r.STC > 50:
		return VoteBearish
	default:
		return VoteNeutral
	}
}

func directionVote(side venue.Side) Vote {
	if side == venue.SideBuy {
		return VoteBullish
	}
	return VoteBearish
}

// Evaluate collects one vote per configured timeframe and checks alignment
// with the prospective side against the configured threshold.
func (e *Evaluator) Evaluate(side venue.Side) Outcome {
	out := Outcome{
		Side:     side,
		Votes:    make(map[market.Timeframe]Vote, len(e.timeframes)),
		Required: e.cfg.AlignmentThreshold,
	}
	want := directionVote(side)

	for _, tf := range e.timeframes {
		bars := e.src.Bars(tf, e.barsNeeded)
		vote := e.voteFromSTC(e.ind.Evaluate(tf, bars))
		out.Votes[tf] = vote

		if vote == VoteUnknown {
			continue
		}
		out.Defined++
		if vote == want {
			out.Aligned++
		}
	}

	if out.Defined > 0 {
		out.Confidence = float64(out.Aligned) / float64(out.Defined) * 100
	}

	if out.Aligned >= out.Required {
		out.Allowed = true
	} else {
		out.Reason = fmt.Sprintf("timeframe alignment %d/%d below required %d",
			out.Aligned, out.Defined, out.Required)
	}

	e.logger.Debug().
		Str("side", string(side)).
		Int("aligned", out.Aligned).
		Int("defined", out.Defined).
		Float64("confidence", out.Confidence).
		Bool("allowed", out.Allowed).
		Msg("consensus evaluated")

	return out
}

// Multipliers maps an alignment confidence to the TP/SL distance multipliers
// for that tier.
func (e *Evaluator) Multipliers(confidence float64) (tp, sl float64) {
	if !e.cfg.ConfidenceEnabled {
		return 1.0, 1.0
	}
	switch {
	case confidence >= e.cfg.HighConfidenceMin:
		return e.cfg.TPMultHigh, e.cfg.SLMultHigh
	case confidence >= e.cfg.MedConfidenceMin:
		return e.cfg.TPMultMed, e.cfg.SLMultMed
	default:
		return e.cfg.TPMultLow, e.cfg.SLMultLow
	}
}

// MinConfidence returns the configured floor below which entries are skipped.
func (e *Evaluator) MinConfidence() float64 {
	return e.cfg.MinConfidence
}
