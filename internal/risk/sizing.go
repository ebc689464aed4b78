package risk

import (
	"math"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/venue"
)

// Levels are the protective prices for a new position.
type Levels struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// Sizer computes protective levels and position volume.
type Sizer struct {
	cfg config.SizingConfig
}

// NewSizer creates a sizer with the given parameters.
func NewSizer(cfg config.SizingConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// UpdateConfig swaps sizing parameters.
func (s *Sizer) UpdateConfig(cfg config.SizingConfig) {
	s.cfg = cfg
}

// Levels places the stop and target around the entry. The TP distance always
// includes the spread compensation term: without it a long entered on the ask
// would need the bid to travel the full nominal distance plus the spread
// before the target is reachable.
func (s *Sizer) Levels(side venue.Side, entry, spread, tpMult, slMult float64) Levels {
	slDist := s.cfg.BaseSLDistance * slMult
	tpDist := s.cfg.BaseTPDistance*tpMult + spread*s.cfg.SpreadCompensation

	if side == venue.SideBuy {
		return Levels{
			StopLoss:   entry - slDist,
			TakeProfit: entry + tpDist,
		}
	}
	return Levels{
		StopLoss:   entry + slDist,
		TakeProfit: entry - tpDist,
	}
}

// Volume sizes a new position: the base ladder indexed by how many positions
// are already open, damped toward the floor multiplier as volatility rises,
// boosted toward the ceiling multiplier above 0.8 confidence, then snapped
// to the venue volume step and clamped.
//
// volatility is in price units (ATR), confidence in [0,1].
func (s *Sizer) Volume(openPositions int, volatility, confidence float64) float64 {
	idx := openPositions
	if idx >= len(s.cfg.PositionSizes) {
		idx = len(s.cfg.PositionSizes) - 1
	}
	if idx < 0 {
		idx = 0
	}
	volume := s.cfg.PositionSizes[idx]

	if s.cfg.VolumeDynamicEnabled {
		ratio := 0.0
		if s.cfg.MaxVolatilityForSize > 0 {
			ratio = math.Min(volatility/s.cfg.MaxVolatilityForSize, 1.0)
		}
		volFactor := 1.0 - ratio*(1.0-s.cfg.VolumeMinMultiplier)

		boost := 1.0
		if confidence > 0.8 {
			boost = 1.0 + (confidence-0.8)/0.2*(s.cfg.VolumeMaxMultiplier-1.0)
		}

		volume *= volFactor * boost
	}

	return s.snap(volume)
}

// snap rounds to the venue volume step and clamps to the allowed range.
func (s *Sizer) snap(volume float64) float64 {
	volume = math.Round(volume/s.cfg.VolumeStep) * s.cfg.VolumeStep
	if volume < s.cfg.VolumeMin {
		volume = s.cfg.VolumeMin
	}
	if volume > s.cfg.VolumeMax {
		volume = s.cfg.VolumeMax
	}
	return volume
}
