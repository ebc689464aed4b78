package risk

import (
	"math"
	"testing"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/venue"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func testSizingConfig() config.SizingConfig {
	cfg := config.Default().SizingConfig
	cfg.PositionSizes = []float64{0.10, 0.20}
	cfg.BaseSLDistance = 10.0
	cfg.BaseTPDistance = 20.0
	cfg.SpreadCompensation = 1.5
	cfg.VolumeMinMultiplier = 0.5
	cfg.VolumeMaxMultiplier = 2.0
	cfg.MaxVolatilityForSize = 10.0
	cfg.VolumeStep = 0.01
	cfg.VolumeMin = 0.01
	cfg.VolumeMax = 1.0
	return cfg
}

func TestLevelsBuyWithSpreadCompensation(t *testing.T) {
	s := NewSizer(testSizingConfig())

	// Entry 4248.99, spread 3.15: the TP offset is 20.0 + 3.15*1.5 = 24.725.
	lv := s.Levels(venue.SideBuy, 4248.99, 3.15, 1.0, 1.0)
	if !almostEqual(lv.TakeProfit, 4273.715) {
		t.Errorf("take profit = %.4f, want 4273.7150", lv.TakeProfit)
	}
	if !almostEqual(lv.StopLoss, 4238.99) {
		t.Errorf("stop loss = %.4f, want 4238.9900", lv.StopLoss)
	}
}

func TestLevelsSellMirrors(t *testing.T) {
	s := NewSizer(testSizingConfig())

	lv := s.Levels(venue.SideSell, 4248.99, 3.15, 1.0, 1.0)
	if !almostEqual(lv.TakeProfit, 4248.99-24.725) {
		t.Errorf("take profit = %.4f, want %.4f", lv.TakeProfit, 4248.99-24.725)
	}
	if !almostEqual(lv.StopLoss, 4258.99) {
		t.Errorf("stop loss = %.4f, want 4258.9900", lv.StopLoss)
	}
}

func TestLevelsConfidenceMultipliers(t *testing.T) {
	s := NewSizer(testSizingConfig())

	// High-confidence tier: TP distance scaled 1.5x, SL tightened 0.7x.
	// Spread compensation applies to the scaled TP distance, never scaled
	// itself.
	lv := s.Levels(venue.SideBuy, 4000.00, 2.0, 1.5, 0.7)
	if !almostEqual(lv.TakeProfit, 4000.00+20.0*1.5+2.0*1.5) {
		t.Errorf("take profit = %.4f, want %.4f", lv.TakeProfit, 4000.00+33.0)
	}
	if !almostEqual(lv.StopLoss, 4000.00-7.0) {
		t.Errorf("stop loss = %.4f, want 3993.0000", lv.StopLoss)
	}
}

func TestLevelsZeroSpreadStillValid(t *testing.T) {
	s := NewSizer(testSizingConfig())

	lv := s.Levels(venue.SideBuy, 4000.00, 0, 1.0, 1.0)
	if !almostEqual(lv.TakeProfit, 4020.00) {
		t.Errorf("take profit = %.4f, want 4020.0000", lv.TakeProfit)
	}
}

func TestVolumeLadder(t *testing.T) {
	s := NewSizer(testSizingConfig())

	if v := s.Volume(0, 0, 0.5); !almostEqual(v, 0.10) {
		t.Errorf("volume at 0 open = %.4f, want 0.1000", v)
	}
	if v := s.Volume(1, 0, 0.5); !almostEqual(v, 0.20) {
		t.Errorf("volume at 1 open = %.4f, want 0.2000", v)
	}
	// Past the end of the ladder: the last rung applies.
	if v := s.Volume(9, 0, 0.5); !almostEqual(v, 0.20) {
		t.Errorf("volume past ladder = %.4f, want 0.2000", v)
	}
}

func TestVolumeVolatilityDamping(t *testing.T) {
	s := NewSizer(testSizingConfig())

	// Volatility at the threshold bottoms out at the floor multiplier.
	if v := s.Volume(0, 10.0, 0.5); !almostEqual(v, 0.05) {
		t.Errorf("volume at threshold volatility = %.4f, want 0.0500", v)
	}
	// Beyond the threshold the ratio is capped, not extrapolated.
	if v := s.Volume(0, 50.0, 0.5); !almostEqual(v, 0.05) {
		t.Errorf("volume past threshold = %.4f, want 0.0500", v)
	}
	// Halfway: factor 0.75.
	if v := s.Volume(0, 5.0, 0.5); !almostEqual(v, 0.08) {
		t.Errorf("volume at half volatility = %.4f, want 0.0800 (0.075 snapped up)", v)
	}
}

func TestVolumeConfidenceBoost(t *testing.T) {
	s := NewSizer(testSizingConfig())

	// Full confidence doubles the base.
	if v := s.Volume(0, 0, 1.0); !almostEqual(v, 0.20) {
		t.Errorf("volume at full confidence = %.4f, want 0.2000", v)
	}
	// 0.9 confidence: halfway to the ceiling multiplier.
	if v := s.Volume(0, 0, 0.9); !almostEqual(v, 0.15) {
		t.Errorf("volume at 0.9 confidence = %.4f, want 0.1500", v)
	}
	// At or below 0.8 there is no boost.
	if v := s.Volume(0, 0, 0.8); !almostEqual(v, 0.10) {
		t.Errorf("volume at 0.8 confidence = %.4f, want 0.1000", v)
	}
}

func TestVolumeDynamicDisabled(t *testing.T) {
	cfg := testSizingConfig()
	cfg.VolumeDynamicEnabled = false
	s := NewSizer(cfg)

	if v := s.Volume(0, 50.0, 1.0); !almostEqual(v, 0.10) {
		t.Errorf("static volume = %.4f, want base 0.1000", v)
	}
}

func TestVolumeClamping(t *testing.T) {
	cfg := testSizingConfig()
	cfg.PositionSizes = []float64{0.001}
	s := NewSizer(cfg)

	if v := s.Volume(0, 0, 0.5); !almostEqual(v, 0.01) {
		t.Errorf("tiny volume = %.4f, want clamped to minimum 0.0100", v)
	}

	cfg.PositionSizes = []float64{5.0}
	s = NewSizer(cfg)
	if v := s.Volume(0, 0, 0.5); !almostEqual(v, 1.0) {
		t.Errorf("huge volume = %.4f, want clamped to maximum 1.0000", v)
	}
}
