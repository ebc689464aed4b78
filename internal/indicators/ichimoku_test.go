package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/HCTech2/GOLD-HFT/internal/market"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestIchimokuInsufficientData(t *testing.T) {
	closes := make([]float64, 51)
	if _, err := Ichimoku(closes, 9, 26, 52); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData for 51 closes, got %v", err)
	}
}

func TestIchimokuKnownValues(t *testing.T) {
	closes := make([]float64, 52)
	for i := range closes {
		closes[i] = float64(i + 1) // 1..52 ascending
	}

	lines, err := Ichimoku(closes, 9, 26, 52)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !almostEqual(lines.Tenkan, 48.0) {
		t.Errorf("tenkan = %.2f, want 48.00", lines.Tenkan)
	}
	if !almostEqual(lines.Kijun, 39.5) {
		t.Errorf("kijun = %.2f, want 39.50", lines.Kijun)
	}
	if !almostEqual(lines.SenkouA, 43.75) {
		t.Errorf("senkou A = %.2f, want 43.75", lines.SenkouA)
	}
	if !almostEqual(lines.SenkouB, 26.5) {
		t.Errorf("senkou B = %.2f, want 26.50", lines.SenkouB)
	}
	if !almostEqual(lines.CloudTop, 43.75) || !almostEqual(lines.CloudBottom, 26.5) {
		t.Errorf("cloud envelope = [%.2f, %.2f], want [26.50, 43.75]", lines.CloudBottom, lines.CloudTop)
	}
}

func TestIchimokuCloudEnvelopeOrdering(t *testing.T) {
	// Descending closes invert the spans; the envelope must still come out
	// with top >= bottom.
	closes := make([]float64, 52)
	for i := range closes {
		closes[i] = float64(100 - i)
	}
	lines, err := Ichimoku(closes, 9, 26, 52)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines.CloudTop < lines.CloudBottom {
		t.Errorf("cloud top %.2f below bottom %.2f", lines.CloudTop, lines.CloudBottom)
	}
}

func TestATR(t *testing.T) {
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, 15)
	for i := range bars {
		bars[i] = market.Bar{
			Start: start.Add(time.Duration(i) * time.Minute),
			Open:  4000, High: 4001, Low: 3999, Close: 4000,
		}
	}

	atr, err := ATR(bars, 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(atr, 2.0) {
		t.Errorf("ATR = %.2f, want 2.00", atr)
	}

	if _, err := ATR(bars[:10], 14); err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData for short series, got %v", err)
	}
}
