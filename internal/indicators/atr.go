package indicators

import (
	"math"

	"github.com/HCTech2/GOLD-HFT/internal/market"
)

// ATR computes the average true range over the last period bars. Used as the
// volatility input for position sizing.
func ATR(bars []market.Bar, period int) (float64, error) {
	if len(bars) < period+1 {
		return 0, ErrInsufficientData
	}

	bars = bars[len(bars)-period-1:]
	sum := 0.0
	for i := 1; i < len(bars); i++ {
		tr := bars[i].High - bars[i].Low
		if v := math.Abs(bars[i].High - bars[i-1].Close); v > tr {
			tr = v
		}
		if v := math.Abs(bars[i].Low - bars[i-1].Close); v > tr {
			tr = v
		}
		sum += tr
	}
	return sum / float64(period), nil
}
