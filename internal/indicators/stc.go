package indicators

import "errors"

// ErrInsufficientData is returned when a series is too short for the
// requested indicator. Callers must treat it as "no reading", never as a
// neutral numeric value.
var ErrInsufficientData = errors.New("insufficient data for indicator")

// ema returns the exponential moving average series seeded with the first
// value. The result has the same length as the input.
func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	multiplier := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*multiplier + out[i-1]*(1-multiplier)
	}
	return out
}

// STC computes the Schaff Trend Cycle over a close series: the MACD of
// fast/slow EMAs is stochastic-normalized over a trailing window of length
// period, then EMA(3)-smoothed. The result is clamped to [0,100]; 0 and 100
// are valid maximal-strength readings, not errors. A flat MACD window yields
// the neutral 50.
func STC(closes []float64, period, fast, slow int) (float64, error) {
	if len(closes) < slow {
		return 0, ErrInsufficientData
	}

	window := closes[len(closes)-slow:]
	emaFast := ema(window, fast)
	emaSlow := ema(window, slow)

	macd := make([]float64, len(window))
	for i := range window {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	tail := macd[len(macd)-period:]
	lo, hi := tail[0], tail[0]
	for _, v := range tail {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return 50.0, nil
	}

	// Normalize each point of the tail so the smoothing has a series to
	// work on, then take the smoothed last value.
	stoch := make([]float64, len(tail))
	for i, v := range tail {
		stoch[i] = 100 * (v - lo) / (hi - lo)
	}
	smoothed := ema(stoch, 3)
	value := smoothed[len(smoothed)-1]

	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return value, nil
}
