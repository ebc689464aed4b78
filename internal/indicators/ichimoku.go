package indicators

// IchimokuLines holds one evaluation of the three-line indicator plus the
// cloud envelope derived from the two spans.
type IchimokuLines struct {
	Tenkan      float64 `json:"tenkan"`
	Kijun       float64 `json:"kijun"`
	SenkouA     float64 `json:"senkou_a"`
	SenkouB     float64 `json:"senkou_b"`
	CloudTop    float64 `json:"cloud_top"`
	CloudBottom float64 `json:"cloud_bottom"`
}

func highLow(values []float64) (float64, float64) {
	hi, lo := values[0], values[0]
	for _, v := range values[1:] {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return hi, lo
}

func midline(closes []float64, period int) float64 {
	hi, lo := highLow(closes[len(closes)-period:])
	return (hi + lo) / 2
}

// Ichimoku computes the conversion/base lines and spans from a close series.
// The series must cover at least the Senkou B period.
func Ichimoku(closes []float64, tenkan, kijun, senkouB int) (IchimokuLines, error) {
	if len(closes) < senkouB {
		return IchimokuLines{}, ErrInsufficientData
	}

	lines := IchimokuLines{
		Tenkan:  midline(closes, tenkan),
		Kijun:   midline(closes, kijun),
		SenkouB: midline(closes, senkouB),
	}
	lines.SenkouA = (lines.Tenkan + lines.Kijun) / 2

	if lines.SenkouA >= lines.SenkouB {
		lines.CloudTop, lines.CloudBottom = lines.SenkouA, lines.SenkouB
	} else {
		lines.CloudTop, lines.CloudBottom = lines.SenkouB, lines.SenkouA
	}
	return lines, nil
}
