package indicator

import (
	"math"

	"github.com/christophzehentbauerz/trade/internal/core"
)

// ExtremeKind selects the rolling maximum or minimum
type ExtremeKind int

const (
	Max ExtremeKind = iota
	Min
)

// RollingExtreme returns the trailing n max or min shifted forward one bar:
// out[i] covers values[i-n .. i-1] and never includes values[i]. The first n
// entries are NaN.
func RollingExtreme(values []float64, n int, kind ExtremeKind) []float64 {
	out := nanSeries(len(values))
	if n < 1 {
		return out
	}

	for i := n; i < len(values); i++ {
		ext := values[i-n]
		for j := i - n + 1; j < i; j++ {
			v := values[j]
			if math.IsNaN(v) || math.IsNaN(ext) {
				ext = math.NaN()
				break
			}
			if (kind == Max && v > ext) || (kind == Min && v < ext) {
				ext = v
			}
		}
		out[i] = ext
	}
	return out
}

// DonchianHigh is the prior-window high used for long breakouts
func DonchianHigh(bars []core.Bar, n int) []float64 {
	return RollingExtreme(core.Highs(bars), n, Max)
}

// DonchianLow is the prior-window low used for short breakouts
func DonchianLow(bars []core.Bar, n int) []float64 {
	return RollingExtreme(core.Lows(bars), n, Min)
}
