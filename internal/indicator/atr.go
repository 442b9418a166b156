package indicator

import (
	"math"

	"github.com/christophzehentbauerz/trade/internal/core"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|) per bar.
// Index 0 has no previous close and is NaN.
func TrueRange(bars []core.Bar) []float64 {
	return trueRange(core.Highs(bars), core.Lows(bars), core.Closes(bars))
}

func trueRange(high, low, close []float64) []float64 {
	out := nanSeries(len(close))
	for i := 1; i < len(close); i++ {
		prev := close[i-1]
		tr := high[i] - low[i]
		if v := math.Abs(high[i] - prev); v > tr {
			tr = v
		}
		if v := math.Abs(low[i] - prev); v > tr {
			tr = v
		}
		out[i] = tr
	}
	return out
}

// ATR calculates the Average True Range as the trailing n mean of TrueRange.
// The first defined value is at index n.
func ATR(bars []core.Bar, n int) []float64 {
	return MovingAverage(TrueRange(bars), n)
}

// ATRFromColumns computes ATR from raw columns. When a column is missing or
// the columns disagree in length it returns a zero-filled series of length
// size; callers must read that as "unavailable" (see IsUnavailable), not as
// zero volatility.
func ATRFromColumns(high, low, close []float64, size, n int) []float64 {
	if len(high) != size || len(low) != size || len(close) != size {
		return make([]float64, size)
	}
	return MovingAverage(trueRange(high, low, close), n)
}

// ATRChecked is ATR with window validation
func ATRChecked(bars []core.Bar, n int) ([]float64, error) {
	if err := checkWindow(n); err != nil {
		return nil, err
	}
	return ATR(bars, n), nil
}
