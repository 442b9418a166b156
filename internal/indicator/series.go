// Package indicator turns bar columns into same-length indicator series.
// Undefined positions (warm-up, degenerate denominators) hold NaN.
package indicator

import (
	"math"

	"github.com/christophzehentbauerz/trade/internal/core"
)

// IsDefined reports whether v is a usable indicator value
func IsDefined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsUnavailable reports whether a series carries no information: empty,
// all NaN, or the all-zero fallback produced when input columns are missing.
func IsUnavailable(series []float64) bool {
	for _, v := range series {
		if IsDefined(v) && v != 0 {
			return false
		}
	}
	return true
}

// FirstDefined returns the index of the first defined value, or -1
func FirstDefined(series []float64) int {
	for i, v := range series {
		if IsDefined(v) {
			return i
		}
	}
	return -1
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// rollingSum sums the trailing n values. A window containing any NaN is NaN.
func rollingSum(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n < 1 {
		return out
	}

	var sum float64
	var nans int
	for i, v := range values {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}

		if i >= n {
			old := values[i-n]
			if math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}

		if i >= n-1 && nans == 0 {
			out[i] = sum
		}
	}
	return out
}

func checkWindow(n int) error {
	if n < 1 {
		return core.ErrInvalidWindow
	}
	return nil
}
