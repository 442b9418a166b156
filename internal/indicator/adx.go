package indicator

import (
	"math"

	"github.com/christophzehentbauerz/trade/internal/core"
)

// Directional holds the intermediate series of the directional movement system
type Directional struct {
	PlusDI  []float64
	MinusDI []float64
	DX      []float64
}

// DirectionalMovement returns +DM and -DM per bar.
// +DM is the up move when it exceeds the down move and is positive, else 0.
// -DM is symmetric. Index 0 is 0 for both.
func DirectionalMovement(bars []core.Bar) (plus, minus []float64) {
	plus = make([]float64, len(bars))
	minus = make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plus[i] = up
		}
		if down > up && down > 0 {
			minus[i] = down
		}
	}
	return plus, minus
}

// DirectionalIndex computes +DI, -DI and DX over trailing n sums.
// A zero true-range sum or a zero DI sum leaves that bar NaN.
func DirectionalIndex(bars []core.Bar, n int) Directional {
	plusDM, minusDM := DirectionalMovement(bars)
	trSum := rollingSum(TrueRange(bars), n)
	plusSum := rollingSum(plusDM, n)
	minusSum := rollingSum(minusDM, n)

	d := Directional{
		PlusDI:  nanSeries(len(bars)),
		MinusDI: nanSeries(len(bars)),
		DX:      nanSeries(len(bars)),
	}

	for i := range bars {
		tr := trSum[i]
		if math.IsNaN(tr) || math.IsNaN(plusSum[i]) || math.IsNaN(minusSum[i]) || tr == 0 {
			continue
		}
		pdi := 100 * plusSum[i] / tr
		mdi := 100 * minusSum[i] / tr
		d.PlusDI[i] = pdi
		d.MinusDI[i] = mdi

		// both DIs zero: no directional movement at all in the window
		if pdi+mdi == 0 {
			continue
		}
		d.DX[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
	}
	return d
}

// ADX calculates the Average Directional Index as the trailing n mean of DX.
// With clean input the first defined value is at index 2n-1.
func ADX(bars []core.Bar, n int) []float64 {
	return MovingAverage(DirectionalIndex(bars, n).DX, n)
}

// ADXChecked is ADX with window validation
func ADXChecked(bars []core.Bar, n int) ([]float64, error) {
	if err := checkWindow(n); err != nil {
		return nil, err
	}
	return ADX(bars, n), nil
}
