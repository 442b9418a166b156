package indicator

// MovingAverage calculates the simple moving average of the trailing n values.
// The result has the same length as values; the first n-1 entries are NaN.
func MovingAverage(values []float64, n int) []float64 {
	sums := rollingSum(values, n)
	for i, s := range sums {
		sums[i] = s / float64(n)
	}
	return sums
}

// MovingAverageChecked is MovingAverage with window validation
func MovingAverageChecked(values []float64, n int) ([]float64, error) {
	if err := checkWindow(n); err != nil {
		return nil, err
	}
	return MovingAverage(values, n), nil
}
