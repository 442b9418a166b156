package trendguard

import (
	"math"
)

// CapitalFraction caps a position's notional at this share of equity
const CapitalFraction = 0.95

// PositionSize returns the risk-based unit count for an entry.
//
// units = floor(equity * risk / stopDistance), then capped by
// floor(equity * CapitalFraction / price). The cap only ever lowers the
// size. A non-positive or undefined stop distance or price yields 0.
func PositionSize(equity, risk, stopDistance, price float64) int64 {
	if math.IsNaN(stopDistance) || stopDistance <= 0 || math.IsInf(stopDistance, 0) {
		return 0
	}
	if math.IsNaN(price) || price <= 0 || !(equity > 0) {
		return 0
	}

	units := math.Floor(equity * risk / stopDistance)
	maxUnits := math.Floor(equity * CapitalFraction / price)
	if maxUnits < units {
		units = maxUnits
	}
	if units < 1 {
		return 0
	}
	return int64(units)
}
