package optimize

import (
	"fmt"
	"math"

	"github.com/christophzehentbauerz/trade/internal/backtest"
)

// RejectedScore is the score of any configuration that breaks a constraint
const RejectedScore = -1.0

// Constraints are the hard limits a configuration must meet to be scored
type Constraints struct {
	MinTrades        int     `mapstructure:"min_trades" json:"min_trades"`
	MaxDrawdownFloor float64 `mapstructure:"max_drawdown_floor" json:"max_drawdown_floor"` // percent, <= 0
}

// DefaultConstraints requires 10 trades and a drawdown no deeper than -20%
func DefaultConstraints() Constraints {
	return Constraints{
		MinTrades:        10,
		MaxDrawdownFloor: -20,
	}
}

// Check reports whether stats meet the constraints, and why not
func (c Constraints) Check(s backtest.Stats) (bool, string) {
	if s.TotalTrades < c.MinTrades {
		return false, fmt.Sprintf("%d trades, need at least %d", s.TotalTrades, c.MinTrades)
	}
	if s.MaxDrawdown < c.MaxDrawdownFloor {
		return false, fmt.Sprintf("max drawdown %.2f%% below floor %.2f%%", s.MaxDrawdown, c.MaxDrawdownFloor)
	}
	return true, ""
}

// Objective scores a run as total return over the magnitude of its max
// drawdown. Constraint violations score RejectedScore with a reason.
// A run without drawdown scores MaxFloat64, 0 or -MaxFloat64 by the sign
// of its return.
func Objective(s backtest.Stats, c Constraints) (float64, string) {
	if ok, reason := c.Check(s); !ok {
		return RejectedScore, reason
	}
	dd := math.Abs(s.MaxDrawdown)
	if dd == 0 {
		switch {
		case s.TotalReturn > 0:
			return math.MaxFloat64, ""
		case s.TotalReturn < 0:
			return -math.MaxFloat64, ""
		}
		return 0, ""
	}
	return s.TotalReturn / dd, ""
}
