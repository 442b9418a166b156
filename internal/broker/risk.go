package broker

import (
	"fmt"
)

// RiskConfig defines risk management parameters.
type RiskConfig struct {
	// MaxLeverage caps order notional at this multiple of equity.
	MaxLeverage float64 `mapstructure:"max_leverage"`
	// MaxPositionPct caps order notional at this percentage of equity.
	MaxPositionPct float64 `mapstructure:"max_position_pct"`
}

// DefaultRiskConfig returns an unlevered, whole-account configuration.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxLeverage:    1.0,
		MaxPositionPct: 100.0,
	}
}

// RiskCheckResult represents the outcome of a risk check.
type RiskCheckResult struct {
	// Allowed indicates whether the order is permitted.
	Allowed bool
	// Reason provides explanation when order is rejected.
	Reason string
}

// Account exposes the balance figures a risk check needs.
type Account interface {
	Equity() float64
}

// RiskChecker validates orders against risk management rules.
type RiskChecker struct {
	config  RiskConfig
	account Account
}

// NewRiskChecker creates a new RiskChecker with the given configuration and account.
func NewRiskChecker(config RiskConfig, account Account) *RiskChecker {
	return &RiskChecker{
		config:  config,
		account: account,
	}
}

// Check validates an order against the account at the given fill price.
// price should already include commission so the full cost is covered.
func (r *RiskChecker) Check(req OrderRequest, price float64) RiskCheckResult {
	equity := r.account.Equity()
	if !(equity > 0) {
		return RiskCheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("no equity available: %.2f", equity),
		}
	}

	orderValue := float64(req.Quantity) * price

	if r.config.MaxLeverage > 0 {
		limit := equity * r.config.MaxLeverage
		if orderValue > limit {
			return RiskCheckResult{
				Allowed: false,
				Reason:  fmt.Sprintf("insufficient margin: %.2f > %.2f", orderValue, limit),
			}
		}
	}

	if r.config.MaxPositionPct > 0 {
		positionPct := (orderValue / equity) * 100
		if positionPct > r.config.MaxPositionPct {
			return RiskCheckResult{
				Allowed: false,
				Reason:  fmt.Sprintf("position size too large: %.2f%% > %.2f%%", positionPct, r.config.MaxPositionPct),
			}
		}
	}

	return RiskCheckResult{
		Allowed: true,
		Reason:  "",
	}
}
