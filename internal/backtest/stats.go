package backtest

import (
	"math"

	"github.com/christophzehentbauerz/trade/internal/broker"
)

// CalculateStats computes performance statistics from the closed trades and
// the per-bar equity curve.
func CalculateStats(trades []broker.Trade, equity []float64, initialCash float64) Stats {
	stats := Stats{
		FinalEquity: initialCash,
		PeakEquity:  initialCash,
	}
	if n := len(equity); n > 0 {
		stats.FinalEquity = equity[n-1]
		for _, e := range equity {
			stats.PeakEquity = math.Max(stats.PeakEquity, e)
		}
	}
	if initialCash > 0 {
		stats.TotalReturn = (stats.FinalEquity - initialCash) / initialCash * 100
	}
	stats.MaxDrawdown = -calculateMaxDrawdown(initialCash, equity) * 100

	if len(trades) == 0 {
		return stats
	}

	var grossProfit, grossLoss, sumReturn float64
	var heldBars int
	returns := make([]float64, 0, len(trades))
	stats.BestTrade = math.Inf(-1)
	stats.WorstTrade = math.Inf(1)

	for _, t := range trades {
		r := t.ReturnPct()
		returns = append(returns, r/100)
		sumReturn += r
		stats.BestTrade = math.Max(stats.BestTrade, r)
		stats.WorstTrade = math.Min(stats.WorstTrade, r)
		stats.Commissions += t.Commission
		heldBars += t.Bars() + 1

		if t.IsWin() {
			stats.WinningTrades++
			grossProfit += t.PnL
		} else {
			stats.LosingTrades++
			grossLoss -= t.PnL
		}
	}

	stats.TotalTrades = len(trades)
	stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	stats.AvgTrade = sumReturn / float64(stats.TotalTrades)
	stats.SharpeRatio = calculateSharpeRatio(returns)

	switch {
	case grossLoss > 0:
		stats.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		// no losing trades; kept finite so results stay JSON-encodable
		stats.ProfitFactor = math.MaxFloat64
	}

	if len(equity) > 0 {
		stats.Exposure = math.Min(float64(heldBars)/float64(len(equity))*100, 100)
	}

	return stats
}

// calculateMaxDrawdown finds the largest peak-to-trough decline of the
// equity curve as a positive fraction
func calculateMaxDrawdown(initialCash float64, equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	var maxDD float64
	peak := initialCash

	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (peak - e) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0 for simplicity
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	// Calculate mean return
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	// Calculate standard deviation
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if stdDev == 0 {
		return 0
	}

	// Annualize (assuming ~252 trading days)
	annualizedReturn := mean * 252
	annualizedStdDev := stdDev * math.Sqrt(252)

	return annualizedReturn / annualizedStdDev
}
