package backtest

import (
	"time"

	"github.com/christophzehentbauerz/trade/internal/broker"
	"github.com/christophzehentbauerz/trade/internal/strategy"
	"go.uber.org/zap"
)

// Options configures one evaluation run
type Options struct {
	Symbol   string
	Interval string
	Broker   broker.SimConfig
	Logger   *zap.Logger
}

// DefaultOptions returns options with the research broker defaults
func DefaultOptions() Options {
	return Options{
		Broker: broker.DefaultSimConfig(),
	}
}

// IntentRecord is an intent together with the bar that produced it
type IntentRecord struct {
	Bar    int             `json:"bar"`
	Time   time.Time       `json:"time"`
	Intent strategy.Intent `json:"intent"`
	// Rejected holds the broker's refusal, empty when accepted.
	Rejected string `json:"rejected,omitempty"`
}

// Result holds the complete backtest output
type Result struct {
	Strategy    string          `json:"strategy"`
	Description string          `json:"description"`
	Params      strategy.Params `json:"params"`
	Symbol      string          `json:"symbol,omitempty"`
	Interval    string          `json:"interval,omitempty"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	Bars        int             `json:"bars"`
	InitialCash float64         `json:"initial_cash"`

	Intents     []IntentRecord `json:"intents,omitempty"`
	Trades      []broker.Trade `json:"trades"`
	EquityCurve []float64      `json:"-"`

	CancelledOrders int   `json:"cancelled_orders"`
	RejectedIntents int   `json:"rejected_intents"`
	Stats           Stats `json:"stats"`
}

// Stats holds performance statistics
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`     // Percentage of profitable trades
	TotalReturn   float64 `json:"total_return"` // Net return percentage on initial cash
	MaxDrawdown   float64 `json:"max_drawdown"` // Largest peak-to-trough decline in percent, <= 0
	SharpeRatio   float64 `json:"sharpe_ratio"` // Risk-adjusted return (annualized)
	ProfitFactor  float64 `json:"profit_factor"`
	AvgTrade      float64 `json:"avg_trade"` // Mean trade return percentage
	BestTrade     float64 `json:"best_trade"`
	WorstTrade    float64 `json:"worst_trade"`
	Exposure      float64 `json:"exposure"` // Percentage of bars with an open position
	FinalEquity   float64 `json:"final_equity"`
	PeakEquity    float64 `json:"peak_equity"`
	Commissions   float64 `json:"commissions"`
}
