package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/christophzehentbauerz/trade/internal/broker"
	"github.com/christophzehentbauerz/trade/internal/collector"
	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/strategy"
	"go.uber.org/zap"
)

// paramsProvider is implemented by strategies that expose their parameters
type paramsProvider interface {
	Params() strategy.Params
}

// Evaluate runs strat over bars on a fresh simulated broker.
//
// Each bar the broker fills pending orders and checks stops first, then the
// strategy sees the bar's close and its intents are queued for the next
// bar. Open positions are closed at the last close.
func Evaluate(ctx context.Context, bars []core.Bar, strat strategy.Strategy, opts Options) (*Result, error) {
	if err := core.ValidateBars(bars); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := strat.Init(bars); err != nil {
		return nil, core.WrapError(core.ErrEvaluationFail, fmt.Errorf("init %s: %w", strat.Name(), err))
	}

	sim, err := broker.NewSimBroker(opts.Broker, logger)
	if err != nil {
		return nil, err
	}
	exec := broker.NewExecutor(sim, logger)

	var records []IntentRecord

	for i, bar := range bars {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		sim.OnBar(i, bar)

		intents := strat.Next(strategy.Snapshot{
			Index:    i,
			Bar:      bar,
			Equity:   sim.Equity(),
			Position: sim.Position(),
		})
		for _, res := range exec.Execute(intents) {
			rec := IntentRecord{Bar: i, Time: bar.Time, Intent: res.Intent}
			if res.Err != nil {
				rec.Rejected = res.Err.Error()
			}
			records = append(records, rec)
		}
	}

	sim.Finish()

	trades := sim.Trades()
	equity := sim.EquityCurve()
	initialCash := opts.Broker.InitialCash

	result := &Result{
		Strategy:        strat.Name(),
		Description:     strat.Description(),
		Symbol:          opts.Symbol,
		Interval:        opts.Interval,
		StartDate:       bars[0].Time,
		EndDate:         bars[len(bars)-1].Time,
		Bars:            len(bars),
		InitialCash:     initialCash,
		Intents:         records,
		Trades:          trades,
		EquityCurve:     equity,
		CancelledOrders: sim.CancelledOrders(),
		RejectedIntents: exec.Rejected(),
		Stats:           CalculateStats(trades, equity, initialCash),
	}
	if pp, ok := strat.(paramsProvider); ok {
		result.Params = pp.Params()
	}
	return result, nil
}

// Backtester runs strategy backtests against historical data
type Backtester struct {
	provider collector.Provider
	opts     Options
}

// New creates a new Backtester with the given bar provider
func New(provider collector.Provider, opts Options) *Backtester {
	return &Backtester{
		provider: provider,
		opts:     opts,
	}
}

// Run fetches bars for symbol over the specified time range and evaluates strat
func (b *Backtester) Run(ctx context.Context, strat strategy.Strategy, symbol, interval string, start, end time.Time) (*Result, error) {
	bars, err := b.provider.FetchHistory(ctx, symbol, start, end, interval)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	if len(bars) == 0 {
		return nil, core.ErrNoData
	}

	opts := b.opts
	opts.Symbol = symbol
	opts.Interval = interval
	return Evaluate(ctx, bars, strat, opts)
}
