// Package optimize grid-searches strategy parameters for the best
// risk-adjusted return under hard constraints.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/christophzehentbauerz/trade/internal/backtest"
	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/metrics"
	"github.com/christophzehentbauerz/trade/internal/strategy"
	"github.com/christophzehentbauerz/trade/internal/strategy/trendguard"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds optimizer settings
type Config struct {
	Workers     int         `mapstructure:"workers" json:"workers"`
	TopK        int         `mapstructure:"top_k" json:"top_k"`
	Constraints Constraints `mapstructure:",squash" json:"constraints"`
}

// DefaultConfig uses one worker per CPU and keeps the top 5
func DefaultConfig() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		TopK:        5,
		Constraints: DefaultConstraints(),
	}
}

// Evaluation is the outcome of one grid point
type Evaluation struct {
	Index    int             `json:"index"`
	Settings Combination     `json:"settings"`
	Params   strategy.Params `json:"params"`
	Score    float64         `json:"score"`
	Accepted bool            `json:"accepted"`
	Reason   string          `json:"reason,omitempty"`
	Stats    backtest.Stats  `json:"stats"`
}

// Report is the ranked outcome of an optimizer run
type Report struct {
	Strategy    string          `json:"strategy"`
	Symbol      string          `json:"symbol,omitempty"`
	Interval    string          `json:"interval,omitempty"`
	Bars        int             `json:"bars"`
	Base        strategy.Params `json:"base"`
	Grid        Grid            `json:"grid"`
	Constraints Constraints     `json:"constraints"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`

	// Evaluations holds every grid point, best first. Ties keep grid order.
	Evaluations []Evaluation `json:"evaluations"`
	Accepted    int          `json:"accepted"`
	Top         []Evaluation `json:"top"`
	// Best is the highest scoring accepted evaluation, nil when none passed.
	Best       *Evaluation      `json:"best,omitempty"`
	BestResult *backtest.Result `json:"best_result,omitempty"`
}

// Optimizer evaluates every grid point on its own simulated broker
type Optimizer struct {
	config  Config
	opts    backtest.Options
	name    string
	factory strategy.Factory
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New creates an optimizer for the trendguard strategy
func New(cfg Config, opts backtest.Options, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.TopK < 1 {
		cfg.TopK = DefaultConfig().TopK
	}
	return &Optimizer{
		config:  cfg,
		opts:    opts,
		name:    trendguard.Name,
		factory: trendguard.Factory,
		logger:  logger,
	}
}

// WithMetrics records evaluation metrics into reg
func (o *Optimizer) WithMetrics(reg *metrics.Registry) *Optimizer {
	o.metrics = reg
	return o
}

// WithStrategy swaps the strategy under search
func (o *Optimizer) WithStrategy(name string, f strategy.Factory) *Optimizer {
	o.name = name
	o.factory = f
	return o
}

// Run evaluates base with every combination of grid applied and ranks the
// results. Only cancellation aborts a run; a failing grid point is kept in
// the report as rejected.
func (o *Optimizer) Run(ctx context.Context, bars []core.Bar, base strategy.Params, grid Grid) (*Report, error) {
	started := time.Now()
	report, err := o.run(ctx, bars, base, grid)
	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.RecordOptimization(status, time.Since(started).Seconds())
	}
	return report, err
}

func (o *Optimizer) run(ctx context.Context, bars []core.Bar, base strategy.Params, grid Grid) (*Report, error) {
	started := time.Now()
	if len(bars) == 0 {
		return nil, core.ErrNoData
	}
	if err := core.ValidateBars(bars); err != nil {
		return nil, err
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	combos := grid.Combinations()
	params := make([]strategy.Params, len(combos))
	for i, c := range combos {
		p, err := Apply(base, c)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("grid point %d (%s): %w", i, c, err)
		}
		params[i] = p
	}

	o.logger.Info("optimization started",
		zap.String("strategy", o.name),
		zap.Int("bars", len(bars)),
		zap.Int("combinations", len(combos)),
		zap.Int("workers", o.config.Workers),
	)

	evals := make([]Evaluation, len(combos))
	results := make([]*backtest.Result, len(combos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)
	for i := range combos {
		i := i
		g.Go(func() error {
			ev, res, err := o.evaluate(gctx, bars, i, combos[i], params[i])
			if err != nil {
				return err
			}
			evals[i] = ev
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]Evaluation, len(evals))
	copy(ranked, evals)
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})

	report := &Report{
		Strategy:    o.name,
		Symbol:      o.opts.Symbol,
		Interval:    o.opts.Interval,
		Bars:        len(bars),
		Base:        base,
		Grid:        grid,
		Constraints: o.config.Constraints,
		StartedAt:   started,
		Evaluations: ranked,
		Top:         ranked[:min(o.config.TopK, len(ranked))],
	}
	for i := range ranked {
		if !ranked[i].Accepted {
			continue
		}
		report.Accepted++
		if report.Best == nil {
			report.Best = &ranked[i]
			report.BestResult = results[ranked[i].Index]
		}
	}
	report.Duration = time.Since(started)

	if report.Best == nil {
		o.logger.Warn("optimization finished without an accepted configuration",
			zap.Int("combinations", len(ranked)),
			zap.Duration("duration", report.Duration),
		)
		return report, nil
	}

	o.logger.Info("optimization finished",
		zap.Int("combinations", len(ranked)),
		zap.Int("accepted", report.Accepted),
		zap.Float64("best_score", report.Best.Score),
		zap.Stringer("best_params", report.Best.Params),
		zap.Float64("best_return", report.Best.Stats.TotalReturn),
		zap.Float64("best_drawdown", report.Best.Stats.MaxDrawdown),
		zap.Duration("duration", report.Duration),
	)
	if o.metrics != nil {
		o.metrics.SetBestScore(report.Best.Score)
		for _, t := range report.BestResult.Trades {
			o.metrics.RecordTrade(t.Direction.String(), t.IsWin())
		}
	}
	return report, nil
}

// evaluate runs one grid point. Only context errors are returned.
func (o *Optimizer) evaluate(ctx context.Context, bars []core.Bar, index int, c Combination, p strategy.Params) (Evaluation, *backtest.Result, error) {
	if o.metrics != nil {
		o.metrics.InFlightInc()
		defer o.metrics.InFlightDec()
	}
	began := time.Now()
	ev := Evaluation{Index: index, Settings: c, Params: p, Score: RejectedScore}
	status := metrics.StatusFailed

	defer func() {
		if o.metrics != nil {
			o.metrics.RecordEvaluation(status, time.Since(began).Seconds())
		}
	}()

	strat, err := o.factory(p, o.logger.With(zap.Int("grid_index", index)))
	if err != nil {
		ev.Reason = err.Error()
		o.logger.Info("evaluation failed", zap.Int("index", index), zap.Stringer("params", p), zap.Error(err))
		return ev, nil, nil
	}

	opts := o.opts
	opts.Logger = o.logger.With(zap.Int("grid_index", index))
	res, err := backtest.Evaluate(ctx, bars, strat, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ev, nil, err
		}
		ev.Reason = err.Error()
		o.logger.Info("evaluation failed", zap.Int("index", index), zap.Stringer("params", p), zap.Error(err))
		return ev, nil, nil
	}

	ev.Stats = res.Stats
	ev.Score, ev.Reason = Objective(res.Stats, o.config.Constraints)
	ev.Accepted = ev.Reason == ""
	if ev.Accepted {
		status = metrics.StatusAccepted
	} else {
		status = metrics.StatusRejected
		o.logger.Info("configuration rejected",
			zap.Int("index", index),
			zap.Stringer("params", p),
			zap.String("reason", ev.Reason),
		)
	}
	return ev, res, nil
}
