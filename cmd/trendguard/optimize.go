package main

import (
	"bytes"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/christophzehentbauerz/trade/internal/backtest"
	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/optimize"
	"github.com/christophzehentbauerz/trade/internal/report"
	"github.com/christophzehentbauerz/trade/internal/storage/archive"
	"github.com/christophzehentbauerz/trade/internal/strategy/trendguard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var optimizeWorkers int

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Grid search the strategy parameters",
	Long: `Backtest every combination of the configured parameter grid, reject runs
with too few trades or too deep a drawdown, and rank the rest by return over
drawdown.`,
	Args: cobra.NoArgs,
	RunE: runOptimize,
}

func init() {
	addRunFlags(optimizeCmd)
	optimizeCmd.Flags().IntVar(&optimizeWorkers, "workers", 0, "concurrent evaluations, overrides optimizer.workers")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	if optimizeWorkers > 0 {
		cfg.Optimizer.Workers = optimizeWorkers
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}
	base, err := cfg.Strategy.Resolve()
	if err != nil {
		return err
	}
	from, to, err := cfg.Data.TimeRange()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	provider, closeProvider, err := rt.provider(ctx)
	if err != nil {
		return err
	}
	defer closeProvider()

	bars, err := provider.FetchHistory(ctx, cfg.Data.Symbol, from, to, cfg.Data.Interval)
	if err != nil {
		return core.WrapError(core.ErrProviderFailed, err)
	}
	if len(bars) == 0 {
		return core.ErrNoData
	}

	factory, ok := rt.strategies().Get(trendguard.Name)
	if !ok {
		return fmt.Errorf("strategy %s not registered", trendguard.Name)
	}
	opt := optimize.New(cfg.Optimizer.OptimizeConfig(), backtest.Options{
		Symbol:   cfg.Data.Symbol,
		Interval: cfg.Data.Interval,
		Broker:   cfg.Backtest.SimConfig(),
		Logger:   rt.log,
	}, rt.log).WithStrategy(trendguard.Name, factory)
	if rt.metrics != nil {
		opt = opt.WithMetrics(rt.metrics)
	}

	rep, err := opt.Run(ctx, bars, base, cfg.Optimizer.SearchGrid())
	if err != nil {
		return err
	}

	printOptimization(cmd.OutOrStdout(), rep)

	renderer, err := report.New(language.English)
	if err != nil {
		return err
	}
	var md bytes.Buffer
	title := fmt.Sprintf("TrendGuard %s %s", cfg.Data.Symbol, cfg.Data.Interval)
	if err := renderer.Optimization(&md, title, rep, cfg.Report.IncludeTrades); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	if err := rt.writeReport(md.Bytes()); err != nil {
		return err
	}

	if runNoArchive {
		return nil
	}
	store, err := rt.archive()
	if err != nil {
		return err
	}
	run := archive.Run{
		Kind:     "optimize",
		Report:   rep,
		Markdown: md.Bytes(),
	}
	if rep.BestResult != nil {
		run.Trades = rep.BestResult.Trades
	}
	m, err := store.Save(ctx, run)
	if err != nil {
		return err
	}
	rt.log.Debug("optimization archived", zap.String("id", m.ID))
	fmt.Fprintf(cmd.OutOrStdout(), "\nArchived as run %s\n", m.ID)
	return nil
}

func printOptimization(out io.Writer, rep *optimize.Report) {
	fmt.Fprintln(out, "=== TrendGuard Optimization ===")
	fmt.Fprintf(out, "%d configurations, %d accepted, %s\n\n", len(rep.Evaluations), rep.Accepted, rep.Duration.Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSETTINGS\tSCORE\tRETURN\tMAX DD\tTRADES\tSTATUS")
	for i, e := range rep.Top {
		status := "accepted"
		if !e.Accepted {
			status = e.Reason
		}
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%+.2f%%\t%.2f%%\t%d\t%s\n",
			i+1, e.Settings, e.Score, e.Stats.TotalReturn, e.Stats.MaxDrawdown, e.Stats.TotalTrades, status)
	}
	w.Flush()

	if rep.Best == nil {
		fmt.Fprintln(out, "\nNo configuration met the constraints.")
		return
	}
	fmt.Fprintf(out, "\nBest: %s\n", rep.Best.Params)
}
