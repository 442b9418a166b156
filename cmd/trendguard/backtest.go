package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/christophzehentbauerz/trade/internal/backtest"
	"github.com/christophzehentbauerz/trade/internal/config"
	"github.com/christophzehentbauerz/trade/internal/metrics"
	"github.com/christophzehentbauerz/trade/internal/optimize"
	"github.com/christophzehentbauerz/trade/internal/report"
	"github.com/christophzehentbauerz/trade/internal/storage/archive"
	"github.com/christophzehentbauerz/trade/internal/strategy"
	"github.com/christophzehentbauerz/trade/internal/strategy/trendguard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var (
	runPreset    string
	runSymbol    string
	runFrom      string
	runTo        string
	runNoArchive bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest of the configured strategy",
	Long:  "Run the strategy against historical bars and write a Markdown report of its performance",
	Args:  cobra.NoArgs,
	RunE:  runBacktest,
}

func init() {
	addRunFlags(backtestCmd)
	rootCmd.AddCommand(backtestCmd)
}

// addRunFlags registers the flags shared by backtest and optimize
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runPreset, "preset", "",
		fmt.Sprintf("parameter preset (%s), overrides strategy.preset", strings.Join(strategy.PresetNames(), ", ")))
	cmd.Flags().StringVar(&runSymbol, "symbol", "", "symbol, overrides data.symbol")
	cmd.Flags().StringVar(&runFrom, "from", "", "start date YYYY-MM-DD, overrides data.from")
	cmd.Flags().StringVar(&runTo, "to", "", "end date YYYY-MM-DD, overrides data.to")
	cmd.Flags().BoolVar(&runNoArchive, "no-archive", false, "do not archive the run")
}

// applyRunFlags folds the command line overrides into cfg and validates it
func applyRunFlags(cfg *config.Config) error {
	if runPreset != "" {
		cfg.Strategy.Preset = runPreset
	}
	if runSymbol != "" {
		cfg.Data.Symbol = runSymbol
	}
	if runFrom != "" {
		cfg.Data.From = runFrom
	}
	if runTo != "" {
		cfg.Data.To = runTo
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	if err := applyRunFlags(cfg); err != nil {
		return err
	}
	params, err := cfg.Strategy.Resolve()
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

	strat, err := rt.strategies().New(trendguard.Name, params)
	if err != nil {
		return err
	}

	rt.log.Info("starting backtest",
		zap.String("symbol", cfg.Data.Symbol),
		zap.String("interval", cfg.Data.Interval),
		zap.Stringer("params", params),
	)

	started := time.Now()
	bt := backtest.New(provider, backtest.Options{
		Broker: cfg.Backtest.SimConfig(),
		Logger: rt.log,
	})
	res, err := bt.Run(ctx, strat, cfg.Data.Symbol, cfg.Data.Interval, from, to)
	if err != nil {
		return err
	}

	constraints := cfg.Optimizer.OptimizeConfig().Constraints
	score, reason := optimize.Objective(res.Stats, constraints)
	if rt.metrics != nil {
		status := metrics.StatusAccepted
		if reason != "" {
			status = metrics.StatusRejected
		}
		rt.metrics.RecordEvaluation(status, time.Since(started).Seconds())
		for _, t := range res.Trades {
			rt.metrics.RecordTrade(t.Direction.String(), t.IsWin())
		}
	}

	printBacktest(cmd.OutOrStdout(), res, score, reason)

	renderer, err := report.New(language.English)
	if err != nil {
		return err
	}
	var md bytes.Buffer
	title := fmt.Sprintf("TrendGuard %s %s", res.Symbol, res.Interval)
	if err := renderer.Backtest(&md, title, res); err != nil {
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
	m, err := store.Save(ctx, archive.Run{
		Kind:     "backtest",
		Report:   res,
		Trades:   res.Trades,
		Markdown: md.Bytes(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nArchived as run %s\n", m.ID)
	return nil
}

func printBacktest(out io.Writer, res *backtest.Result, score float64, reason string) {
	s := res.Stats
	fmt.Fprintln(out, "=== TrendGuard Backtest ===")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Symbol:\t%s %s\n", res.Symbol, res.Interval)
	fmt.Fprintf(w, "Period:\t%s to %s (%d bars)\n", res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"), res.Bars)
	fmt.Fprintf(w, "Params:\t%s\n", res.Params)
	fmt.Fprintf(w, "Return:\t%+.2f%%\n", s.TotalReturn)
	fmt.Fprintf(w, "Max drawdown:\t%.2f%%\n", s.MaxDrawdown)
	fmt.Fprintf(w, "Trades:\t%d (win rate %.2f%%)\n", s.TotalTrades, s.WinRate)
	fmt.Fprintf(w, "Final equity:\t%.2f\n", s.FinalEquity)
	if reason != "" {
		fmt.Fprintf(w, "Score:\trejected, %s\n", reason)
	} else {
		fmt.Fprintf(w, "Score:\t%.3f\n", score)
	}
	w.Flush()
}
