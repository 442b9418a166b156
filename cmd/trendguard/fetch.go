package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/christophzehentbauerz/trade/internal/collector"
	"github.com/christophzehentbauerz/trade/internal/collector/binance"
	"github.com/christophzehentbauerz/trade/internal/collector/clickhouse"
	"github.com/christophzehentbauerz/trade/internal/collector/csvfile"
	"github.com/christophzehentbauerz/trade/internal/collector/parquetfile"
	"github.com/christophzehentbauerz/trade/internal/config"
	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fetchSymbol   string
	fetchInterval string
	fetchFrom     string
	fetchTo       string
	fetchOut      string
	fetchFormat   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download exchange history",
	Long: `Download klines from Binance and store them as CSV, Parquet or in the
configured ClickHouse table. The format defaults to the extension of --out.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSymbol, "symbol", "", "symbol such as BTC/USDT, overrides data.symbol")
	fetchCmd.Flags().StringVar(&fetchInterval, "interval", "", "kline interval, overrides data.interval")
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "start date YYYY-MM-DD, overrides data.from")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "end date YYYY-MM-DD, overrides data.to")
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "", "output file for csv and parquet")
	fetchCmd.Flags().StringVar(&fetchFormat, "format", "", "csv, parquet or clickhouse")

	rootCmd.AddCommand(fetchCmd)
}

// sinkFormat picks the output format from the flag or the file extension
func sinkFormat(format, out string) (string, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(out)) {
		case ".parquet":
			format = config.SourceParquet
		case ".csv", ".txt":
			format = config.SourceCSV
		default:
			return "", core.WrapError(core.ErrConfigMissing, fmt.Errorf("cannot infer format from %q, use --format", out))
		}
	}
	switch format {
	case config.SourceCSV, config.SourceParquet:
		if out == "" {
			return "", core.WrapError(core.ErrConfigMissing, fmt.Errorf("--out required for %s", format))
		}
	case config.SourceClickHouse:
	default:
		return "", core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown format %q", format))
	}
	return format, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()
	cfg := rt.cfg

	if fetchSymbol != "" {
		cfg.Data.Symbol = fetchSymbol
	}
	if fetchInterval != "" {
		cfg.Data.Interval = fetchInterval
	}
	if fetchFrom != "" {
		cfg.Data.From = fetchFrom
	}
	if fetchTo != "" {
		cfg.Data.To = fetchTo
	}

	symbol := binance.NormalizeSymbol(cfg.Data.Symbol, "USDT")
	if err := binance.ValidateSymbol(symbol); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}
	from, to, err := cfg.Data.TimeRange()
	if err != nil {
		return err
	}
	format, err := sinkFormat(fetchFormat, fetchOut)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	sink, closeSink, err := rt.sink(ctx, format, fetchOut)
	if err != nil {
		return err
	}
	defer closeSink()

	var src collector.Provider = binance.NewWithBaseURL(cfg.Data.Binance.BaseURL, rt.log)
	src = metrics.LoggingProvider(rt.log, src)
	if rt.metrics != nil {
		src = metrics.InstrumentProvider(rt.metrics, src)
	}

	bars, err := src.FetchHistory(ctx, symbol, from, to, cfg.Data.Interval)
	if err != nil {
		return core.WrapError(core.ErrProviderFailed, err)
	}
	if len(bars) == 0 {
		return core.ErrNoData
	}
	if err := sink.WriteBars(ctx, symbol, bars); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}

	rt.log.Info("history stored",
		zap.String("symbol", symbol),
		zap.String("format", format),
		zap.Int("bars", len(bars)),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %d %s bars of %s (%s to %s)\n", len(bars), cfg.Data.Interval, symbol,
		bars[0].Time.UTC().Format(csvfile.TimeLayout), bars[len(bars)-1].Time.UTC().Format(csvfile.TimeLayout))
	return nil
}

// sink opens the store the downloaded bars are written to
func (rt *env) sink(ctx context.Context, format, out string) (collector.Sink, func(), error) {
	switch format {
	case config.SourceParquet:
		return parquetfile.New(out), func() {}, nil
	case config.SourceClickHouse:
		store, err := clickhouse.Open(ctx, rt.clickhouseConfig(), rt.log)
		if err != nil {
			return nil, nil, core.WrapError(core.ErrStorageFailed, err)
		}
		closer := func() {
			if err := store.Close(); err != nil {
				rt.log.Warn("closing clickhouse", zap.Error(err))
			}
		}
		if err := store.EnsureSchema(ctx); err != nil {
			closer()
			return nil, nil, core.WrapError(core.ErrStorageFailed, err)
		}
		return store, closer, nil
	default:
		return csvfile.New(out), func() {}, nil
	}
}
