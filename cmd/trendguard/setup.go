package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/christophzehentbauerz/trade/internal/collector"
	"github.com/christophzehentbauerz/trade/internal/collector/binance"
	"github.com/christophzehentbauerz/trade/internal/collector/clickhouse"
	"github.com/christophzehentbauerz/trade/internal/collector/csvfile"
	"github.com/christophzehentbauerz/trade/internal/collector/parquetfile"
	"github.com/christophzehentbauerz/trade/internal/config"
	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/logger"
	"github.com/christophzehentbauerz/trade/internal/metrics"
	"github.com/christophzehentbauerz/trade/internal/storage/archive"
	"github.com/christophzehentbauerz/trade/internal/strategy"
	"github.com/christophzehentbauerz/trade/internal/strategy/trendguard"
	"go.uber.org/zap"
)

// env is the state shared by every command
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Registry // nil unless metrics are enabled
}

// setup builds the logger and loads the configuration. Without --config the
// defaults are used.
func setup() (*env, error) {
	level := "info"
	if debug {
		level = "debug"
	}
	log, err := logger.NewAtLevel(debug, level)
	if err != nil {
		return nil, err
	}

	cfg := config.Defaults()
	if cfgFile != "" {
		if cfg, err = config.Load(cfgFile); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		log.Warn("no config file specified, using defaults")
	}

	rt := &env{cfg: cfg, log: log}
	if cfg.Metrics.Enabled {
		rt.metrics = metrics.NewRegistry()
	}
	return rt, nil
}

func (rt *env) close() {
	if rt.metrics != nil && rt.cfg.Metrics.Textfile != "" {
		if err := rt.metrics.WriteTextfile(rt.cfg.Metrics.Textfile); err != nil {
			rt.log.Warn("writing metrics", zap.Error(err))
		} else {
			rt.log.Debug("metrics written", zap.String("path", rt.cfg.Metrics.Textfile))
		}
	}
	_ = rt.log.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// providers registers every bar source the configuration can select. The
// ClickHouse store connects on open, so it is only registered when selected.
func (rt *env) providers(ctx context.Context) (*collector.Registry, func(), error) {
	d := rt.cfg.Data
	reg := collector.NewRegistry()
	reg.Register(csvfile.New(d.Path))
	reg.Register(parquetfile.New(d.Path))
	reg.Register(binance.NewWithBaseURL(d.Binance.BaseURL, rt.log))

	closer := func() {}
	if d.Source == config.SourceClickHouse {
		store, err := clickhouse.Open(ctx, rt.clickhouseConfig(), rt.log)
		if err != nil {
			return nil, nil, core.WrapError(core.ErrProviderFailed, err)
		}
		reg.Register(store)
		closer = func() {
			if err := store.Close(); err != nil {
				rt.log.Warn("closing clickhouse", zap.Error(err))
			}
		}
	}
	return reg, closer, nil
}

// provider returns the configured bar source, wrapped with fetch logging
// and, when enabled, fetch metrics
func (rt *env) provider(ctx context.Context) (collector.Provider, func(), error) {
	reg, closer, err := rt.providers(ctx)
	if err != nil {
		return nil, nil, err
	}
	p, ok := reg.Get(rt.cfg.Data.Source)
	if !ok {
		closer()
		return nil, nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown data source %q, have %v", rt.cfg.Data.Source, reg.Names()))
	}

	p = metrics.LoggingProvider(rt.log, p)
	if rt.metrics != nil {
		p = metrics.InstrumentProvider(rt.metrics, p)
	}
	return p, closer, nil
}

func (rt *env) clickhouseConfig() clickhouse.Config {
	c := rt.cfg.Data.ClickHouse
	return clickhouse.Config{
		Addr:     c.Addr,
		Database: c.Database,
		Username: c.Username,
		Password: c.Password,
		Table:    c.Table,
		Interval: rt.cfg.Data.Interval,
	}
}

// strategies lists the strategies the commands can run
func (rt *env) strategies() *strategy.Registry {
	reg := strategy.NewRegistry(rt.log)
	reg.Register(trendguard.Name, trendguard.Factory)
	return reg
}

func (rt *env) archive() (*archive.ResultStore, error) {
	s := rt.cfg.Storage
	store, err := archive.New(archive.Config{
		Type: s.Type,
		Path: s.Path,
		S3: archive.S3Config{
			Bucket:    s.S3.Bucket,
			Endpoint:  s.S3.Endpoint,
			Region:    s.S3.Region,
			AccessKey: s.S3.AccessKey,
			SecretKey: s.S3.SecretKey,
			Prefix:    s.S3.Prefix,
		},
	})
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	return archive.NewResultStore(store, rt.log), nil
}

// writeReport writes the rendered report to the configured output file
func (rt *env) writeReport(markdown []byte) error {
	out := rt.cfg.Report.Output
	if out == "" {
		return nil
	}
	if err := os.WriteFile(out, markdown, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	rt.log.Info("report written", zap.String("path", out))
	return nil
}
