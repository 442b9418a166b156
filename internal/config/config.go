package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/christophzehentbauerz/trade/internal/broker"
	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/optimize"
	"github.com/christophzehentbauerz/trade/internal/strategy"
	"github.com/spf13/viper"
)

// Data sources
const (
	SourceCSV        = "csv"
	SourceParquet    = "parquet"
	SourceBinance    = "binance"
	SourceClickHouse = "clickhouse"
)

// Archive storage types
const (
	StorageLocalFS = "localfs"
	StorageS3      = "s3"
)

type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Report    ReportConfig    `mapstructure:"report"`
}

// DataConfig selects where bars come from
type DataConfig struct {
	Source     string           `mapstructure:"source"`
	Path       string           `mapstructure:"path"` // csv and parquet files
	Symbol     string           `mapstructure:"symbol"`
	Interval   string           `mapstructure:"interval"`
	From       string           `mapstructure:"from"` // 2006-01-02 or RFC3339, empty for unbounded
	To         string           `mapstructure:"to"`
	Binance    BinanceConfig    `mapstructure:"binance"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
}

type BinanceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type ClickHouseConfig struct {
	Addr     []string `mapstructure:"addr"`
	Database string   `mapstructure:"database"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	Table    string   `mapstructure:"table"`
}

// BacktestConfig holds the simulated broker settings
type BacktestConfig struct {
	Cash            float64 `mapstructure:"cash"`
	Commission      float64 `mapstructure:"commission"`
	Margin          float64 `mapstructure:"margin"` // 1 / max leverage
	ExclusiveOrders bool    `mapstructure:"exclusive_orders"`
}

// StrategyConfig names a preset and the parameters overriding it
type StrategyConfig struct {
	Preset string             `mapstructure:"preset"`
	Params map[string]float64 `mapstructure:"params"`
}

type OptimizerConfig struct {
	Workers          int                  `mapstructure:"workers"`
	TopK             int                  `mapstructure:"top_k"`
	MinTrades        int                  `mapstructure:"min_trades"`
	MaxDrawdownFloor float64              `mapstructure:"max_drawdown_floor"`
	Grid             map[string][]float64 `mapstructure:"grid"`
}

type StorageConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// ReportConfig holds the markdown report settings
type ReportConfig struct {
	Output        string `mapstructure:"output"`
	IncludeTrades bool   `mapstructure:"include_trades"` // full trade list of the best optimizer run
}

// Load reads configuration from file on top of Defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix("TRENDGUARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns the research settings
func Defaults() *Config {
	opt := optimize.DefaultConfig()
	sim := broker.DefaultSimConfig()
	return &Config{
		Data: DataConfig{
			Source:   SourceCSV,
			Symbol:   "BTCUSDT",
			Interval: "1h",
			Binance: BinanceConfig{
				BaseURL: "https://api.binance.com",
			},
			ClickHouse: ClickHouseConfig{
				Addr:     []string{"localhost:9000"},
				Database: "default",
				Username: "default",
				Table:    "bars",
			},
		},
		Backtest: BacktestConfig{
			Cash:            sim.InitialCash,
			Commission:      sim.Commission,
			Margin:          1 / sim.Risk.MaxLeverage,
			ExclusiveOrders: sim.ExclusiveOrders,
		},
		Strategy: StrategyConfig{
			Preset: strategy.PresetFinalLowDrawdown,
		},
		Optimizer: OptimizerConfig{
			Workers:          opt.Workers,
			TopK:             opt.TopK,
			MinTrades:        opt.Constraints.MinTrades,
			MaxDrawdownFloor: opt.Constraints.MaxDrawdownFloor,
		},
		Storage: StorageConfig{
			Type: StorageLocalFS,
			Path: "archive",
		},
		Report: ReportConfig{
			Output:        "strategy_report.md",
			IncludeTrades: true,
		},
	}
}

// TimeRange parses From and To. A zero time means unbounded.
func (d DataConfig) TimeRange() (time.Time, time.Time, error) {
	from, err := parseTime(d.From)
	if err != nil {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("data.from: %w", err))
	}
	to, err := parseTime(d.To)
	if err != nil {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("data.to: %w", err))
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("data.to %s is not after data.from %s", d.To, d.From))
	}
	return from, to, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// SimConfig converts the backtest section into broker settings
func (b BacktestConfig) SimConfig() broker.SimConfig {
	sim := broker.DefaultSimConfig()
	sim.InitialCash = b.Cash
	sim.Commission = b.Commission
	sim.ExclusiveOrders = b.ExclusiveOrders
	if b.Margin > 0 {
		sim.Risk.MaxLeverage = 1 / b.Margin
	}
	return sim
}

// Resolve returns the preset with the overrides applied. Known names are
// applied in canonical order, then unknown names, which fail.
func (s StrategyConfig) Resolve() (strategy.Params, error) {
	p := strategy.DefaultParams()
	if s.Preset != "" {
		var err error
		if p, err = strategy.Preset(s.Preset); err != nil {
			return strategy.Params{}, err
		}
	}

	names := strategy.ParamNames()
	var rest []string
	for name := range s.Params {
		if !slices.Contains(names, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	for _, name := range append(names, rest...) {
		v, ok := s.Params[name]
		if !ok {
			continue
		}
		var err error
		if p, err = p.With(name, v); err != nil {
			return strategy.Params{}, err
		}
	}
	return p, p.Validate()
}

// OptimizeConfig converts the optimizer section
func (o OptimizerConfig) OptimizeConfig() optimize.Config {
	return optimize.Config{
		Workers: o.Workers,
		TopK:    o.TopK,
		Constraints: optimize.Constraints{
			MinTrades:        o.MinTrades,
			MaxDrawdownFloor: o.MaxDrawdownFloor,
		},
	}
}

// SearchGrid returns the configured grid, or the research grid when none is set
func (o OptimizerConfig) SearchGrid() optimize.Grid {
	if len(o.Grid) == 0 {
		return optimize.DefaultGrid()
	}
	return optimize.GridFromMap(o.Grid)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Data validation
	switch c.Data.Source {
	case SourceCSV, SourceParquet:
		if c.Data.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.path required for source %s", c.Data.Source))
		}
	case SourceBinance:
		if c.Data.Symbol == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("data.symbol required for source binance"))
		}
	case SourceClickHouse:
		if c.Data.Symbol == "" || len(c.Data.ClickHouse.Addr) == 0 || c.Data.ClickHouse.Table == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("data.symbol, data.clickhouse.addr and data.clickhouse.table required for source clickhouse"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown data source %q", c.Data.Source))
	}
	if _, _, err := c.Data.TimeRange(); err != nil {
		return err
	}

	// Backtest validation
	if c.Backtest.Margin <= 0 || c.Backtest.Margin > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("margin must be in (0, 1], got %f", c.Backtest.Margin))
	}
	if err := c.Backtest.SimConfig().Validate(); err != nil {
		return err
	}

	// Strategy validation
	if _, err := c.Strategy.Resolve(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	// Optimizer validation
	if c.Optimizer.Workers < 0 || c.Optimizer.TopK < 0 || c.Optimizer.MinTrades < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("optimizer workers, top_k and min_trades cannot be negative"))
	}
	if c.Optimizer.MaxDrawdownFloor > 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_drawdown_floor must be <= 0, got %f", c.Optimizer.MaxDrawdownFloor))
	}
	if err := c.Optimizer.SearchGrid().Validate(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	// Storage validation
	switch c.Storage.Type {
	case StorageLocalFS:
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.path required for localfs"))
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.s3.bucket required for s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("metrics.textfile required when metrics are enabled"))
	}

	return nil
}
