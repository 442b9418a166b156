package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestLoad_FromFile(t *testing.T) {
	cfgPath := writeConfig(t, `
data:
  source: parquet
  path: "data/BTCUSDT_1h.parquet"
  from: "2021-01-01"

backtest:
  cash: 250000

strategy:
  preset: risk_managed
  params:
    atr_multiplier: 5

optimizer:
  workers: 2
  grid:
    risk_per_trade: [0.01, 0.02]
    ma_period: [200]

storage:
  type: localfs
  path: "/tmp/trendguard/runs"
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, SourceParquet, cfg.Data.Source)
	assert.Equal(t, "BTCUSDT", cfg.Data.Symbol, "defaults survive")
	assert.Equal(t, 250000.0, cfg.Backtest.Cash)
	assert.Equal(t, 0.001, cfg.Backtest.Commission)
	assert.Equal(t, 2, cfg.Optimizer.Workers)
	assert.Equal(t, 5, cfg.Optimizer.TopK)
	assert.Equal(t, StorageLocalFS, cfg.Storage.Type)
	require.NoError(t, cfg.Validate())

	p, err := cfg.Strategy.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 200, p.TrendWindow)
	assert.Equal(t, 5.0, p.ATRMultiplier)
	assert.Equal(t, 0.02, p.RiskFraction)

	grid := cfg.Optimizer.SearchGrid()
	require.Len(t, grid, 2)
	assert.Equal(t, strategy.ParamRiskFraction, grid[0].Name)
	assert.Equal(t, []float64{0.01, 0.02}, grid[0].Values)
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TG_TEST_BUCKET", "research-runs")
	cfgPath := writeConfig(t, `
storage:
  type: s3
  s3:
    bucket: "${TG_TEST_BUCKET}"
`)

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "research-runs", cfg.Storage.S3.Bucket)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 10_000_000.0, cfg.Backtest.Cash)
	assert.Equal(t, 1.0, cfg.Backtest.Margin)
	assert.True(t, cfg.Backtest.ExclusiveOrders)
	assert.Equal(t, 10, cfg.Optimizer.MinTrades)
	assert.Equal(t, -20.0, cfg.Optimizer.MaxDrawdownFloor)
	assert.Equal(t, 72, cfg.Optimizer.SearchGrid().Size())

	p, err := cfg.Strategy.Resolve()
	require.NoError(t, err)
	assert.Equal(t, strategy.DefaultParams(), p)
}

func TestBacktestConfig_SimConfig(t *testing.T) {
	sim := BacktestConfig{Cash: 5000, Commission: 0.002, Margin: 0.5, ExclusiveOrders: true}.SimConfig()
	assert.Equal(t, 5000.0, sim.InitialCash)
	assert.Equal(t, 0.002, sim.Commission)
	assert.Equal(t, 2.0, sim.Risk.MaxLeverage)
	assert.True(t, sim.ExclusiveOrders)
}

func TestStrategyConfig_Resolve(t *testing.T) {
	_, err := StrategyConfig{Preset: "aggressive"}.Resolve()
	assert.True(t, errors.Is(err, core.ErrUnknownPreset))

	_, err = StrategyConfig{Params: map[string]float64{"lookback": 3}}.Resolve()
	assert.True(t, errors.Is(err, core.ErrInvalidParams))

	_, err = StrategyConfig{Params: map[string]float64{strategy.ParamRiskFraction: 2}}.Resolve()
	assert.True(t, errors.Is(err, core.ErrInvalidParams))
}

func TestDataConfig_TimeRange(t *testing.T) {
	from, to, err := DataConfig{From: "2021-01-01", To: "2022-06-01T12:00:00Z"}.TimeRange()
	require.NoError(t, err)
	assert.Equal(t, 2021, from.Year())
	assert.Equal(t, 12, to.Hour())

	from, to, err = DataConfig{}.TimeRange()
	require.NoError(t, err)
	assert.True(t, from.IsZero() && to.IsZero())

	_, _, err = DataConfig{From: "2022-01-01", To: "2021-01-01"}.TimeRange()
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, _, err = DataConfig{From: "last tuesday"}.TimeRange()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Data.Path = "bars.csv"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "csv without path", mutate: func(c *Config) { c.Data.Path = "" }, wantErr: true},
		{name: "unknown source", mutate: func(c *Config) { c.Data.Source = "ftp" }, wantErr: true},
		{name: "binance without symbol", mutate: func(c *Config) { c.Data.Source = SourceBinance; c.Data.Symbol = "" }, wantErr: true},
		{name: "clickhouse", mutate: func(c *Config) { c.Data.Source = SourceClickHouse }},
		{name: "zero cash", mutate: func(c *Config) { c.Backtest.Cash = 0 }, wantErr: true},
		{name: "margin above one", mutate: func(c *Config) { c.Backtest.Margin = 2 }, wantErr: true},
		{name: "bad strategy param", mutate: func(c *Config) {
			c.Strategy.Params = map[string]float64{strategy.ParamTrendWindow: 0}
		}, wantErr: true},
		{name: "positive drawdown floor", mutate: func(c *Config) { c.Optimizer.MaxDrawdownFloor = 5 }, wantErr: true},
		{name: "bad grid", mutate: func(c *Config) {
			c.Optimizer.Grid = map[string][]float64{"lookback": {1}}
		}, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Type = StorageS3 }, wantErr: true},
		{name: "metrics without textfile", mutate: func(c *Config) { c.Metrics.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
