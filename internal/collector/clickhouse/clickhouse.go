// Package clickhouse reads and writes bars in a ClickHouse table keyed by
// symbol, interval and open time.
package clickhouse

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/christophzehentbauerz/trade/internal/core"
	"go.uber.org/zap"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds connection and table settings
type Config struct {
	Addr     []string
	Database string
	Username string
	Password string
	Table    string
	// Interval labels bars written through WriteBars
	Interval string
}

// Validate checks the settings before any connection is made
func (c Config) Validate() error {
	if len(c.Addr) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("clickhouse addr required"))
	}
	if !identifier.MatchString(c.Database) {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("invalid clickhouse database %q", c.Database))
	}
	if !identifier.MatchString(c.Table) {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("invalid clickhouse table %q", c.Table))
	}
	return nil
}

func (c Config) qualified() string {
	return c.Database + "." + c.Table
}

// Store implements collector.Provider and collector.Sink over ClickHouse
type Store struct {
	conn   ch.Conn
	cfg    Config
	logger *zap.Logger
}

// Open connects and pings the server
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := ch.Open(&ch.Options{
		Addr: cfg.Addr,
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: ch.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("clickhouse open: %w", err))
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("clickhouse ping: %w", err))
	}
	return &Store{conn: conn, cfg: cfg, logger: logger}, nil
}

func (s *Store) Name() string {
	return "clickhouse"
}

// Close closes the connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// SchemaDDL returns the statement creating the bar table. Rows are
// deduplicated on (symbol, interval, open_time_ms), newest version wins.
func SchemaDDL(cfg Config) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	symbol String,
	interval LowCardinality(String),
	open_time_ms UInt64,
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	volume Float64,
	version UInt64
)
ENGINE = ReplacingMergeTree(version)
ORDER BY (symbol, interval, open_time_ms)`, cfg.qualified())
}

// EnsureSchema creates the database and table if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.cfg.Database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	if err := s.conn.Exec(ctx, SchemaDDL(s.cfg)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// selectQuery builds the range query and its arguments. Zero bounds are
// left open.
func selectQuery(cfg Config, symbol, interval string, start, end time.Time) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT open_time_ms, open, high, low, close, volume FROM %s FINAL WHERE symbol = ? AND interval = ?", cfg.qualified())
	args := []any{symbol, interval}
	if !start.IsZero() {
		b.WriteString(" AND open_time_ms >= ?")
		args = append(args, uint64(start.UnixMilli()))
	}
	if !end.IsZero() {
		b.WriteString(" AND open_time_ms <= ?")
		args = append(args, uint64(end.UnixMilli()))
	}
	b.WriteString(" ORDER BY open_time_ms")
	return b.String(), args
}

// FetchHistory selects the bars of symbol and interval inside [start, end]
func (s *Store) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	if interval == "" {
		interval = s.cfg.Interval
	}
	query, args := selectQuery(s.cfg, symbol, interval, start, end)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query: %w", err)
	}
	defer rows.Close()

	var bars []core.Bar
	for rows.Next() {
		var (
			openMs uint64
			bar    core.Bar
		)
		if err := rows.Scan(&openMs, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		bar.Time = time.UnixMilli(int64(openMs)).UTC()
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse rows: %w", err)
	}
	return bars, nil
}

// WriteBars inserts bars under the configured interval in one batch
func (s *Store) WriteBars(ctx context.Context, symbol string, bars []core.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	if s.cfg.Interval == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("clickhouse interval required for writes"))
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", s.cfg.qualified()))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	version := uint64(time.Now().UnixNano())
	for _, b := range bars {
		if err := batch.Append(
			symbol, s.cfg.Interval,
			uint64(b.Time.UnixMilli()),
			b.Open, b.High, b.Low, b.Close,
			b.Volume,
			version,
		); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}

	s.logger.Info("bars written",
		zap.String("table", s.cfg.qualified()),
		zap.String("symbol", symbol),
		zap.String("interval", s.cfg.Interval),
		zap.Int("bars", len(bars)),
	)
	return nil
}
