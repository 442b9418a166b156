// Package parquetfile stores bar series as Parquet files.
package parquetfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/christophzehentbauerz/trade/internal/collector"
	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/parquet-go/parquet-go"
)

// Bar is the on-disk row. Timestamp is the open time in Unix milliseconds.
type Bar struct {
	Timestamp int64   `parquet:"t"`
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    float64 `parquet:"v"`
}

// Store is a single Parquet bar file for one symbol
type Store struct {
	path string
}

// New creates a store for path
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Name() string {
	return "parquet"
}

// FetchHistory reads the file and returns the bars inside [start, end]
func (s *Store) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	rows, err := parquet.ReadFile[Bar](s.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })

	bars := make([]core.Bar, len(rows))
	for i, r := range rows {
		bars[i] = core.Bar{
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return collector.FilterRange(bars, start, end), nil
}

// WriteBars replaces the file with bars
func (s *Store) WriteBars(ctx context.Context, symbol string, bars []core.Bar) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}
	rows := make([]Bar, len(bars))
	for i, b := range bars {
		rows[i] = Bar{
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	if err := parquet.WriteFile(s.path, rows); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}
