// Package binance downloads historical klines from the Binance spot API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/christophzehentbauerz/trade/internal/core"
	"go.uber.org/zap"
)

const (
	baseURL = "https://api.binance.com"

	// PageLimit is the most klines Binance returns per request
	PageLimit = 1000
)

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// Binance implements collector.Provider for Binance spot klines
type Binance struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger

	limit int
	pause time.Duration
}

// New creates a new Binance provider
func New(logger *zap.Logger) *Binance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binance{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		logger:  logger,
		limit:   PageLimit,
		pause:   100 * time.Millisecond,
	}
}

// NewWithBaseURL creates a Binance provider with custom base URL (for testing)
func NewWithBaseURL(url string, logger *zap.Logger) *Binance {
	b := New(logger)
	if url != "" {
		b.baseURL = url
	}
	return b
}

func (b *Binance) Name() string {
	return "binance"
}

// IntervalDuration returns the bar length of a Binance interval
func IntervalDuration(interval string) (time.Duration, bool) {
	d, ok := intervals[interval]
	return d, ok
}

// FetchHistory pages through klines from start until end or the latest bar.
// Each page starts one millisecond after the previous page's last open
// time; an empty or short page ends the download.
func (b *Binance) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	if _, ok := intervals[interval]; !ok {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}
	symbol = NormalizeSymbol(symbol, "USDT")
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	var bars []core.Bar
	since := start.UnixMilli()
	if start.IsZero() {
		since = 0
	}

	for page := 1; ; page++ {
		batch, err := b.fetchPage(ctx, symbol, interval, since, end)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		bars = append(bars, batch...)

		b.logger.Debug("fetched klines page",
			zap.String("symbol", symbol),
			zap.Int("page", page),
			zap.Int("bars", len(batch)),
			zap.Int("total", len(bars)),
		)

		if len(batch) < b.limit {
			break
		}
		since = batch[len(batch)-1].Time.UnixMilli() + 1

		if b.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.pause):
			}
		}
	}

	return bars, nil
}

func (b *Binance) fetchPage(ctx context.Context, symbol, interval string, since int64, end time.Time) ([]core.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(since, 10))
	if !end.IsZero() {
		q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}
	q.Set("limit", strconv.Itoa(b.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching klines: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, body)
	}

	var klines [][]any
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	bars := make([]core.Bar, 0, len(klines))
	for i, k := range klines {
		bar, err := parseKline(k)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidData, fmt.Errorf("kline %d: %w", i, err))
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, ...]
func parseKline(k []any) (core.Bar, error) {
	if len(k) < 6 {
		return core.Bar{}, fmt.Errorf("expected at least 6 fields, got %d", len(k))
	}
	openTime, ok := k[0].(float64)
	if !ok {
		return core.Bar{}, fmt.Errorf("open time is %T", k[0])
	}

	var v [5]float64
	for i := range v {
		s, ok := k[i+1].(string)
		if !ok {
			return core.Bar{}, fmt.Errorf("field %d is %T", i+1, k[i+1])
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return core.Bar{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v[i] = f
	}

	return core.Bar{
		Time:   time.UnixMilli(int64(openTime)).UTC(),
		Open:   v[0],
		High:   v[1],
		Low:    v[2],
		Close:  v[3],
		Volume: v[4],
	}, nil
}
