package metrics

import (
	"context"
	"time"

	"github.com/christophzehentbauerz/trade/internal/collector"
	"github.com/christophzehentbauerz/trade/internal/core"
	"go.uber.org/zap"
)

// instrumentedProvider wraps a provider to record fetch metrics.
type instrumentedProvider struct {
	collector.Provider
	reg *Registry
}

// InstrumentProvider returns a provider that records fetch metrics.
func InstrumentProvider(reg *Registry, next collector.Provider) collector.Provider {
	return &instrumentedProvider{Provider: next, reg: reg}
}

func (p *instrumentedProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	began := time.Now()
	bars, err := p.Provider.FetchHistory(ctx, symbol, start, end, interval)
	p.reg.RecordFetch(p.Name(), len(bars), err, time.Since(began).Seconds())
	return bars, err
}

// loggingProvider wraps a provider to log every fetch.
type loggingProvider struct {
	collector.Provider
	logger *zap.Logger
}

// LoggingProvider returns a provider that logs every fetch.
func LoggingProvider(logger *zap.Logger, next collector.Provider) collector.Provider {
	return &loggingProvider{Provider: next, logger: logger}
}

func (p *loggingProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	began := time.Now()
	bars, err := p.Provider.FetchHistory(ctx, symbol, start, end, interval)

	fields := []zap.Field{
		zap.String("provider", p.Name()),
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("bars", len(bars)),
		zap.Float64("duration_ms", float64(time.Since(began).Microseconds())/1000),
	}
	if err != nil {
		p.logger.Warn("fetch failed", append(fields, zap.Error(err))...)
		return bars, err
	}
	p.logger.Info("fetch", fields...)
	return bars, nil
}
