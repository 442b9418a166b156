// Package trendguard implements a trend-filtered Donchian breakout strategy
// with ADX confirmation, ATR risk sizing and a ratcheting ATR trailing stop.
package trendguard

import (
	"fmt"
	"math"

	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/indicator"
	"github.com/christophzehentbauerz/trade/internal/strategy"
	"go.uber.org/zap"
)

// Name is the registry name of the strategy
const Name = "trendguard"

// WarmupMargin is the number of bars added to the longest window before
// the strategy acts.
const WarmupMargin = 5

// TrendGuard is the per-run signal and risk engine. Build one per run.
type TrendGuard struct {
	params strategy.Params
	logger *zap.Logger

	atr         []float64
	ma          []float64
	adx         []float64
	channelHigh []float64
	channelLow  []float64
}

// New creates a TrendGuard for the given parameters
func New(p strategy.Params, logger *zap.Logger) (*TrendGuard, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrendGuard{params: p, logger: logger}, nil
}

// Factory adapts New to strategy.Factory
func Factory(p strategy.Params, logger *zap.Logger) (strategy.Strategy, error) {
	return New(p, logger)
}

// Register adds the strategy to a registry
func Register(r *strategy.Registry) {
	r.Register(Name, Factory)
}

func (t *TrendGuard) Name() string {
	return Name
}

func (t *TrendGuard) Description() string {
	p := t.params
	return fmt.Sprintf("TrendGuard MA%d/Donchian%d ADX%d>%.0f ATR%d×%.1f risk %.1f%%",
		p.TrendWindow, p.ChannelWindow, p.ADXWindow, p.ADXThreshold, p.ATRWindow, p.ATRMultiplier, p.RiskFraction*100)
}

// Params returns the run's parameter record
func (t *TrendGuard) Params() strategy.Params {
	return t.params
}

// Warmup is max(all windows) + WarmupMargin bars
func (t *TrendGuard) Warmup() int {
	return t.params.MaxWindow() + WarmupMargin
}

// Init computes every indicator once over the full series. Channels are
// shifted one bar, so reading index i never sees bar i's own high or low.
func (t *TrendGuard) Init(bars []core.Bar) error {
	if len(bars) == 0 {
		return core.ErrNoData
	}
	p := t.params
	t.atr = indicator.ATRFromColumns(core.Highs(bars), core.Lows(bars), core.Closes(bars), len(bars), p.ATRWindow)
	t.ma = indicator.MovingAverage(core.Closes(bars), p.TrendWindow)
	t.adx = indicator.ADX(bars, p.ADXWindow)
	t.channelHigh = indicator.DonchianHigh(bars, p.ChannelWindow)
	t.channelLow = indicator.DonchianLow(bars, p.ChannelWindow)

	if indicator.IsUnavailable(t.atr) {
		t.logger.Warn("ATR unavailable for the whole series, entries disabled",
			zap.Int("bars", len(bars)),
			zap.Int("atr_window", p.ATRWindow),
		)
	}
	return nil
}

// Next evaluates one bar. Flat: entry rules. Open: trailing stop ratchet.
func (t *TrendGuard) Next(s strategy.Snapshot) []strategy.Intent {
	i := s.Index
	if i < 0 || i >= len(t.ma) {
		return nil
	}
	if i+1 < t.Warmup() {
		return nil
	}
	if math.IsNaN(t.ma[i]) {
		return nil
	}

	price := s.Bar.Close
	atr := t.atr[i]
	stopDistance := atr * t.params.ATRMultiplier

	if !s.Position.IsOpen() {
		if intent, ok := t.entry(s, price, stopDistance); ok {
			return []strategy.Intent{intent}
		}
		return nil
	}

	if intent, ok := t.trail(s.Position, price, stopDistance); ok {
		return []strategy.Intent{intent}
	}
	return nil
}

func (t *TrendGuard) entry(s strategy.Snapshot, price, stopDistance float64) (strategy.Intent, bool) {
	i := s.Index
	if math.IsNaN(stopDistance) || stopDistance <= 0 {
		t.logger.Debug("entry skipped: stop distance not positive",
			zap.Int("bar", i),
			zap.Float64("atr", t.atr[i]),
		)
		return strategy.Intent{}, false
	}

	units := PositionSize(s.Equity, t.params.RiskFraction, stopDistance, price)
	if units < 1 {
		return strategy.Intent{}, false
	}

	uptrend := price > t.ma[i]
	strong := t.adx[i] > t.params.ADXThreshold // NaN compares false

	switch {
	case uptrend && strong && price > t.channelHigh[i]:
		return strategy.Intent{
			Kind:     strategy.IntentEnterLong,
			Size:     units,
			StopLoss: price - stopDistance,
			Reason:   fmt.Sprintf("close %.2f above %d-bar high %.2f, ADX %.1f", price, t.params.ChannelWindow, t.channelHigh[i], t.adx[i]),
		}, true
	case !uptrend && strong && price < t.channelLow[i]:
		return strategy.Intent{
			Kind:     strategy.IntentEnterShort,
			Size:     units,
			StopLoss: price + stopDistance,
			Reason:   fmt.Sprintf("close %.2f below %d-bar low %.2f, ADX %.1f", price, t.params.ChannelWindow, t.channelLow[i], t.adx[i]),
		}, true
	}
	return strategy.Intent{}, false
}

// trail moves the stop toward price only. Longs never lower it, shorts
// never raise it; an undefined candidate leaves it untouched.
func (t *TrendGuard) trail(pos core.Position, price, stopDistance float64) (strategy.Intent, bool) {
	var candidate float64
	switch pos.Direction {
	case core.Long:
		candidate = price - stopDistance
		if !(candidate > pos.StopLoss) {
			return strategy.Intent{}, false
		}
	case core.Short:
		candidate = price + stopDistance
		if !(candidate < pos.StopLoss) {
			return strategy.Intent{}, false
		}
	default:
		return strategy.Intent{}, false
	}
	return strategy.Intent{
		Kind:     strategy.IntentAdjustStop,
		StopLoss: candidate,
		Reason:   "trailing stop",
	}, true
}
