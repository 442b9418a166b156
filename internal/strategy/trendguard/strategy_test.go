package trendguard

import (
	"math"
	"testing"
	"time"

	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/strategy"
)

func testParams() strategy.Params {
	return strategy.Params{
		ATRWindow:     14,
		ATRMultiplier: 4,
		TrendWindow:   20,
		ChannelWindow: 10,
		ADXWindow:     14,
		ADXThreshold:  25,
		RiskFraction:  0.01,
	}
}

// trendBars builds bars with close = start + step*i and a one-point range.
func trendBars(n int, start, step float64) []core.Bar {
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, n)
	for i := range bars {
		c := start + step*float64(i)
		bars[i] = core.Bar{
			Time:  base.Add(time.Duration(i) * time.Hour),
			Open:  c - step/4,
			High:  c + 0.5,
			Low:   c - 0.5,
			Close: c,
		}
	}
	return bars
}

func newInitialized(t *testing.T, p strategy.Params, bars []core.Bar) *TrendGuard {
	t.Helper()
	tg, err := New(p, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tg.Init(bars); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return tg
}

// firstEntry walks the series while flat and returns the first entry intent.
func firstEntry(tg *TrendGuard, bars []core.Bar, equity float64) (int, strategy.Intent, bool) {
	for i, bar := range bars {
		intents := tg.Next(strategy.Snapshot{Index: i, Bar: bar, Equity: equity})
		if len(intents) > 0 {
			return i, intents[0], true
		}
	}
	return -1, strategy.Intent{}, false
}

func TestTrendGuard_ImplementsStrategy(t *testing.T) {
	var _ strategy.Strategy = (*TrendGuard)(nil)
}

func TestTrendGuard_Name(t *testing.T) {
	tg, err := New(testParams(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if tg.Name() != "trendguard" {
		t.Errorf("expected 'trendguard', got '%s'", tg.Name())
	}
	if tg.Warmup() != 25 {
		t.Errorf("Warmup() = %d, want 25", tg.Warmup())
	}
}

func TestNew_InvalidParams(t *testing.T) {
	p := testParams()
	p.ChannelWindow = 0
	if _, err := New(p, nil); err == nil {
		t.Error("expected error for zero channel window")
	}
}

func TestInit_NoBars(t *testing.T) {
	tg, _ := New(testParams(), nil)
	if err := tg.Init(nil); err == nil {
		t.Error("expected error for empty series")
	}
}

func TestNext_FlatSeriesNeverEnters(t *testing.T) {
	bars := make([]core.Bar, 1000)
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = core.Bar{Time: base.Add(time.Duration(i) * time.Hour), Open: 100, High: 100, Low: 100, Close: 100}
	}
	tg := newInitialized(t, testParams(), bars)

	if i, intent, ok := firstEntry(tg, bars, 1_000_000); ok {
		t.Fatalf("unexpected %s at bar %d on a flat series", intent.Kind, i)
	}
}

func TestNext_RisingSeriesEntersLongOnce(t *testing.T) {
	bars := trendBars(120, 100, 1)
	tg := newInitialized(t, testParams(), bars)

	i, intent, ok := firstEntry(tg, bars, 1_200_000)
	if !ok {
		t.Fatal("expected a long entry on a rising series")
	}
	// ADX(14) is first defined at bar 27, after the 25-bar guard
	if i != 27 {
		t.Errorf("entry bar = %d, want 27", i)
	}
	if intent.Kind != strategy.IntentEnterLong {
		t.Fatalf("intent = %s, want enter_long", intent.Kind)
	}
	// ATR = 1.5, stop distance = 6, units = floor(12000/6)
	if intent.Size != 2000 {
		t.Errorf("size = %d, want 2000", intent.Size)
	}
	if intent.StopLoss != bars[i].Close-6 {
		t.Errorf("stop = %f, want %f", intent.StopLoss, bars[i].Close-6)
	}
}

func TestNext_FallingSeriesEntersShort(t *testing.T) {
	bars := trendBars(120, 500, -1)
	tg := newInitialized(t, testParams(), bars)

	i, intent, ok := firstEntry(tg, bars, 1_200_000)
	if !ok {
		t.Fatal("expected a short entry on a falling series")
	}
	if intent.Kind != strategy.IntentEnterShort {
		t.Fatalf("intent = %s, want enter_short", intent.Kind)
	}
	if intent.StopLoss != bars[i].Close+6 {
		t.Errorf("stop = %f, want %f", intent.StopLoss, bars[i].Close+6)
	}
}

func TestNext_RiskFractionScalesSizeLinearly(t *testing.T) {
	bars := trendBars(120, 100, 1)

	p1 := testParams()
	p2 := testParams()
	p2.RiskFraction = 0.02

	_, one, ok1 := firstEntry(newInitialized(t, p1, bars), bars, 1_200_000)
	_, two, ok2 := firstEntry(newInitialized(t, p2, bars), bars, 1_200_000)
	if !ok1 || !ok2 {
		t.Fatal("expected entries for both risk fractions")
	}
	if two.Size != 2*one.Size {
		t.Errorf("sizes %d and %d are not in ratio 1:2", one.Size, two.Size)
	}
}

func TestNext_BreakoutIgnoresOwnBar(t *testing.T) {
	// Bar 40: record high far above everything, close just above the prior
	// window high. If the channel included bar 40's own high, no close could
	// ever clear it.
	i := 40
	bars := trendBars(60, 100, 1)
	prior := bars[i-1].High
	bars[i].High = 10_000
	bars[i].Close = prior + 0.1
	tg := newInitialized(t, testParams(), bars)

	if tg.channelHigh[i] != prior {
		t.Fatalf("channel high at bar %d = %f, want %f", i, tg.channelHigh[i], prior)
	}
	bar := bars[i]
	intents := tg.Next(strategy.Snapshot{Index: i, Bar: bar, Equity: 1_200_000})
	if len(intents) != 1 || intents[0].Kind != strategy.IntentEnterLong {
		t.Fatalf("expected long entry when close clears the prior window, got %v", intents)
	}

	// Same record high, close at the prior high: no breakout on this bar.
	bar.Close = prior
	if intents := tg.Next(strategy.Snapshot{Index: i, Bar: bar, Equity: 1_200_000}); len(intents) != 0 {
		t.Fatalf("bar's own high must not trigger its breakout, got %v", intents)
	}
}

func TestNext_ChannelNeverContainsCurrentBar(t *testing.T) {
	bars := trendBars(60, 100, 1)
	bars[45].High = 10_000
	tg := newInitialized(t, testParams(), bars)

	if tg.channelHigh[45] == 10_000 {
		t.Error("channel at bar 45 includes bar 45's own high")
	}
	if tg.channelHigh[46] != 10_000 {
		t.Errorf("channel at bar 46 = %f, want 10000", tg.channelHigh[46])
	}
}

func TestNext_WarmupGuard(t *testing.T) {
	bars := trendBars(120, 100, 1)
	tg := newInitialized(t, testParams(), bars)

	// force every indicator to favour a long entry from bar 0
	for i := range bars {
		tg.ma[i] = 0
		tg.adx[i] = 100
		tg.atr[i] = 1.5
		tg.channelHigh[i] = 0
	}
	for i := 0; i < tg.Warmup()-1; i++ {
		if intents := tg.Next(strategy.Snapshot{Index: i, Bar: bars[i], Equity: 1_200_000}); len(intents) != 0 {
			t.Fatalf("bar %d: intent emitted before warm-up", i)
		}
	}
	if intents := tg.Next(strategy.Snapshot{Index: tg.Warmup() - 1, Bar: bars[tg.Warmup()-1], Equity: 1_200_000}); len(intents) != 1 {
		t.Error("expected entry once the guard clears")
	}
}

func TestNext_UndefinedTrendFilterSkips(t *testing.T) {
	bars := trendBars(120, 100, 1)
	tg := newInitialized(t, testParams(), bars)
	tg.ma[50] = math.NaN()

	pos := core.Position{Direction: core.Long, Size: 10, StopLoss: 1}
	if intents := tg.Next(strategy.Snapshot{Index: 50, Bar: bars[50], Equity: 1_200_000, Position: pos}); len(intents) != 0 {
		t.Errorf("expected no intents while the trend filter is undefined, got %v", intents)
	}
}

func TestNext_DegenerateStopDistanceNeverEnters(t *testing.T) {
	bars := trendBars(120, 100, 1)
	tg := newInitialized(t, testParams(), bars)

	atrValues := []float64{0, math.NaN(), -1}
	prices := []float64{0.5, 50, 150, 10_000}
	for _, atr := range atrValues {
		for _, price := range prices {
			for _, adx := range []float64{0, 30, 100} {
				for i := 30; i < 40; i++ {
					tg.atr[i] = atr
					tg.adx[i] = adx
					tg.ma[i] = price / 2
					tg.channelHigh[i] = price / 2
					tg.channelLow[i] = price * 2

					bar := bars[i]
					bar.Close = price
					if intents := tg.Next(strategy.Snapshot{Index: i, Bar: bar, Equity: 1_000_000}); len(intents) != 0 {
						t.Fatalf("atr=%v price=%v adx=%v: entry emitted with degenerate stop distance", atr, price, adx)
					}
				}
			}
		}
	}
}

func TestNext_LongStopRatchetsUpOnly(t *testing.T) {
	bars := trendBars(200, 100, 1)
	tg := newInitialized(t, testParams(), bars)

	entryBar, entry, ok := firstEntry(tg, bars, 1_200_000)
	if !ok {
		t.Fatal("expected an entry")
	}
	pos := core.Position{Direction: core.Long, Size: entry.Size, EntryPrice: bars[entryBar+1].Open, StopLoss: entry.StopLoss}

	stops := []float64{pos.StopLoss}
	for i := entryBar + 1; i < len(bars); i++ {
		for _, in := range tg.Next(strategy.Snapshot{Index: i, Bar: bars[i], Equity: 1_200_000, Position: pos}) {
			if in.Kind != strategy.IntentAdjustStop {
				t.Fatalf("bar %d: unexpected %s while in a position", i, in.Kind)
			}
			pos.StopLoss = in.StopLoss
		}
		stops = append(stops, pos.StopLoss)
	}

	for k := 1; k < len(stops); k++ {
		if !(stops[k] > stops[k-1]) {
			t.Fatalf("stop did not strictly tighten at step %d: %f -> %f", k, stops[k-1], stops[k])
		}
	}
}

func TestNext_ShortStopRatchetsDownOnly(t *testing.T) {
	bars := trendBars(200, 500, -1)
	tg := newInitialized(t, testParams(), bars)

	entryBar, entry, ok := firstEntry(tg, bars, 1_200_000)
	if !ok {
		t.Fatal("expected an entry")
	}
	pos := core.Position{Direction: core.Short, Size: entry.Size, StopLoss: entry.StopLoss}

	prev := pos.StopLoss
	for i := entryBar + 1; i < len(bars); i++ {
		for _, in := range tg.Next(strategy.Snapshot{Index: i, Bar: bars[i], Equity: 1_200_000, Position: pos}) {
			pos.StopLoss = in.StopLoss
		}
		if pos.StopLoss > prev {
			t.Fatalf("short stop loosened at bar %d: %f -> %f", i, prev, pos.StopLoss)
		}
		prev = pos.StopLoss
	}
}

func TestNext_StopNeverLoosensOnPullback(t *testing.T) {
	// rising then falling: the long stop must hold its high-water mark
	up := trendBars(100, 100, 1)
	down := trendBars(40, up[len(up)-1].Close, -1)
	bars := append(up, down[1:]...)
	for i := range bars {
		bars[i].Time = up[0].Time.Add(time.Duration(i) * time.Hour)
	}
	tg := newInitialized(t, testParams(), bars)

	pos := core.Position{Direction: core.Long, Size: 100, StopLoss: 0}
	prev := pos.StopLoss
	for i := 30; i < len(bars); i++ {
		for _, in := range tg.Next(strategy.Snapshot{Index: i, Bar: bars[i], Equity: 1_200_000, Position: pos}) {
			pos.StopLoss = in.StopLoss
		}
		if pos.StopLoss < prev {
			t.Fatalf("long stop loosened at bar %d: %f -> %f", i, prev, pos.StopLoss)
		}
		prev = pos.StopLoss
	}
}

func TestNext_UndefinedATRKeepsStop(t *testing.T) {
	bars := trendBars(100, 100, 1)
	tg := newInitialized(t, testParams(), bars)
	tg.atr[60] = math.NaN()

	pos := core.Position{Direction: core.Long, Size: 10, StopLoss: 50}
	if intents := tg.Next(strategy.Snapshot{Index: 60, Bar: bars[60], Equity: 1_200_000, Position: pos}); len(intents) != 0 {
		t.Errorf("expected stop untouched with undefined ATR, got %v", intents)
	}
}
