package broker

import (
	"testing"
	"time"

	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var simStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ohlc(i int, o, h, l, c float64) core.Bar {
	return core.Bar{Time: simStart.Add(time.Duration(i) * time.Hour), Open: o, High: h, Low: l, Close: c}
}

func newSim(t *testing.T, cash, commission float64) *SimBroker {
	t.Helper()
	cfg := DefaultSimConfig()
	cfg.InitialCash = cash
	cfg.Commission = commission
	b, err := NewSimBroker(cfg, nil)
	require.NoError(t, err)
	return b
}

func TestDefaultSimConfig(t *testing.T) {
	cfg := DefaultSimConfig()
	assert.Equal(t, 10_000_000.0, cfg.InitialCash)
	assert.Equal(t, 0.001, cfg.Commission)
	assert.True(t, cfg.ExclusiveOrders)
	assert.NoError(t, cfg.Validate())
}

func TestNewSimBroker_InvalidConfig(t *testing.T) {
	_, err := NewSimBroker(SimConfig{InitialCash: 0}, nil)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = NewSimBroker(SimConfig{InitialCash: 1000, Commission: 1}, nil)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestSimBroker_SubmitBeforeFirstBar(t *testing.T) {
	b := newSim(t, 100000, 0)
	_, err := b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 1, StopLoss: 90})
	assert.ErrorIs(t, err, ErrNoMarketData)
}

func TestSimBroker_FillsAtNextOpen(t *testing.T) {
	b := newSim(t, 100000, 0.001)

	b.OnBar(0, ohlc(0, 99, 101, 98, 100))
	order, err := b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 10, StopLoss: 90, Tag: "breakout"})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.False(t, b.Position().IsOpen(), "no fill at the submitting bar")

	b.OnBar(1, ohlc(1, 101, 104, 100, 103))

	pos := b.Position()
	require.True(t, pos.IsLong())
	assert.Equal(t, 101.0, pos.EntryPrice)
	assert.Equal(t, 1, pos.EntryBar)
	assert.Equal(t, 90.0, pos.StopLoss)

	orders := b.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, OrderStatusFilled, orders[0].Status)
	assert.Equal(t, 1, orders[0].FilledBar)

	fee := 10 * 101 * 0.001
	assert.InDelta(t, 100000-fee, b.Cash(), 1e-9)
	// marked to the close: 10 * (103 - 101)
	assert.InDelta(t, 100000-fee+20, b.Equity(), 1e-9)
}

func TestSimBroker_RejectsWrongSideStop(t *testing.T) {
	b := newSim(t, 100000, 0)
	b.OnBar(0, ohlc(0, 99, 101, 98, 100))

	_, err := b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 10, StopLoss: 105})
	assert.ErrorIs(t, err, ErrInvalidStopPrice)
	_, err = b.Submit(OrderRequest{Side: OrderSideSell, Quantity: 10, StopLoss: 95})
	assert.ErrorIs(t, err, ErrInvalidStopPrice)
}

func TestSimBroker_LongStopIntrabar(t *testing.T) {
	b := newSim(t, 100000, 0)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))
	_, err := b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 10, StopLoss: 95})
	require.NoError(t, err)

	b.OnBar(1, ohlc(1, 100, 102, 97, 101))
	b.OnBar(2, ohlc(2, 99, 100, 94, 96)) // low pierces 95

	require.False(t, b.Position().IsOpen())
	trades := b.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 95.0, trades[0].ExitPrice)
	assert.Equal(t, ExitStopLoss, trades[0].ExitReason)
	assert.Equal(t, 2, trades[0].ExitBar)
	assert.InDelta(t, -50.0, trades[0].PnL, 1e-9)
	assert.InDelta(t, 100000-50.0, b.Equity(), 1e-9)
}

func TestSimBroker_LongStopGapExitsAtOpen(t *testing.T) {
	b := newSim(t, 100000, 0)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))
	_, _ = b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 10, StopLoss: 95})
	b.OnBar(1, ohlc(1, 100, 102, 97, 101))
	b.OnBar(2, ohlc(2, 90, 92, 88, 91)) // gaps through the stop

	trades := b.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 90.0, trades[0].ExitPrice, "gap exit fills at the open")
}

func TestSimBroker_ShortStopGapExitsAtOpen(t *testing.T) {
	b := newSim(t, 100000, 0)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))
	_, err := b.Submit(OrderRequest{Side: OrderSideSell, Quantity: 10, StopLoss: 105})
	require.NoError(t, err)
	b.OnBar(1, ohlc(1, 100, 102, 98, 99))
	require.True(t, b.Position().IsShort())

	b.OnBar(2, ohlc(2, 108, 110, 107, 109))

	trades := b.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 108.0, trades[0].ExitPrice)
	assert.InDelta(t, -80.0, trades[0].PnL, 1e-9)
}

func TestSimBroker_StopCheckedOnFillBar(t *testing.T) {
	b := newSim(t, 100000, 0)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))
	_, _ = b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 10, StopLoss: 95})

	b.OnBar(1, ohlc(1, 100, 100, 94, 96))

	trades := b.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 1, trades[0].EntryBar)
	assert.Equal(t, 1, trades[0].ExitBar)
	assert.Equal(t, 95.0, trades[0].ExitPrice)
}

func TestSimBroker_UpdateStop(t *testing.T) {
	b := newSim(t, 100000, 0)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))

	assert.ErrorIs(t, b.UpdateStop(96), ErrPositionNotFound)

	_, _ = b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 10, StopLoss: 90})
	b.OnBar(1, ohlc(1, 100, 106, 100, 105))
	require.NoError(t, b.UpdateStop(99))
	assert.ErrorIs(t, b.UpdateStop(-1), ErrInvalidStopPrice)

	b.OnBar(2, ohlc(2, 104, 104, 98, 100))
	trades := b.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, 99.0, trades[0].ExitPrice, "exits at the adjusted stop")
	assert.Equal(t, 99.0, trades[0].StopLoss)
}

func TestSimBroker_MarginCancel(t *testing.T) {
	b := newSim(t, 10000, 0.001)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))

	// 100 units at 100 plus commission exceeds 10,000 of equity
	_, err := b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 100, StopLoss: 90})
	require.NoError(t, err)
	b.OnBar(1, ohlc(1, 100, 101, 99, 100))

	assert.False(t, b.Position().IsOpen())
	assert.Equal(t, 1, b.CancelledOrders())
	orders := b.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, OrderStatusCancelled, orders[0].Status)
	assert.Contains(t, orders[0].CancelReason, "insufficient margin")
	assert.Equal(t, 10000.0, b.Equity())
}

func TestSimBroker_ExclusiveOrdersReverse(t *testing.T) {
	b := newSim(t, 100000, 0)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))
	_, _ = b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 10, StopLoss: 90})
	b.OnBar(1, ohlc(1, 100, 106, 100, 105))

	_, err := b.Submit(OrderRequest{Side: OrderSideSell, Quantity: 5, StopLoss: 120})
	require.NoError(t, err)
	b.OnBar(2, ohlc(2, 104, 105, 103, 104))

	trades := b.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, ExitExclusive, trades[0].ExitReason)
	assert.Equal(t, 104.0, trades[0].ExitPrice)

	pos := b.Position()
	require.True(t, pos.IsShort())
	assert.Equal(t, int64(5), pos.Size)
	assert.Equal(t, 104.0, pos.EntryPrice)
}

func TestSimBroker_NewOrderSupersedesPending(t *testing.T) {
	b := newSim(t, 100000, 0)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))
	_, _ = b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 10, StopLoss: 90})
	_, _ = b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 20, StopLoss: 90})
	b.OnBar(1, ohlc(1, 100, 101, 99, 100))

	assert.Equal(t, int64(20), b.Position().Size)
	assert.Equal(t, 1, b.CancelledOrders())
}

func TestSimBroker_FinishClosesAtLastClose(t *testing.T) {
	b := newSim(t, 100000, 0.001)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))
	_, _ = b.Submit(OrderRequest{Side: OrderSideBuy, Quantity: 10, StopLoss: 90})
	b.OnBar(1, ohlc(1, 100, 106, 100, 105))
	b.OnBar(2, ohlc(2, 105, 111, 104, 110))
	_, _ = b.Submit(OrderRequest{Side: OrderSideSell, Quantity: 1, StopLoss: 120})

	b.Finish()

	trades := b.Trades()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, ExitEndOfData, tr.ExitReason)
	assert.Equal(t, 110.0, tr.ExitPrice)
	assert.Equal(t, 2, tr.ExitBar)

	fees := 10*100*0.001 + 10*110*0.001
	assert.InDelta(t, fees, tr.Commission, 1e-9)
	assert.InDelta(t, 100-fees, tr.PnL, 1e-9)
	assert.InDelta(t, fees, b.Commissions(), 1e-9)

	curve := b.EquityCurve()
	require.Len(t, curve, 3)
	assert.InDelta(t, 100000+100-fees, curve[2], 1e-9, "last point is the settled balance")
	assert.Equal(t, 1, b.CancelledOrders(), "unfilled order cancelled at the end")
}

func TestSimBroker_EquityCurveMarksToClose(t *testing.T) {
	b := newSim(t, 100000, 0)
	b.OnBar(0, ohlc(0, 100, 101, 99, 100))
	_, _ = b.Submit(OrderRequest{Side: OrderSideSell, Quantity: 10, StopLoss: 120})
	b.OnBar(1, ohlc(1, 100, 101, 96, 97))
	b.OnBar(2, ohlc(2, 97, 99, 95, 98))

	assert.Equal(t, []float64{100000, 100030, 100020}, b.EquityCurve())
}
