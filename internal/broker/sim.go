package broker

import (
	"fmt"
	"math"

	"github.com/christophzehentbauerz/trade/internal/core"
	"go.uber.org/zap"
)

// SimConfig holds the simulated account settings.
type SimConfig struct {
	// InitialCash is the starting balance.
	InitialCash float64 `mapstructure:"initial_cash"`
	// Commission is charged as a fraction of notional on every fill.
	Commission float64 `mapstructure:"commission"`
	// ExclusiveOrders closes any open position before a new entry fills.
	ExclusiveOrders bool `mapstructure:"exclusive_orders"`
	// Risk is the pre-fill margin check.
	Risk RiskConfig `mapstructure:"risk"`
}

// DefaultSimConfig returns the research defaults.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		InitialCash:     10_000_000,
		Commission:      0.001,
		ExclusiveOrders: true,
		Risk:            DefaultRiskConfig(),
	}
}

// Validate checks the account settings.
func (c SimConfig) Validate() error {
	if !(c.InitialCash > 0) {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("initial cash must be positive, got %v", c.InitialCash))
	}
	if c.Commission < 0 || c.Commission >= 1 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("commission must be in [0, 1), got %v", c.Commission))
	}
	return nil
}

// SimBroker executes orders against a bar series one bar at a time.
//
// Orders submitted after bar i's close fill at bar i+1's open. Stops are
// checked against every bar's range from the fill bar on; a gap through the
// stop exits at the open. A SimBroker serves a single run and is not safe
// for concurrent use.
type SimBroker struct {
	config SimConfig
	risk   *RiskChecker
	logger *zap.Logger

	cash     float64
	position core.Position
	entryFee float64
	entryTag string

	pending []*Order
	orders  []*Order
	trades  []Trade
	equity  []float64

	bar       core.Bar
	index     int
	nextID    int64
	cancelled int
	fees      float64
}

// NewSimBroker creates a simulated broker.
func NewSimBroker(config SimConfig, logger *zap.Logger) (*SimBroker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &SimBroker{
		config: config,
		logger: logger,
		cash:   config.InitialCash,
		index:  -1,
	}
	b.risk = NewRiskChecker(config.Risk, b)
	return b, nil
}

// Cash returns the realized balance.
func (b *SimBroker) Cash() float64 {
	return b.cash
}

// Equity returns cash plus the open position marked to the last close.
func (b *SimBroker) Equity() float64 {
	if !b.position.IsOpen() {
		return b.cash
	}
	return b.cash + b.unrealized(b.bar.Close)
}

func (b *SimBroker) unrealized(price float64) float64 {
	return b.position.Direction.Sign() * float64(b.position.Size) * (price - b.position.EntryPrice)
}

// Position returns the open position, zero when flat.
func (b *SimBroker) Position() core.Position {
	return b.position
}

// Submit queues a market order for the next bar's open.
func (b *SimBroker) Submit(req OrderRequest) (*Order, error) {
	if b.index < 0 {
		return nil, ErrNoMarketData
	}
	if err := req.ValidateAt(b.bar.Close); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = OrderTypeMarket
	}

	if b.config.ExclusiveOrders {
		for _, o := range b.pending {
			b.cancel(o, "superseded by a newer order")
		}
		b.pending = b.pending[:0]
	}

	b.nextID++
	order := &Order{
		ID:           b.nextID,
		Request:      req,
		Status:       OrderStatusPending,
		SubmittedBar: b.index,
		FilledBar:    -1,
	}
	b.pending = append(b.pending, order)
	b.orders = append(b.orders, order)
	return order, nil
}

// UpdateStop replaces the open position's stop.
func (b *SimBroker) UpdateStop(stop float64) error {
	if !b.position.IsOpen() {
		return ErrPositionNotFound
	}
	if math.IsNaN(stop) || math.IsInf(stop, 0) || stop <= 0 {
		return ErrInvalidStopPrice
	}
	b.position.StopLoss = stop
	return nil
}

// OnBar advances the simulation to bar i: pending orders fill at the open,
// the stop is checked against the bar's range, and equity is marked to
// the close.
func (b *SimBroker) OnBar(i int, bar core.Bar) {
	b.index = i
	b.bar = bar

	b.fillPending(bar)
	b.checkStop(bar)

	b.equity = append(b.equity, b.Equity())
}

// Finish cancels unfilled orders and closes any open position at the last
// close. The final equity point is replaced by the settled cash balance.
func (b *SimBroker) Finish() {
	for _, o := range b.pending {
		b.cancel(o, "end of data")
	}
	b.pending = nil

	if b.position.IsOpen() {
		b.closePosition(b.bar.Close, ExitEndOfData)
		if n := len(b.equity); n > 0 {
			b.equity[n-1] = b.cash
		}
	}
}

func (b *SimBroker) fillPending(bar core.Bar) {
	if len(b.pending) == 0 {
		return
	}
	pending := b.pending
	b.pending = nil

	for _, o := range pending {
		if b.position.IsOpen() {
			if !b.config.ExclusiveOrders {
				b.cancel(o, "position already open")
				continue
			}
			b.closePosition(bar.Open, ExitExclusive)
		}
		b.fill(o, bar)
	}
}

func (b *SimBroker) fill(o *Order, bar core.Bar) {
	price := bar.Open
	adjusted := price * (1 + b.config.Commission)

	if result := b.risk.Check(o.Request, adjusted); !result.Allowed {
		b.cancel(o, result.Reason)
		return
	}

	fee := float64(o.Request.Quantity) * price * b.config.Commission
	b.cash -= fee
	b.fees += fee
	b.entryFee = fee
	b.entryTag = o.Request.Tag

	b.position = core.Position{
		Direction:  o.Request.Side.Direction(),
		Size:       o.Request.Quantity,
		EntryPrice: price,
		EntryTime:  bar.Time,
		EntryBar:   b.index,
		StopLoss:   o.Request.StopLoss,
	}

	o.Status = OrderStatusFilled
	o.FilledBar = b.index
	o.FillPrice = price
	o.Commission = fee

	b.logger.Debug("order filled",
		zap.Int64("order_id", o.ID),
		zap.String("side", string(o.Request.Side)),
		zap.Int64("quantity", o.Request.Quantity),
		zap.Float64("price", price),
		zap.Float64("stop_loss", o.Request.StopLoss),
		zap.Int("bar", b.index),
	)
}

func (b *SimBroker) checkStop(bar core.Bar) {
	pos := b.position
	if !pos.IsOpen() {
		return
	}
	switch pos.Direction {
	case core.Long:
		if bar.Low <= pos.StopLoss {
			b.closePosition(math.Min(bar.Open, pos.StopLoss), ExitStopLoss)
		}
	case core.Short:
		if bar.High >= pos.StopLoss {
			b.closePosition(math.Max(bar.Open, pos.StopLoss), ExitStopLoss)
		}
	}
}

func (b *SimBroker) closePosition(price float64, reason ExitReason) {
	pos := b.position
	fee := float64(pos.Size) * price * b.config.Commission
	gross := b.unrealized(price)

	b.cash += gross - fee
	b.fees += fee

	trade := Trade{
		Direction:  pos.Direction,
		Size:       pos.Size,
		EntryBar:   pos.EntryBar,
		ExitBar:    b.index,
		EntryTime:  pos.EntryTime,
		ExitTime:   b.bar.Time,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		StopLoss:   pos.StopLoss,
		Commission: b.entryFee + fee,
		PnL:        gross - b.entryFee - fee,
		ExitReason: reason,
		Tag:        b.entryTag,
	}
	b.trades = append(b.trades, trade)
	b.position = core.Position{}
	b.entryFee = 0
	b.entryTag = ""

	b.logger.Debug("position closed",
		zap.String("direction", trade.Direction.String()),
		zap.String("reason", string(reason)),
		zap.Float64("exit_price", price),
		zap.Float64("pnl", trade.PnL),
		zap.Int("bar", b.index),
	)
}

func (b *SimBroker) cancel(o *Order, reason string) {
	o.Status = OrderStatusCancelled
	o.CancelReason = reason
	b.cancelled++
	b.logger.Debug("order cancelled",
		zap.Int64("order_id", o.ID),
		zap.String("reason", reason),
	)
}

// Trades returns the closed trades in exit order.
func (b *SimBroker) Trades() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Orders returns every order submitted so far.
func (b *SimBroker) Orders() []Order {
	out := make([]Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = *o
	}
	return out
}

// EquityCurve returns one equity value per processed bar.
func (b *SimBroker) EquityCurve() []float64 {
	out := make([]float64, len(b.equity))
	copy(out, b.equity)
	return out
}

// CancelledOrders is the number of orders that never filled.
func (b *SimBroker) CancelledOrders() int {
	return b.cancelled
}

// Commissions is the total commission paid.
func (b *SimBroker) Commissions() float64 {
	return b.fees
}

// Config returns the account settings.
func (b *SimBroker) Config() SimConfig {
	return b.config
}
