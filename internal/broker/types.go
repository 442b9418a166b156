// Package broker provides order, trade and execution types plus a bar-driven
// simulated broker for backtests.
package broker

import (
	"errors"
	"math"
	"time"

	"github.com/christophzehentbauerz/trade/internal/core"
)

// Broker-specific errors.
var (
	// ErrInvalidQuantity indicates a size below one unit.
	ErrInvalidQuantity = errors.New("broker: invalid quantity")
	// ErrInvalidStopPrice indicates a missing, non-positive or wrong-side stop.
	ErrInvalidStopPrice = errors.New("broker: invalid stop price")
	// ErrInvalidSide indicates an unknown order side.
	ErrInvalidSide = errors.New("broker: invalid order side")
	// ErrInvalidOrderType indicates an unsupported order type.
	ErrInvalidOrderType = errors.New("broker: invalid order type")
	// ErrPositionNotFound indicates a stop update with no open position.
	ErrPositionNotFound = errors.New("broker: position not found")
	// ErrInsufficientFunds indicates the order exceeds available margin.
	ErrInsufficientFunds = errors.New("broker: insufficient funds")
	// ErrNoMarketData indicates an order submitted before the first bar.
	ErrNoMarketData = errors.New("broker: no market data")
)

// OrderSide represents the direction of an order.
type OrderSide string

const (
	// OrderSideBuy opens a long position.
	OrderSideBuy OrderSide = "BUY"
	// OrderSideSell opens a short position.
	OrderSideSell OrderSide = "SELL"
)

// Direction maps the side to the position it opens.
func (s OrderSide) Direction() core.Direction {
	switch s {
	case OrderSideBuy:
		return core.Long
	case OrderSideSell:
		return core.Short
	default:
		return core.Flat
	}
}

// OrderType represents the type of order execution.
type OrderType string

const (
	// OrderTypeMarket fills at the next bar's open.
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus represents the lifecycle status of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order waits for the next bar.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusFilled indicates the order has been filled.
	OrderStatusFilled OrderStatus = "FILLED"
	// OrderStatusCancelled indicates the order was cancelled before filling.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// ExitReason records why a trade was closed.
type ExitReason string

const (
	ExitStopLoss  ExitReason = "stop_loss"
	ExitExclusive ExitReason = "exclusive_order"
	ExitEndOfData ExitReason = "end_of_data"
)

// OrderRequest represents a request to open a position.
type OrderRequest struct {
	// Side indicates buy (long) or sell (short).
	Side OrderSide `json:"side"`
	// Type specifies the order execution type. Empty means market.
	Type OrderType `json:"type,omitempty"`
	// Quantity is the number of whole units to trade.
	Quantity int64 `json:"quantity"`
	// StopLoss is the protective stop attached to the resulting position.
	StopLoss float64 `json:"stop_loss"`
	// Tag is a free-form note carried to the order and trade.
	Tag string `json:"tag,omitempty"`
}

// Validate checks the request for values no fill could use.
func (r OrderRequest) Validate() error {
	if r.Side != OrderSideBuy && r.Side != OrderSideSell {
		return ErrInvalidSide
	}
	if r.Type != "" && r.Type != OrderTypeMarket {
		return ErrInvalidOrderType
	}
	if r.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if math.IsNaN(r.StopLoss) || math.IsInf(r.StopLoss, 0) || r.StopLoss <= 0 {
		return ErrInvalidStopPrice
	}
	return nil
}

// ValidateAt additionally checks that the stop sits on the losing side of
// the reference price: below it for buys, above it for sells.
func (r OrderRequest) ValidateAt(price float64) error {
	if err := r.Validate(); err != nil {
		return err
	}
	switch r.Side {
	case OrderSideBuy:
		if !(r.StopLoss < price) {
			return ErrInvalidStopPrice
		}
	case OrderSideSell:
		if !(r.StopLoss > price) {
			return ErrInvalidStopPrice
		}
	}
	return nil
}

// Order represents an order in the simulated broker.
type Order struct {
	// ID is the broker-assigned sequence number.
	ID int64 `json:"id"`
	// Request is the original request.
	Request OrderRequest `json:"request"`
	// Status is the current order status.
	Status OrderStatus `json:"status"`
	// SubmittedBar is the bar index at whose close the order was placed.
	SubmittedBar int `json:"submitted_bar"`
	// FilledBar is the bar index of the fill, -1 until filled.
	FilledBar int `json:"filled_bar"`
	// FillPrice is the execution price.
	FillPrice float64 `json:"fill_price,omitempty"`
	// Commission is the commission charged on the fill.
	Commission float64 `json:"commission,omitempty"`
	// CancelReason explains a cancellation.
	CancelReason string `json:"cancel_reason,omitempty"`
}

// IsOpen returns true if the order still waits for a fill.
func (o Order) IsOpen() bool {
	return o.Status == OrderStatusPending
}

// IsFilled returns true if the order has been filled.
func (o Order) IsFilled() bool {
	return o.Status == OrderStatusFilled
}

// Trade is a closed round trip.
type Trade struct {
	Direction  core.Direction `json:"direction"`
	Size       int64          `json:"size"`
	EntryBar   int            `json:"entry_bar"`
	ExitBar    int            `json:"exit_bar"`
	EntryTime  time.Time      `json:"entry_time"`
	ExitTime   time.Time      `json:"exit_time"`
	EntryPrice float64        `json:"entry_price"`
	ExitPrice  float64        `json:"exit_price"`
	// StopLoss is the stop in force when the trade closed.
	StopLoss float64 `json:"stop_loss"`
	// Commission covers both the entry and exit fills.
	Commission float64 `json:"commission"`
	// PnL is the net profit after commission.
	PnL        float64    `json:"pnl"`
	ExitReason ExitReason `json:"exit_reason"`
	Tag        string     `json:"tag,omitempty"`
}

// ReturnPct is the net PnL relative to the entry notional, in percent.
func (t Trade) ReturnPct() float64 {
	notional := float64(t.Size) * t.EntryPrice
	if notional == 0 {
		return 0
	}
	return t.PnL / notional * 100
}

// IsWin returns true for a trade with positive net PnL.
func (t Trade) IsWin() bool {
	return t.PnL > 0
}

// Bars is the number of bars the trade was held.
func (t Trade) Bars() int {
	return t.ExitBar - t.EntryBar
}

// Duration is the wall-clock holding time.
func (t Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// Broker is the account surface a strategy's intents are applied to.
type Broker interface {
	// Cash is the realized balance after commissions.
	Cash() float64
	// Equity is cash plus the open position marked to the last close.
	Equity() float64
	// Position returns the open position, zero when flat.
	Position() core.Position
	// Submit queues an order for the next fill opportunity.
	Submit(req OrderRequest) (*Order, error)
	// UpdateStop replaces the open position's stop.
	UpdateStop(stop float64) error
	// Trades returns the closed trades so far.
	Trades() []Trade
}
