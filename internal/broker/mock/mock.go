// Package mock provides a recording broker for strategy and engine tests.
package mock

import (
	"sync"

	"github.com/christophzehentbauerz/trade/internal/broker"
	"github.com/christophzehentbauerz/trade/internal/core"
)

// MockBroker implements broker.Broker by recording every call. Submitted
// orders are never filled; tests set the position and equity directly.
type MockBroker struct {
	mu       sync.RWMutex
	cash     float64
	equity   float64
	position core.Position
	requests []broker.OrderRequest
	stops    []float64
	trades   []broker.Trade
	orderID  int64

	submitErr error
	stopErr   error
}

// New creates a mock broker holding the given cash.
func New(cash float64) *MockBroker {
	return &MockBroker{
		cash:   cash,
		equity: cash,
	}
}

// Cash returns the configured cash.
func (m *MockBroker) Cash() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cash
}

// Equity returns the configured equity.
func (m *MockBroker) Equity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equity
}

// Position returns the configured position.
func (m *MockBroker) Position() core.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.position
}

// Submit records the request and returns a pending order.
func (m *MockBroker) Submit(req broker.OrderRequest) (*broker.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	m.orderID++
	m.requests = append(m.requests, req)
	return &broker.Order{
		ID:        m.orderID,
		Request:   req,
		Status:    broker.OrderStatusPending,
		FilledBar: -1,
	}, nil
}

// UpdateStop records the new stop and applies it to the open position.
func (m *MockBroker) UpdateStop(stop float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopErr != nil {
		return m.stopErr
	}
	if !m.position.IsOpen() {
		return broker.ErrPositionNotFound
	}
	m.stops = append(m.stops, stop)
	m.position.StopLoss = stop
	return nil
}

// Trades returns the trades added with AddTrade.
func (m *MockBroker) Trades() []broker.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]broker.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// Requests returns every accepted order request.
func (m *MockBroker) Requests() []broker.OrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]broker.OrderRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Stops returns every accepted stop update.
func (m *MockBroker) Stops() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float64, len(m.stops))
	copy(out, m.stops)
	return out
}

// SetPosition sets the position for testing.
func (m *MockBroker) SetPosition(pos core.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = pos
}

// SetEquity sets the equity for testing.
func (m *MockBroker) SetEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = equity
}

// AddTrade adds a trade for testing.
func (m *MockBroker) AddTrade(trade broker.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
}

// SetSubmitError makes Submit fail with err.
func (m *MockBroker) SetSubmitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

// SetStopError makes UpdateStop fail with err.
func (m *MockBroker) SetStopError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr = err
}
