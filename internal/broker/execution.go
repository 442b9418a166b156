package broker

import (
	"errors"
	"fmt"

	"github.com/christophzehentbauerz/trade/internal/strategy"
	"go.uber.org/zap"
)

// Execution-related errors.
var (
	// ErrUnknownIntent indicates an intent kind the executor cannot map.
	ErrUnknownIntent = errors.New("execution: unknown intent")
)

// ExecuteResult represents the outcome of applying one intent.
type ExecuteResult struct {
	// Intent is the strategy request that was applied.
	Intent strategy.Intent
	// Order is the queued order for entries, nil for stop adjustments.
	Order *Order
	// Err is set when the broker refused the intent.
	Err error
}

// Executor translates strategy intents into broker calls.
type Executor struct {
	broker Broker
	logger *zap.Logger

	rejected int
}

// NewExecutor creates an Executor for the given broker.
func NewExecutor(broker Broker, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		broker: broker,
		logger: logger,
	}
}

// Execute applies intents in order. A refused intent is logged and counted;
// it never stops the remaining intents from being applied.
func (e *Executor) Execute(intents []strategy.Intent) []ExecuteResult {
	if len(intents) == 0 {
		return nil
	}
	results := make([]ExecuteResult, 0, len(intents))
	for _, in := range intents {
		res := ExecuteResult{Intent: in}
		res.Order, res.Err = e.apply(in)
		if res.Err != nil {
			e.rejected++
			e.logger.Warn("intent rejected by broker",
				zap.String("kind", string(in.Kind)),
				zap.Int64("size", in.Size),
				zap.Float64("stop_loss", in.StopLoss),
				zap.Error(res.Err),
			)
		}
		results = append(results, res)
	}
	return results
}

func (e *Executor) apply(in strategy.Intent) (*Order, error) {
	switch in.Kind {
	case strategy.IntentEnterLong:
		return e.broker.Submit(OrderRequest{
			Side:     OrderSideBuy,
			Type:     OrderTypeMarket,
			Quantity: in.Size,
			StopLoss: in.StopLoss,
			Tag:      in.Reason,
		})
	case strategy.IntentEnterShort:
		return e.broker.Submit(OrderRequest{
			Side:     OrderSideSell,
			Type:     OrderTypeMarket,
			Quantity: in.Size,
			StopLoss: in.StopLoss,
			Tag:      in.Reason,
		})
	case strategy.IntentAdjustStop:
		return nil, e.broker.UpdateStop(in.StopLoss)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, in.Kind)
	}
}

// Rejected is the number of intents the broker refused.
func (e *Executor) Rejected() int {
	return e.rejected
}
