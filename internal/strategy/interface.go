package strategy

import (
	"github.com/christophzehentbauerz/trade/internal/core"
)

// IntentKind is what a strategy asks the execution engine to do
type IntentKind string

const (
	IntentEnterLong  IntentKind = "enter_long"
	IntentEnterShort IntentKind = "enter_short"
	IntentAdjustStop IntentKind = "adjust_stop"
)

// Intent is a request emitted by a strategy. Strategies never mutate
// position state; the execution engine applies intents.
type Intent struct {
	Kind     IntentKind
	Size     int64   // units, entries only
	StopLoss float64 // initial stop for entries, new stop for adjustments
	Reason   string
}

// Snapshot is the execution engine state a strategy sees at one bar close
type Snapshot struct {
	Index    int
	Bar      core.Bar
	Equity   float64
	Position core.Position
}

// Strategy defines the per-bar decision interface
type Strategy interface {
	Name() string
	Description() string
	// Warmup is the number of bars that must have elapsed before Next acts.
	Warmup() int
	// Init precomputes indicators over the full series. Next must only read
	// values at or before the snapshot index.
	Init(bars []core.Bar) error
	Next(s Snapshot) []Intent
}
