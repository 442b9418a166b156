package core

import (
	"fmt"
	"time"
)

// Bar represents a single OHLCV candlestick
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Direction represents the side of a position or order
type Direction int

const (
	Flat Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Sign returns +1 for long, -1 for short and 0 when flat
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// Position is a read-only view of the single open position.
// A zero Position is flat.
type Position struct {
	Direction  Direction
	Size       int64
	EntryPrice float64
	EntryTime  time.Time
	EntryBar   int
	StopLoss   float64
}

// IsOpen returns true if the position holds any units
func (p Position) IsOpen() bool {
	return p.Direction != Flat && p.Size > 0
}

// IsLong returns true if this is a long position.
func (p Position) IsLong() bool {
	return p.IsOpen() && p.Direction == Long
}

// IsShort returns true if this is a short position.
func (p Position) IsShort() bool {
	return p.IsOpen() && p.Direction == Short
}

// Closes extracts the close column
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high column
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low column
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// ValidateBars checks that a series is non-empty and strictly time ordered.
// OHLC consistency is not checked.
func ValidateBars(bars []Bar) error {
	if len(bars) == 0 {
		return ErrNoData
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return WrapError(ErrInvalidData,
				fmt.Errorf("bar %d at %s is not after %s", i, bars[i].Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339)))
		}
	}
	return nil
}
