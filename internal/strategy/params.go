package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/christophzehentbauerz/trade/internal/core"
)

// Params is the immutable configuration record for one evaluation run.
// Pass it by value; nothing in a run mutates it.
type Params struct {
	ATRWindow     int     `mapstructure:"n_atr" json:"n_atr"`
	ATRMultiplier float64 `mapstructure:"atr_multiplier" json:"atr_multiplier"`
	TrendWindow   int     `mapstructure:"ma_period" json:"ma_period"`
	ChannelWindow int     `mapstructure:"donchian_period" json:"donchian_period"`
	ADXWindow     int     `mapstructure:"adx_period" json:"adx_period"`
	ADXThreshold  float64 `mapstructure:"adx_threshold" json:"adx_threshold"`
	RiskFraction  float64 `mapstructure:"risk_per_trade" json:"risk_per_trade"`
}

// Parameter names used by config files and optimizer grids
const (
	ParamATRWindow     = "n_atr"
	ParamATRMultiplier = "atr_multiplier"
	ParamTrendWindow   = "ma_period"
	ParamChannelWindow = "donchian_period"
	ParamADXWindow     = "adx_period"
	ParamADXThreshold  = "adx_threshold"
	ParamRiskFraction  = "risk_per_trade"
)

// Preset names
const (
	PresetRiskManaged      = "risk_managed"
	PresetFinalLowDrawdown = "final_low_drawdown"
)

var presets = map[string]Params{
	PresetRiskManaged: {
		ATRWindow:     14,
		ATRMultiplier: 4.0,
		TrendWindow:   200,
		ChannelWindow: 50,
		ADXWindow:     14,
		ADXThreshold:  25,
		RiskFraction:  0.02,
	},
	PresetFinalLowDrawdown: {
		ATRWindow:     14,
		ATRMultiplier: 4.0,
		TrendWindow:   800,
		ChannelWindow: 100,
		ADXWindow:     14,
		ADXThreshold:  25,
		RiskFraction:  0.01,
	},
}

// DefaultParams returns the low-drawdown preset
func DefaultParams() Params {
	return presets[PresetFinalLowDrawdown]
}

// Preset returns a named parameter set
func Preset(name string) (Params, error) {
	p, ok := presets[name]
	if !ok {
		return Params{}, core.WrapError(core.ErrUnknownPreset, fmt.Errorf("%q", name))
	}
	return p, nil
}

// PresetNames lists the known presets in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamNames lists every settable parameter name
func ParamNames() []string {
	return []string{
		ParamRiskFraction,
		ParamATRWindow,
		ParamATRMultiplier,
		ParamTrendWindow,
		ParamChannelWindow,
		ParamADXWindow,
		ParamADXThreshold,
	}
}

// With returns a copy of p with the named parameter set to v.
// Window parameters must be whole numbers.
func (p Params) With(name string, v float64) (Params, error) {
	window := func() (int, error) {
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, core.WrapError(core.ErrInvalidParams, fmt.Errorf("%s must be a whole number, got %v", name, v))
		}
		return int(v), nil
	}

	var err error
	switch name {
	case ParamATRWindow:
		p.ATRWindow, err = window()
	case ParamTrendWindow:
		p.TrendWindow, err = window()
	case ParamChannelWindow:
		p.ChannelWindow, err = window()
	case ParamADXWindow:
		p.ADXWindow, err = window()
	case ParamATRMultiplier:
		p.ATRMultiplier = v
	case ParamADXThreshold:
		p.ADXThreshold = v
	case ParamRiskFraction:
		p.RiskFraction = v
	default:
		err = core.WrapError(core.ErrInvalidParams, fmt.Errorf("unknown parameter %q", name))
	}
	return p, err
}

// Values returns the parameters keyed by name
func (p Params) Values() map[string]float64 {
	return map[string]float64{
		ParamATRWindow:     float64(p.ATRWindow),
		ParamATRMultiplier: p.ATRMultiplier,
		ParamTrendWindow:   float64(p.TrendWindow),
		ParamChannelWindow: float64(p.ChannelWindow),
		ParamADXWindow:     float64(p.ADXWindow),
		ParamADXThreshold:  p.ADXThreshold,
		ParamRiskFraction:  p.RiskFraction,
	}
}

// MaxWindow is the longest lookback any indicator uses
func (p Params) MaxWindow() int {
	return max(p.ATRWindow, p.TrendWindow, p.ChannelWindow, p.ADXWindow)
}

// Validate checks the parameters for values no run can use
func (p Params) Validate() error {
	windows := []struct {
		name string
		v    int
	}{
		{ParamATRWindow, p.ATRWindow},
		{ParamTrendWindow, p.TrendWindow},
		{ParamChannelWindow, p.ChannelWindow},
		{ParamADXWindow, p.ADXWindow},
	}
	for _, w := range windows {
		if w.v < 1 {
			return core.WrapError(core.ErrInvalidParams, fmt.Errorf("%s must be at least 1, got %d", w.name, w.v))
		}
	}
	if !(p.ATRMultiplier > 0) {
		return core.WrapError(core.ErrInvalidParams, fmt.Errorf("%s must be positive, got %v", ParamATRMultiplier, p.ATRMultiplier))
	}
	if !(p.RiskFraction > 0 && p.RiskFraction <= 1) {
		return core.WrapError(core.ErrInvalidParams, fmt.Errorf("%s must be in (0, 1], got %v", ParamRiskFraction, p.RiskFraction))
	}
	if p.ADXThreshold < 0 || p.ADXThreshold > 100 {
		return core.WrapError(core.ErrInvalidParams, fmt.Errorf("%s must be in [0, 100], got %v", ParamADXThreshold, p.ADXThreshold))
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("risk=%.4g atr=%d×%.4g ma=%d donchian=%d adx=%d>%.4g",
		p.RiskFraction, p.ATRWindow, p.ATRMultiplier, p.TrendWindow, p.ChannelWindow, p.ADXWindow, p.ADXThreshold)
}
