package optimize

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/christophzehentbauerz/trade/internal/core"
	"github.com/christophzehentbauerz/trade/internal/strategy"
)

// Axis is one searched parameter and the values it takes
type Axis struct {
	Name   string    `mapstructure:"name" json:"name"`
	Values []float64 `mapstructure:"values" json:"values"`
}

// Grid is an ordered list of axes. The first axis varies slowest.
type Grid []Axis

// Setting is one parameter assignment within a combination
type Setting struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Combination is one grid point, settings in axis order
type Combination []Setting

func (c Combination) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = fmt.Sprintf("%s=%g", s.Name, s.Value)
	}
	return strings.Join(parts, " ")
}

// DefaultGrid returns the research search space
func DefaultGrid() Grid {
	return Grid{
		{Name: strategy.ParamRiskFraction, Values: []float64{0.01, 0.02, 0.03}},
		{Name: strategy.ParamATRWindow, Values: []float64{14}},
		{Name: strategy.ParamATRMultiplier, Values: []float64{3, 4, 5}},
		{Name: strategy.ParamTrendWindow, Values: []float64{200, 800}},
		{Name: strategy.ParamChannelWindow, Values: []float64{50, 100}},
		{Name: strategy.ParamADXThreshold, Values: []float64{20, 25}},
	}
}

// GridFromMap builds a grid from a config map. Known parameters come first
// in their canonical order, anything else follows sorted so Validate can
// report it.
func GridFromMap(m map[string][]float64) Grid {
	var grid Grid
	seen := make(map[string]bool, len(m))
	for _, name := range strategy.ParamNames() {
		if values, ok := m[name]; ok {
			grid = append(grid, Axis{Name: name, Values: values})
			seen[name] = true
		}
	}

	var rest []string
	for name := range m {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		grid = append(grid, Axis{Name: name, Values: m[name]})
	}
	return grid
}

// Validate rejects empty grids, empty axes, duplicate and unknown names
func (g Grid) Validate() error {
	if len(g) == 0 {
		return core.WrapError(core.ErrInvalidParams, fmt.Errorf("grid has no axes"))
	}
	known := strategy.ParamNames()
	seen := make(map[string]bool, len(g))
	for _, axis := range g {
		if !slices.Contains(known, axis.Name) {
			return core.WrapError(core.ErrInvalidParams, fmt.Errorf("unknown parameter %q", axis.Name))
		}
		if seen[axis.Name] {
			return core.WrapError(core.ErrInvalidParams, fmt.Errorf("duplicate axis %q", axis.Name))
		}
		seen[axis.Name] = true
		if len(axis.Values) == 0 {
			return core.WrapError(core.ErrInvalidParams, fmt.Errorf("axis %q has no values", axis.Name))
		}
	}
	return nil
}

// Size is the number of grid points
func (g Grid) Size() int {
	if len(g) == 0 {
		return 0
	}
	n := 1
	for _, axis := range g {
		n *= len(axis.Values)
	}
	return n
}

// Combinations enumerates the Cartesian product with the last axis
// varying fastest
func (g Grid) Combinations() []Combination {
	size := g.Size()
	if size == 0 {
		return nil
	}

	combos := make([]Combination, 0, size)
	idx := make([]int, len(g))
	for {
		c := make(Combination, len(g))
		for a, axis := range g {
			c[a] = Setting{Name: axis.Name, Value: axis.Values[idx[a]]}
		}
		combos = append(combos, c)

		a := len(g) - 1
		for ; a >= 0; a-- {
			idx[a]++
			if idx[a] < len(g[a].Values) {
				break
			}
			idx[a] = 0
		}
		if a < 0 {
			return combos
		}
	}
}

// Apply returns base with every setting of c applied
func Apply(base strategy.Params, c Combination) (strategy.Params, error) {
	p := base
	for _, s := range c {
		var err error
		if p, err = p.With(s.Name, s.Value); err != nil {
			return base, err
		}
	}
	return p, nil
}
