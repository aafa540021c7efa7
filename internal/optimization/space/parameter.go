// Package space defines search-space parameters, their numeric
// encodings, and the ordered parameter space the optimization loop
// searches over. Vectors exchanged with models, acquisitions, and
// objectives are flat encodings produced and validated here.
package space

import (
	"math"
	"math/rand"

	"seqopt/internal/optimization"
)

// Parameter is a single tunable dimension. Implementations are
// immutable after construction and owned by the Space that declares
// them.
type Parameter interface {
	// Name identifies the parameter within its space.
	Name() string

	// Width is the number of vector entries the parameter occupies.
	Width() int

	// Bounds returns per-entry box bounds for the encoded block.
	Bounds() [][2]float64

	// Encode converts a named value to its encoded block.
	Encode(value interface{}) ([]float64, error)

	// Decode converts an encoded block back to a value.
	Decode(block []float64) (interface{}, error)

	// Validate checks that block is an exactly feasible encoding.
	Validate(block []float64) error

	// Sample draws one uniformly random encoded block.
	Sample(rng *rand.Rand) []float64

	// Repair snaps a relaxed block onto the nearest feasible encoding.
	// The input is not modified.
	Repair(block []float64) []float64
}

// toFloat64 widens the numeric types a caller may reasonably hand us.
// Anything else is rejected by the parameter's Encode.
func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Continuous is a real-valued parameter on a closed interval.
type Continuous struct {
	name  string
	lower float64
	upper float64
}

// NewContinuous constructs a continuous parameter. The bounds must be
// finite with lower strictly below upper.
func NewContinuous(name string, lower, upper float64) (*Continuous, error) {
	if name == "" {
		return nil, optimization.NewError(optimization.KindInvalidValue, "parameter name must not be empty")
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: bounds must be finite", name)
	}
	if lower >= upper {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: lower bound %v must be below upper bound %v", name, lower, upper)
	}
	return &Continuous{name: name, lower: lower, upper: upper}, nil
}

func (p *Continuous) Name() string { return p.name }

func (p *Continuous) Width() int { return 1 }

func (p *Continuous) Bounds() [][2]float64 {
	return [][2]float64{{p.lower, p.upper}}
}

func (p *Continuous) Encode(value interface{}) ([]float64, error) {
	v, ok := toFloat64(value)
	if !ok {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: value %v is not numeric", p.name, value)
	}
	if err := p.check(v); err != nil {
		return nil, err
	}
	return []float64{v}, nil
}

func (p *Continuous) Decode(block []float64) (interface{}, error) {
	if len(block) != 1 {
		return nil, optimization.NewErrorf(optimization.KindDimensionMismatch, "parameter %q: block width %d, want 1", p.name, len(block))
	}
	if err := p.check(block[0]); err != nil {
		return nil, err
	}
	return block[0], nil
}

func (p *Continuous) Validate(block []float64) error {
	_, err := p.Decode(block)
	return err
}

func (p *Continuous) Sample(rng *rand.Rand) []float64 {
	return []float64{p.lower + rng.Float64()*(p.upper-p.lower)}
}

func (p *Continuous) Repair(block []float64) []float64 {
	v := block[0]
	if math.IsNaN(v) {
		v = p.lower
	}
	return []float64{math.Min(math.Max(v, p.lower), p.upper)}
}

func (p *Continuous) check(v float64) error {
	if math.IsNaN(v) || v < p.lower || v > p.upper {
		return optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: value %v outside [%v, %v]", p.name, v, p.lower, p.upper)
	}
	return nil
}

// Discrete is a numeric parameter restricted to an ordered set of
// allowed values.
type Discrete struct {
	name   string
	values []float64
}

// NewDiscrete constructs a discrete parameter. Values must be finite
// and strictly increasing.
func NewDiscrete(name string, values ...float64) (*Discrete, error) {
	if name == "" {
		return nil, optimization.NewError(optimization.KindInvalidValue, "parameter name must not be empty")
	}
	if len(values) == 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: needs at least one value", name)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: value %v is not finite", name, v)
		}
		if i > 0 && values[i-1] >= v {
			return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: values must be strictly increasing", name)
		}
	}
	return &Discrete{name: name, values: append([]float64(nil), values...)}, nil
}

func (p *Discrete) Name() string { return p.name }

func (p *Discrete) Width() int { return 1 }

// Values returns a copy of the allowed values in order.
func (p *Discrete) Values() []float64 {
	return append([]float64(nil), p.values...)
}

func (p *Discrete) Bounds() [][2]float64 {
	return [][2]float64{{p.values[0], p.values[len(p.values)-1]}}
}

func (p *Discrete) Encode(value interface{}) ([]float64, error) {
	v, ok := toFloat64(value)
	if !ok {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: value %v is not numeric", p.name, value)
	}
	if _, ok := p.indexOf(v); !ok {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: %v is not an allowed value", p.name, v)
	}
	return []float64{v}, nil
}

func (p *Discrete) Decode(block []float64) (interface{}, error) {
	if len(block) != 1 {
		return nil, optimization.NewErrorf(optimization.KindDimensionMismatch, "parameter %q: block width %d, want 1", p.name, len(block))
	}
	i, ok := p.indexOf(block[0])
	if !ok {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: %v is not an allowed value", p.name, block[0])
	}
	return p.values[i], nil
}

func (p *Discrete) Validate(block []float64) error {
	_, err := p.Decode(block)
	return err
}

func (p *Discrete) Sample(rng *rand.Rand) []float64 {
	return []float64{p.values[rng.Intn(len(p.values))]}
}

// Repair snaps to the nearest allowed value, preferring the lower one
// on exact midpoints.
func (p *Discrete) Repair(block []float64) []float64 {
	v := block[0]
	if math.IsNaN(v) {
		return []float64{p.values[0]}
	}
	best := p.values[0]
	bestDist := math.Abs(v - best)
	for _, allowed := range p.values[1:] {
		if d := math.Abs(v - allowed); d < bestDist {
			best, bestDist = allowed, d
		}
	}
	return []float64{best}
}

func (p *Discrete) indexOf(v float64) (int, bool) {
	for i, allowed := range p.values {
		if math.Abs(v-allowed) <= encTol {
			return i, true
		}
	}
	return 0, false
}

// Categorical is a parameter over a fixed ordered set of labels,
// represented numerically through an Encoding.
type Categorical struct {
	name       string
	categories []string
	enc        Encoding
}

// NewCategorical constructs a categorical parameter over the given
// labels. A nil encoding defaults to OneHot.
func NewCategorical(name string, categories []string, enc Encoding) (*Categorical, error) {
	if name == "" {
		return nil, optimization.NewError(optimization.KindInvalidValue, "parameter name must not be empty")
	}
	if len(categories) == 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: needs at least one category", name)
	}
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if _, dup := seen[c]; dup {
			return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: duplicate category %q", name, c)
		}
		seen[c] = struct{}{}
	}
	if enc == nil {
		enc = OneHot{}
	}
	return &Categorical{
		name:       name,
		categories: append([]string(nil), categories...),
		enc:        enc,
	}, nil
}

func (p *Categorical) Name() string { return p.name }

func (p *Categorical) Width() int { return p.enc.Width(len(p.categories)) }

// Categories returns a copy of the labels in declaration order.
func (p *Categorical) Categories() []string {
	return append([]string(nil), p.categories...)
}

func (p *Categorical) Bounds() [][2]float64 {
	return p.enc.Bounds(len(p.categories))
}

func (p *Categorical) Encode(value interface{}) ([]float64, error) {
	label, ok := value.(string)
	if !ok {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: value %v is not a category label", p.name, value)
	}
	for i, c := range p.categories {
		if c == label {
			return p.enc.Encode(i, len(p.categories)), nil
		}
	}
	return nil, optimization.NewErrorf(optimization.KindInvalidValue, "parameter %q: unknown category %q", p.name, label)
}

func (p *Categorical) Decode(block []float64) (interface{}, error) {
	i, err := p.enc.Decode(block, len(p.categories))
	if err != nil {
		return nil, optimization.WrapErrorf(optimization.KindOf(err), err, "parameter %q", p.name)
	}
	return p.categories[i], nil
}

func (p *Categorical) Validate(block []float64) error {
	if err := p.enc.Validate(block, len(p.categories)); err != nil {
		return optimization.WrapErrorf(optimization.KindOf(err), err, "parameter %q", p.name)
	}
	return nil
}

func (p *Categorical) Sample(rng *rand.Rand) []float64 {
	return p.enc.Encode(rng.Intn(len(p.categories)), len(p.categories))
}

func (p *Categorical) Repair(block []float64) []float64 {
	return p.enc.Repair(block, len(p.categories))
}
