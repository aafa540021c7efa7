package space

import (
	"math/rand"

	"seqopt/internal/optimization"
)

// Space is an ordered collection of parameters defining the search
// domain. Parameter order fixes the layout of encoded vectors: each
// parameter owns a contiguous block starting at its offset.
type Space struct {
	params  []Parameter
	index   map[string]int
	offsets []int
	width   int
}

// New constructs a space from the given parameters. Names must be
// unique within the space.
func New(params ...Parameter) (*Space, error) {
	if len(params) == 0 {
		return nil, optimization.NewError(optimization.KindInvalidValue, "space needs at least one parameter")
	}
	s := &Space{
		params:  append([]Parameter(nil), params...),
		index:   make(map[string]int, len(params)),
		offsets: make([]int, len(params)),
	}
	for i, p := range s.params {
		if _, dup := s.index[p.Name()]; dup {
			return nil, optimization.NewErrorf(optimization.KindInvalidValue, "duplicate parameter name %q", p.Name())
		}
		s.index[p.Name()] = i
		s.offsets[i] = s.width
		s.width += p.Width()
	}
	return s, nil
}

// Width is the total encoded vector width.
func (s *Space) Width() int { return s.width }

// Len is the number of parameters.
func (s *Space) Len() int { return len(s.params) }

// Parameters returns the parameters in declaration order.
func (s *Space) Parameters() []Parameter {
	return append([]Parameter(nil), s.params...)
}

// Parameter returns the named parameter, or false if absent.
func (s *Space) Parameter(name string) (Parameter, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.params[i], true
}

// Offset returns the vector offset of the named parameter's block, or
// false if absent.
func (s *Space) Offset(name string) (int, bool) {
	i, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.offsets[i], true
}

// Encode converts a complete named-value map into an encoded vector.
// Every parameter must be present and every value feasible; unknown
// names are rejected rather than ignored.
func (s *Space) Encode(values map[string]interface{}) ([]float64, error) {
	for name := range values {
		if _, ok := s.index[name]; !ok {
			return nil, optimization.NewErrorf(optimization.KindUnknownParameter, "no parameter named %q", name)
		}
	}
	vec := make([]float64, 0, s.width)
	for _, p := range s.params {
		v, ok := values[p.Name()]
		if !ok {
			return nil, optimization.NewErrorf(optimization.KindInvalidValue, "missing value for parameter %q", p.Name())
		}
		block, err := p.Encode(v)
		if err != nil {
			return nil, err
		}
		vec = append(vec, block...)
	}
	return vec, nil
}

// Decode converts an encoded vector back into a named-value map.
func (s *Space) Decode(vec []float64) (map[string]interface{}, error) {
	if len(vec) != s.width {
		return nil, optimization.NewErrorf(optimization.KindDimensionMismatch, "vector width %d, want %d", len(vec), s.width)
	}
	values := make(map[string]interface{}, len(s.params))
	for i, p := range s.params {
		block := vec[s.offsets[i] : s.offsets[i]+p.Width()]
		v, err := p.Decode(block)
		if err != nil {
			return nil, err
		}
		values[p.Name()] = v
	}
	return values, nil
}

// Validate checks that vec is a fully feasible encoded point.
func (s *Space) Validate(vec []float64) error {
	if len(vec) != s.width {
		return optimization.NewErrorf(optimization.KindDimensionMismatch, "vector width %d, want %d", len(vec), s.width)
	}
	for i, p := range s.params {
		block := vec[s.offsets[i] : s.offsets[i]+p.Width()]
		if err := p.Validate(block); err != nil {
			return err
		}
	}
	return nil
}

// Without returns a new space omitting the named parameters, keeping
// the relative order of the rest. Removing every parameter returns a
// nil space and no error; the caller decides whether a fully fixed
// problem is still feasible.
func (s *Space) Without(names ...string) (*Space, error) {
	drop := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := s.index[name]; !ok {
			return nil, optimization.NewErrorf(optimization.KindUnknownParameter, "no parameter named %q", name)
		}
		drop[name] = struct{}{}
	}
	kept := make([]Parameter, 0, len(s.params)-len(drop))
	for _, p := range s.params {
		if _, gone := drop[p.Name()]; !gone {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	return New(kept...)
}

// Sample draws one uniformly random encoded point.
func (s *Space) Sample(rng *rand.Rand) []float64 {
	vec := make([]float64, 0, s.width)
	for _, p := range s.params {
		vec = append(vec, p.Sample(rng)...)
	}
	return vec
}

// Repair snaps a relaxed vector onto the nearest feasible point,
// block by block. Used on inner-optimizer outputs before validation.
func (s *Space) Repair(vec []float64) ([]float64, error) {
	if len(vec) != s.width {
		return nil, optimization.NewErrorf(optimization.KindDimensionMismatch, "vector width %d, want %d", len(vec), s.width)
	}
	out := make([]float64, 0, s.width)
	for i, p := range s.params {
		block := vec[s.offsets[i] : s.offsets[i]+p.Width()]
		out = append(out, p.Repair(block)...)
	}
	return out, nil
}

// Bounds returns per-entry box bounds for the full encoded vector.
func (s *Space) Bounds() [][2]float64 {
	b := make([][2]float64, 0, s.width)
	for _, p := range s.params {
		b = append(b, p.Bounds()...)
	}
	return b
}
