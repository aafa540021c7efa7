package space

import (
	"sort"

	"seqopt/internal/optimization"
)

// Context pins a subset of parameters to fixed values for the duration
// of one run. Keys are parameter names; values are either a native
// parameter value (number or category label) or an already encoded
// block for that parameter.
type Context map[string]interface{}

// BoundContext is a Context validated against a concrete space. It
// precomputes the fixed fragments at their full-width offsets so that
// candidates found in the free subspace can be spliced back into
// full-width vectors cheaply.
type BoundContext struct {
	full  *Space
	free  *Space
	names []string

	// template is a full-width vector with fixed blocks filled in;
	// freeIdx maps each free-subspace coordinate to its full-width
	// position.
	template []float64
	freeIdx  []int
}

// Bind validates ctx against s and returns the bound form. A nil or
// empty context binds to the full space with no fixed fragments. Every
// key must name a parameter of s and every value must identify exactly
// one feasible block for it.
func Bind(s *Space, ctx Context) (*BoundContext, error) {
	if s == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "cannot bind a context to a nil space")
	}
	b := &BoundContext{
		full:     s,
		free:     s,
		template: make([]float64, s.Width()),
	}
	if len(ctx) == 0 {
		b.freeIdx = make([]int, s.Width())
		for i := range b.freeIdx {
			b.freeIdx[i] = i
		}
		return b, nil
	}

	names := make([]string, 0, len(ctx))
	for name := range ctx {
		names = append(names, name)
	}
	sort.Strings(names)

	fixed := make(map[string][]float64, len(names))
	for _, name := range names {
		p, ok := s.Parameter(name)
		if !ok {
			return nil, optimization.NewErrorf(optimization.KindUnknownParameter, "context names no parameter %q", name)
		}
		block, err := encodeContextValue(p, ctx[name])
		if err != nil {
			return nil, err
		}
		fixed[name] = block
	}

	free, err := s.Without(names...)
	if err != nil {
		return nil, err
	}
	b.free = free
	b.names = names

	// Lay out the template: fixed blocks at their offsets, and record
	// the full-width position of every free coordinate in order.
	for _, p := range s.Parameters() {
		offset, _ := s.Offset(p.Name())
		if block, isFixed := fixed[p.Name()]; isFixed {
			copy(b.template[offset:offset+p.Width()], block)
			continue
		}
		for j := 0; j < p.Width(); j++ {
			b.freeIdx = append(b.freeIdx, offset+j)
		}
	}
	return b, nil
}

// encodeContextValue turns a context value into the parameter's fixed
// block, accepting either a native value or an encoded fragment.
func encodeContextValue(p Parameter, v interface{}) ([]float64, error) {
	if block, ok := v.([]float64); ok {
		if err := p.Validate(block); err != nil {
			return nil, err
		}
		return append([]float64(nil), block...), nil
	}
	return p.Encode(v)
}

// Space returns the full space the context was bound against.
func (b *BoundContext) Space() *Space { return b.full }

// Free returns the subspace of unfixed parameters, or nil when the
// context fixes every parameter.
func (b *BoundContext) Free() *Space { return b.free }

// FreeWidth is the encoded width of the free subspace.
func (b *BoundContext) FreeWidth() int { return len(b.freeIdx) }

// Names returns the fixed parameter names in sorted order.
func (b *BoundContext) Names() []string {
	return append([]string(nil), b.names...)
}

// Fixed reports whether the context fixes any parameters.
func (b *BoundContext) Fixed() bool { return len(b.names) > 0 }

// Splice reconstitutes a full-width vector from a free-subspace vector
// by inserting the fixed fragments at their original positions.
func (b *BoundContext) Splice(freeVec []float64) ([]float64, error) {
	if len(freeVec) != len(b.freeIdx) {
		return nil, optimization.NewErrorf(optimization.KindDimensionMismatch, "free vector width %d, want %d", len(freeVec), len(b.freeIdx))
	}
	out := append([]float64(nil), b.template...)
	for i, idx := range b.freeIdx {
		out[idx] = freeVec[i]
	}
	return out, nil
}

// Project extracts the free-subspace coordinates from a full-width
// vector, the inverse of Splice on the free dimensions.
func (b *BoundContext) Project(fullVec []float64) ([]float64, error) {
	if len(fullVec) != b.full.Width() {
		return nil, optimization.NewErrorf(optimization.KindDimensionMismatch, "vector width %d, want %d", len(fullVec), b.full.Width())
	}
	out := make([]float64, len(b.freeIdx))
	for i, idx := range b.freeIdx {
		out[i] = fullVec[idx]
	}
	return out, nil
}
