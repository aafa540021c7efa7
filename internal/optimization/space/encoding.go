package space

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"seqopt/internal/optimization"
)

// encTol is the tolerance used when matching encoded entries against
// their exact values.
const encTol = 1e-9

// Encoding maps a category index to and from a fixed-width numeric
// block. It defines a bijection between the n category indices and n
// distinct valid blocks.
type Encoding interface {
	// Width returns the block width for n categories.
	Width(n int) int

	// Encode returns the block for category index i of n.
	Encode(i, n int) []float64

	// Decode returns the category index held by block.
	Decode(block []float64, n int) (int, error)

	// Validate checks that block is exactly one of the n valid blocks.
	Validate(block []float64, n int) error

	// Repair snaps a relaxed block onto the nearest valid block.
	Repair(block []float64, n int) []float64

	// Bounds returns per-entry box bounds for n categories.
	Bounds(n int) [][2]float64
}

// OneHot encodes category i of n as the indicator vector with a 1 at
// position i. Decoding is strict: a block must hold exactly one entry
// equal to 1 and zeros elsewhere, so malformed vectors are rejected
// rather than argmaxed through noise. Relaxed optimizer outputs go
// through Repair, which snaps to the highest entry and breaks ties
// toward the lowest index.
type OneHot struct{}

func (OneHot) Width(n int) int { return n }

func (OneHot) Encode(i, n int) []float64 {
	block := make([]float64, n)
	block[i] = 1
	return block
}

func (OneHot) Decode(block []float64, n int) (int, error) {
	if len(block) != n {
		return 0, optimization.NewErrorf(optimization.KindDimensionMismatch, "one-hot block width %d, want %d", len(block), n)
	}
	hot := -1
	for i, v := range block {
		switch {
		case math.Abs(v-1) <= encTol:
			if hot >= 0 {
				return 0, optimization.NewErrorf(optimization.KindInvalidEncoding, "one-hot block has multiple active entries (%d and %d)", hot, i)
			}
			hot = i
		case math.Abs(v) <= encTol:
			// inactive entry
		default:
			return 0, optimization.NewErrorf(optimization.KindInvalidEncoding, "one-hot block entry %d is %v, want 0 or 1", i, v)
		}
	}
	if hot < 0 {
		return 0, optimization.NewError(optimization.KindInvalidEncoding, "one-hot block has no active entry")
	}
	return hot, nil
}

func (e OneHot) Validate(block []float64, n int) error {
	_, err := e.Decode(block, n)
	return err
}

func (e OneHot) Repair(block []float64, n int) []float64 {
	if len(block) != n {
		return e.Encode(0, n)
	}
	// floats.MaxIdx returns the first index on ties, which gives the
	// documented lowest-index tie-break.
	cleaned := make([]float64, n)
	for i, v := range block {
		if math.IsNaN(v) {
			cleaned[i] = math.Inf(-1)
		} else {
			cleaned[i] = v
		}
	}
	return e.Encode(floats.MaxIdx(cleaned), n)
}

func (OneHot) Bounds(n int) [][2]float64 {
	b := make([][2]float64, n)
	for i := range b {
		b[i] = [2]float64{0, 1}
	}
	return b
}

// Ordinal encodes category i as the scalar i. Valid blocks hold an
// exact integer index; Decode additionally accepts relaxed scalars by
// rounding to the nearest index and clamping into range.
type Ordinal struct{}

func (Ordinal) Width(int) int { return 1 }

func (Ordinal) Encode(i, _ int) []float64 {
	return []float64{float64(i)}
}

func (Ordinal) Decode(block []float64, n int) (int, error) {
	if len(block) != 1 {
		return 0, optimization.NewErrorf(optimization.KindDimensionMismatch, "ordinal block width %d, want 1", len(block))
	}
	v := block[0]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, optimization.NewErrorf(optimization.KindInvalidEncoding, "ordinal block entry %v is not finite", v)
	}
	i := int(math.Round(v))
	if i < 0 {
		i = 0
	}
	if i > n-1 {
		i = n - 1
	}
	return i, nil
}

func (Ordinal) Validate(block []float64, n int) error {
	if len(block) != 1 {
		return optimization.NewErrorf(optimization.KindDimensionMismatch, "ordinal block width %d, want 1", len(block))
	}
	v := block[0]
	i := math.Round(v)
	if math.IsNaN(v) || math.Abs(v-i) > encTol || i < 0 || i > float64(n-1) {
		return optimization.NewErrorf(optimization.KindInvalidEncoding, "ordinal block entry %v is not an index in [0, %d]", v, n-1)
	}
	return nil
}

func (e Ordinal) Repair(block []float64, n int) []float64 {
	i, err := e.Decode(block, n)
	if err != nil {
		return e.Encode(0, n)
	}
	return e.Encode(i, n)
}

func (Ordinal) Bounds(n int) [][2]float64 {
	return [][2]float64{{0, float64(n - 1)}}
}
