// Package design provides model-free samplers that produce the initial
// evaluation points for an optimization run.
package design

import (
	"math/rand"
	"time"

	"seqopt/internal/optimization"
	"seqopt/internal/optimization/space"
)

// Design samples count encoded points from a space. Implementations
// consume only their injected random source, so a fixed seed yields a
// reproducible design.
type Design interface {
	Sample(s *space.Space, count int) ([][]float64, error)
}

func newRNG(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// RandomDesign draws every point independently and uniformly within the
// space's bounds and categories.
type RandomDesign struct {
	rng *rand.Rand
}

// NewRandom returns a uniform random design. A nil rng is replaced by a
// time-seeded source.
func NewRandom(rng *rand.Rand) *RandomDesign {
	return &RandomDesign{rng: newRNG(rng)}
}

func (d *RandomDesign) Sample(s *space.Space, count int) ([][]float64, error) {
	if s == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "design needs a space")
	}
	if count <= 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "design count %d must be positive", count)
	}
	rows := make([][]float64, count)
	for i := range rows {
		rows[i] = s.Sample(d.rng)
	}
	return rows, nil
}

// LatinDesign produces a Latin hypercube design: every scalar dimension
// is split into count strata and each stratum is used exactly once, in
// a random order per dimension. Multi-entry blocks (one-hot categories)
// are sampled uniformly instead, since strata do not apply to them.
type LatinDesign struct {
	rng *rand.Rand
}

// NewLatin returns a Latin hypercube design. A nil rng is replaced by a
// time-seeded source.
func NewLatin(rng *rand.Rand) *LatinDesign {
	return &LatinDesign{rng: newRNG(rng)}
}

func (d *LatinDesign) Sample(s *space.Space, count int) ([][]float64, error) {
	if s == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "design needs a space")
	}
	if count <= 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "design count %d must be positive", count)
	}

	rows := make([][]float64, count)
	for i := range rows {
		rows[i] = make([]float64, 0, s.Width())
	}

	for _, p := range s.Parameters() {
		if p.Width() != 1 {
			for i := 0; i < count; i++ {
				rows[i] = append(rows[i], p.Sample(d.rng)...)
			}
			continue
		}

		// One stratum per point, shuffled so strata pair up randomly
		// across dimensions. Repair snaps stratified draws onto
		// discrete and ordinal grids.
		b := p.Bounds()[0]
		span := b[1] - b[0]
		perm := d.rng.Perm(count)
		for i := 0; i < count; i++ {
			low := b[0] + span*float64(perm[i])/float64(count)
			high := b[0] + span*float64(perm[i]+1)/float64(count)
			v := low + d.rng.Float64()*(high-low)
			rows[i] = append(rows[i], p.Repair([]float64{v})...)
		}
	}
	return rows, nil
}
