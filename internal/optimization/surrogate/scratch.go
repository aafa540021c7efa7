package surrogate

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// predictScratch holds the per-call work buffers of Predict. Candidate
// selection evaluates the acquisition thousands of times per iteration,
// mostly on single rows against the same training set, so reusing these
// buffers keeps the hot path off the allocator.
type predictScratch struct {
	kss   []float64
	kstar *mat.Dense
	v     *mat.Dense
}

// predictScratchPool is a sync.Pool of predictScratch values, sized on
// the way out. Pooling (rather than a buffer on the GP) keeps Predict
// safe for the selector's parallel restarts.
type predictScratchPool struct {
	pool sync.Pool
}

func (p *predictScratchPool) get(nTest, nTrain int) *predictScratch {
	s, _ := p.pool.Get().(*predictScratch)
	if s == nil {
		s = &predictScratch{}
	}
	if cap(s.kss) < nTest {
		s.kss = make([]float64, nTest)
	}
	s.kss = s.kss[:nTest]

	if s.kstar == nil || !dimsMatch(s.kstar, nTest, nTrain) {
		s.kstar = mat.NewDense(nTest, nTrain, nil)
	}
	if s.v == nil || !dimsMatch(s.v, nTrain, nTest) {
		s.v = mat.NewDense(nTrain, nTest, nil)
	}
	return s
}

func (p *predictScratchPool) put(s *predictScratch) {
	p.pool.Put(s)
}

func dimsMatch(m *mat.Dense, r, c int) bool {
	mr, mc := m.Dims()
	return mr == r && mc == c
}
