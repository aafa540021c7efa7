package optimization

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// LoopState is the append-only record of every evaluated point and its
// observed outputs, in evaluation order. It has exactly one writer (the
// loop) and any number of concurrent readers; reads observe a consistent
// snapshot because a batch's inputs and outputs are committed together
// under one lock.
type LoopState struct {
	mu sync.RWMutex
	x  [][]float64
	y  [][]float64

	// widths are fixed by the first committed batch.
	xWidth int
	yWidth int
}

// NewLoopState returns an empty state.
func NewLoopState() *LoopState {
	return &LoopState{}
}

// NewLoopStateFrom builds a state pre-populated with already evaluated
// pairs, such as an initial design and its measured outputs.
func NewLoopStateFrom(X, Y [][]float64) (*LoopState, error) {
	s := NewLoopState()
	if err := s.Append(X, Y); err != nil {
		return nil, err
	}
	return s, nil
}

// Append commits a fully evaluated batch. The batch is validated first
// and either committed whole or not at all; rows are copied so callers
// cannot mutate recorded history.
func (s *LoopState) Append(X, Y [][]float64) error {
	if len(X) != len(Y) {
		return NewErrorf(KindDimensionMismatch, "batch has %d inputs but %d outputs", len(X), len(Y))
	}
	if len(X) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	xw, yw := s.xWidth, s.yWidth
	if len(s.x) == 0 {
		xw, yw = len(X[0]), len(Y[0])
		if xw == 0 || yw == 0 {
			return NewError(KindDimensionMismatch, "batch rows must not be empty")
		}
	}
	for i := range X {
		if len(X[i]) != xw {
			return NewErrorf(KindDimensionMismatch, "input row %d has width %d, want %d", i, len(X[i]), xw)
		}
		if len(Y[i]) != yw {
			return NewErrorf(KindDimensionMismatch, "output row %d has width %d, want %d", i, len(Y[i]), yw)
		}
	}

	for i := range X {
		xi := make([]float64, xw)
		copy(xi, X[i])
		yi := make([]float64, yw)
		copy(yi, Y[i])
		s.x = append(s.x, xi)
		s.y = append(s.y, yi)
	}
	s.xWidth, s.yWidth = xw, yw
	return nil
}

// Len returns the number of evaluated points.
func (s *LoopState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.x)
}

// Widths returns the input and output row widths, or zeros while the
// state is still empty.
func (s *LoopState) Widths() (x, y int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.xWidth, s.yWidth
}

// Snapshot returns deep copies of the inputs and outputs in evaluation
// order. Safe to call while a run is in progress.
func (s *LoopState) Snapshot() (X, Y [][]float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	X = make([][]float64, len(s.x))
	Y = make([][]float64, len(s.y))
	for i := range s.x {
		X[i] = append([]float64(nil), s.x[i]...)
		Y[i] = append([]float64(nil), s.y[i]...)
	}
	return X, Y
}

// Matrices returns the recorded inputs and outputs as dense matrices
// for model fitting, or nil matrices if the state is empty.
func (s *LoopState) Matrices() (X, Y *mat.Dense) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.x)
	if n == 0 {
		return nil, nil
	}
	xData := make([]float64, 0, n*s.xWidth)
	yData := make([]float64, 0, n*s.yWidth)
	for i := 0; i < n; i++ {
		xData = append(xData, s.x[i]...)
		yData = append(yData, s.y[i]...)
	}
	return mat.NewDense(n, s.xWidth, xData), mat.NewDense(n, s.yWidth, yData)
}

// Best returns the evaluation with the lowest first output component,
// or false if the state is empty. Outputs are minimized by convention.
func (s *LoopState) Best() (*Solution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.x) == 0 {
		return nil, false
	}
	bestIdx := 0
	bestVal := math.Inf(1)
	for i, yi := range s.y {
		if yi[0] < bestVal {
			bestVal = yi[0]
			bestIdx = i
		}
	}
	return &Solution{
		Parameters: append([]float64(nil), s.x[bestIdx]...),
		Value:      bestVal,
	}, true
}

type statePair struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

type stateDoc struct {
	Evaluations []statePair `json:"evaluations"`
}

// MarshalJSON serializes the state as an ordered list of (x, y) pairs.
func (s *LoopState) MarshalJSON() ([]byte, error) {
	X, Y := s.Snapshot()
	doc := stateDoc{Evaluations: make([]statePair, len(X))}
	for i := range X {
		doc.Evaluations[i] = statePair{X: X[i], Y: Y[i]}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON restores a state from its list-of-pairs form, preserving
// evaluation order.
func (s *LoopState) UnmarshalJSON(data []byte) error {
	var doc stateDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	fresh := NewLoopState()
	for _, p := range doc.Evaluations {
		if err := fresh.Append([][]float64{p.X}, [][]float64{p.Y}); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x, s.y = fresh.x, fresh.y
	s.xWidth, s.yWidth = fresh.xWidth, fresh.yWidth
	return nil
}

// Save writes the state to path atomically: the document is written to
// a temporary file in the same directory and renamed into place, so a
// crash never leaves a truncated state file behind.
func (s *LoopState) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".loopstate-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// LoadLoopState reads a state previously written by Save.
func LoadLoopState(path string) (*LoopState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := NewLoopState()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}
