package optimization

import (
	"gonum.org/v1/gonum/mat"
)

// Model is the surrogate consumed by the optimization loop. Concrete
// implementations live in their own packages and are swapped in at
// construction time; the loop only needs prediction and refitting.
type Model interface {
	// Predict returns the predictive mean and variance for each row of X.
	Predict(X *mat.Dense) (mean, variance *mat.VecDense, err error)

	// Update refits or incrementally updates the model with the full
	// evaluation record. A non-nil error aborts the current run.
	Update(state *LoopState) error
}

// AcquisitionFunction scores a single encoded point. Higher scores mark
// points more valuable to evaluate next. Implementations are bound to a
// specific Model instance at construction.
type AcquisitionFunction interface {
	Evaluate(x []float64) (float64, error)
}

// Objective evaluates a batch of full-width encoded vectors and returns
// one output row per input row. Any error discards the whole batch.
type Objective func(X [][]float64) ([][]float64, error)

// ScalarFunc is a single-point, single-output objective.
type ScalarFunc func(x []float64) (float64, error)

// SingleObjective lifts a scalar function into a batch Objective,
// evaluating rows in order and failing fast on the first error.
func SingleObjective(f ScalarFunc) Objective {
	return func(X [][]float64) ([][]float64, error) {
		Y := make([][]float64, len(X))
		for i, x := range X {
			v, err := f(x)
			if err != nil {
				return nil, WrapErrorf(KindObjectiveEvaluationFailure, err, "objective failed on row %d", i)
			}
			Y[i] = []float64{v}
		}
		return Y, nil
	}
}

// Candidate is a point produced by a selector together with the
// acquisition score it achieved.
type Candidate struct {
	X     []float64
	Score float64
}

// Solution represents a single evaluated point in the search space.
type Solution struct {
	Parameters []float64
	Value      float64
}
