package acquisition

import (
	"gonum.org/v1/gonum/stat/distuv"

	"seqopt/internal/optimization"
)

// ProbabilityOfImprovement scores a point by the posterior probability
// that it improves on the best observed value by at least xi.
type ProbabilityOfImprovement struct {
	model optimization.Model
	state *optimization.LoopState
	xi    float64
}

// NewProbabilityOfImprovement creates a probability-of-improvement
// function bound to model, reading the best observed value from state.
func NewProbabilityOfImprovement(model optimization.Model, state *optimization.LoopState, xi float64) (*ProbabilityOfImprovement, error) {
	if model == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "probability of improvement needs a model")
	}
	if state == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "probability of improvement needs a loop state")
	}
	if xi < 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "xi %v must be non-negative", xi)
	}
	return &ProbabilityOfImprovement{model: model, state: state, xi: xi}, nil
}

// Evaluate implements the AcquisitionFunction interface. With nothing
// observed yet it falls back to pure exploration and returns sigma.
func (pi *ProbabilityOfImprovement) Evaluate(x []float64) (float64, error) {
	mu, sigma, err := predictPoint(pi.model, x)
	if err != nil {
		return 0, err
	}
	sol, ok := pi.state.Best()
	if !ok {
		return sigma, nil
	}

	improvement := sol.Value - mu - pi.xi
	if sigma <= sigmaFloor {
		if improvement > 0 {
			return 1, nil
		}
		return 0, nil
	}
	return distuv.UnitNormal.CDF(improvement / sigma), nil
}
