package acquisition

import (
	"gonum.org/v1/gonum/stat/distuv"

	"seqopt/internal/optimization"
)

// ExpectedImprovement scores a point by the expected amount it improves
// on the best observed value, trading exploitation against exploration
// through the predictive variance.
type ExpectedImprovement struct {
	model optimization.Model
	state *optimization.LoopState

	// bestObserved is used only when no state is tracked. hasBest
	// records whether UpdateBest has been called.
	bestObserved float64
	hasBest      bool
	// xi shifts the improvement threshold; larger values explore more.
	xi float64
}

// NewExpectedImprovement creates an Expected Improvement function bound
// to model. When state is non-nil the best observed value is read from
// it at evaluation time, so the function stays current as the loop
// appends observations; otherwise the best must be set with UpdateBest.
func NewExpectedImprovement(model optimization.Model, state *optimization.LoopState, xi float64) (*ExpectedImprovement, error) {
	if model == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "expected improvement needs a model")
	}
	if xi < 0 {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "xi %v must be non-negative", xi)
	}
	return &ExpectedImprovement{
		model: model,
		state: state,
		xi:    xi,
	}, nil
}

// Evaluate implements the AcquisitionFunction interface.
func (ei *ExpectedImprovement) Evaluate(x []float64) (float64, error) {
	mu, sigma, err := predictPoint(ei.model, x)
	if err != nil {
		return 0, err
	}
	return ei.Compute(mu, sigma), nil
}

// Compute returns the expected improvement for a prediction with mean
// mu and standard deviation sigma. With nothing observed yet it falls
// back to pure exploration and returns sigma.
func (ei *ExpectedImprovement) Compute(mu, sigma float64) float64 {
	best, ok := ei.currentBest()
	if !ok {
		return sigma
	}

	improvement := best - mu - ei.xi
	if sigma <= sigmaFloor {
		// Certain prediction: improvement is realized or it is not.
		if improvement <= 0 {
			return 0
		}
		return improvement
	}

	z := improvement / sigma
	stdNormal := distuv.UnitNormal
	return improvement*stdNormal.CDF(z) + sigma*stdNormal.Prob(z)
}

// UpdateBest sets the best observed value for untracked instances.
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	ei.bestObserved = best
	ei.hasBest = true
}

// SetXi sets the exploration parameter.
func (ei *ExpectedImprovement) SetXi(xi float64) {
	ei.xi = xi
}

// BestObserved returns the best value the function currently improves
// against, and whether one exists.
func (ei *ExpectedImprovement) BestObserved() (float64, bool) {
	return ei.currentBest()
}

func (ei *ExpectedImprovement) currentBest() (float64, bool) {
	if ei.state != nil {
		sol, ok := ei.state.Best()
		if !ok {
			return 0, false
		}
		return sol.Value, true
	}
	return ei.bestObserved, ei.hasBest
}
