package acquisition

import (
	"math"

	"seqopt/internal/optimization"
)

// UpperConfidenceBound scores a point by the negated lower confidence
// bound beta*sigma - mu, so points with low predicted value or high
// uncertainty rank highest under minimization.
type UpperConfidenceBound struct {
	model optimization.Model
	// beta weights the uncertainty term; larger values explore more.
	beta float64
}

// NewUpperConfidenceBound creates a confidence-bound function bound to
// model with the given exploration weight.
func NewUpperConfidenceBound(model optimization.Model, beta float64) (*UpperConfidenceBound, error) {
	if model == nil {
		return nil, optimization.NewError(optimization.KindInvalidValue, "confidence bound needs a model")
	}
	if beta <= 0 || math.IsNaN(beta) {
		return nil, optimization.NewErrorf(optimization.KindInvalidValue, "beta %v must be positive", beta)
	}
	return &UpperConfidenceBound{model: model, beta: beta}, nil
}

// Evaluate implements the AcquisitionFunction interface.
func (u *UpperConfidenceBound) Evaluate(x []float64) (float64, error) {
	mu, sigma, err := predictPoint(u.model, x)
	if err != nil {
		return 0, err
	}
	return u.beta*sigma - mu, nil
}

// Beta returns the exploration weight.
func (u *UpperConfidenceBound) Beta() float64 { return u.beta }
