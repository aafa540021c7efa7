// Package acquisition provides scoring functions over candidate points.
// Each function is bound to a Model at construction and implements the
// loop's AcquisitionFunction interface; higher scores mark points more
// valuable to evaluate next. All functions assume outputs are being
// minimized, matching the loop state's best-value convention.
package acquisition

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"seqopt/internal/optimization"
)

// sigmaFloor is the standard deviation below which a prediction is
// treated as certain.
const sigmaFloor = 1e-10

// predictPoint queries the model at a single encoded point.
func predictPoint(m optimization.Model, x []float64) (mu, sigma float64, err error) {
	X := mat.NewDense(1, len(x), x)
	mean, variance, err := m.Predict(X)
	if err != nil {
		return 0, 0, err
	}
	return mean.AtVec(0), math.Sqrt(math.Max(0, variance.AtVec(0))), nil
}
