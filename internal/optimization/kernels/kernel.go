// Package kernels provides covariance functions for Gaussian process
// surrogates.
package kernels

import (
	"fmt"
	"math"
)

// Kernel is a positive-definite covariance function over encoded
// points.
type Kernel interface {
	// Eval computes the kernel value between two points x1 and x2.
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the current hyperparameters.
	Hyperparameters() []float64

	// SetHyperparameters sets the kernel's hyperparameters.
	SetHyperparameters(params []float64) error
}

func sqDist(x1, x2 []float64) float64 {
	sumSq := 0.0
	for i := range x1 {
		diff := x1[i] - x2[i]
		sumSq += diff * diff
	}
	return sumSq
}

func checkScaleVar(lengthScale, signalVar float64) error {
	if lengthScale <= 0 || math.IsNaN(lengthScale) {
		return fmt.Errorf("length scale must be positive, got %v", lengthScale)
	}
	if signalVar <= 0 || math.IsNaN(signalVar) {
		return fmt.Errorf("signal variance must be positive, got %v", signalVar)
	}
	return nil
}

// RBF is the squared-exponential kernel. Larger length scales give
// smoother functions; the signal variance controls amplitude.
type RBF struct {
	lengthScale float64
	signalVar   float64
}

// NewRBF creates an RBF kernel with the given length scale and signal
// variance, both strictly positive.
func NewRBF(lengthScale, signalVar float64) (*RBF, error) {
	if err := checkScaleVar(lengthScale, signalVar); err != nil {
		return nil, err
	}
	return &RBF{lengthScale: lengthScale, signalVar: signalVar}, nil
}

// Eval computes the RBF kernel value between x1 and x2.
func (k *RBF) Eval(x1, x2 []float64) float64 {
	r2 := sqDist(x1, x2) / (2.0 * k.lengthScale * k.lengthScale)
	return k.signalVar * math.Exp(-r2)
}

// Hyperparameters returns {lengthScale, signalVar}.
func (k *RBF) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters sets {lengthScale, signalVar}.
func (k *RBF) SetHyperparameters(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(params))
	}
	if err := checkScaleVar(params[0], params[1]); err != nil {
		return err
	}
	k.lengthScale = params[0]
	k.signalVar = params[1]
	return nil
}

// Matern52 is the Matérn kernel with smoothness 5/2, a common default
// for optimization surrogates since it tolerates rougher functions
// than RBF.
type Matern52 struct {
	lengthScale float64
	signalVar   float64
}

// NewMatern52 creates a Matérn 5/2 kernel with the given length scale
// and signal variance, both strictly positive.
func NewMatern52(lengthScale, signalVar float64) (*Matern52, error) {
	if err := checkScaleVar(lengthScale, signalVar); err != nil {
		return nil, err
	}
	return &Matern52{lengthScale: lengthScale, signalVar: signalVar}, nil
}

// Eval computes the Matérn 5/2 kernel value between x1 and x2.
func (k *Matern52) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(sqDist(x1, x2)) / k.lengthScale
	polyTerm := 1.0 + math.Sqrt(5)*r + (5.0/3.0)*r*r
	expTerm := math.Exp(-math.Sqrt(5) * r)
	return k.signalVar * polyTerm * expTerm
}

// Hyperparameters returns {lengthScale, signalVar}.
func (k *Matern52) Hyperparameters() []float64 {
	return []float64{k.lengthScale, k.signalVar}
}

// SetHyperparameters sets {lengthScale, signalVar}.
func (k *Matern52) SetHyperparameters(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(params))
	}
	if err := checkScaleVar(params[0], params[1]); err != nil {
		return err
	}
	k.lengthScale = params[0]
	k.signalVar = params[1]
	return nil
}
