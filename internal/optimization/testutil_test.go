package optimization

import (
	"math"
	"math/rand"
	"testing"
)

// quadratic is a simple convex objective used across package tests.
func quadratic(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

// noisyQuadratic adds bounded random noise to the quadratic objective.
func noisyQuadratic(noiseScale float64, rng *rand.Rand) ScalarFunc {
	return func(x []float64) (float64, error) {
		val, _ := quadratic(x)
		return val + noiseScale*(rng.Float64()-0.5), nil
	}
}

// assertFloat64SlicesEqual checks if two float64 slices are approximately equal
func assertFloat64SlicesEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}
