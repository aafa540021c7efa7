package optimization

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestSingleObjective(t *testing.T) {
	obj := SingleObjective(quadratic)

	Y, err := obj([][]float64{{1, 2}, {3, 4}, {0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if len(Y) != 3 {
		t.Fatalf("got %d rows, want 3", len(Y))
	}
	want := []float64{5, 25, 0}
	for i := range Y {
		if len(Y[i]) != 1 || Y[i][0] != want[i] {
			t.Fatalf("row %d: got %v, want [%v]", i, Y[i], want[i])
		}
	}
}

func TestSingleObjectiveNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	obj := SingleObjective(noisyQuadratic(0.5, rng))

	X := [][]float64{{1, 1}, {2, 0}}
	Y, err := obj(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := range X {
		base, _ := quadratic(X[i])
		if math.Abs(Y[i][0]-base) > 0.25 {
			t.Fatalf("row %d: noise out of bounds: got %v around %v", i, Y[i][0], base)
		}
	}
}

func TestSingleObjectiveFailFast(t *testing.T) {
	calls := 0
	obj := SingleObjective(func(x []float64) (float64, error) {
		calls++
		if x[0] < 0 {
			return 0, errors.New("negative input")
		}
		return x[0], nil
	})

	_, err := obj([][]float64{{1}, {-1}, {2}})
	if KindOf(err) != KindObjectiveEvaluationFailure {
		t.Fatalf("got %v, want an objective evaluation failure", err)
	}
	if calls != 2 {
		t.Fatalf("objective called %d times, want 2", calls)
	}
	if !errors.Is(err, ErrObjectiveEvaluationFailure) {
		t.Fatal("error does not match the sentinel")
	}
}
