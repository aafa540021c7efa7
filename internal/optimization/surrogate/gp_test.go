package surrogate

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"seqopt/internal/optimization"
	"seqopt/internal/optimization/kernels"
)

func newTestGP(t *testing.T) *GP {
	t.Helper()
	kern, err := kernels.NewRBF(1.0, 1.0)
	require.NoError(t, err)
	gp, err := NewGP(kern, 1e-6, nil)
	require.NoError(t, err)
	return gp
}

// fitParabola trains the process on y = x^2 sampled at five points.
func fitParabola(t *testing.T, gp *GP) {
	t.Helper()
	X := mat.NewDense(5, 1, []float64{-2, -1, 0, 1, 2})
	y := mat.NewVecDense(5, []float64{4, 1, 0, 1, 4})
	require.NoError(t, gp.Fit(X, y))
}

func TestNewGP(t *testing.T) {
	kern, err := kernels.NewRBF(1.0, 1.0)
	require.NoError(t, err)

	_, err = NewGP(nil, 1e-6, nil)
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))

	_, err = NewGP(kern, -0.1, nil)
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))

	gp, err := NewGP(kern, 0, nil)
	require.NoError(t, err)
	assert.NotNil(t, gp)
}

func TestGPFitPredict(t *testing.T) {
	gp := newTestGP(t)
	fitParabola(t, gp)

	// Interpolation at the training points is near exact with small
	// noise.
	query := mat.NewDense(3, 1, []float64{-1, 0, 1})
	mean, variance, err := gp.Predict(query)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, mean.AtVec(0), 0.1)
	assert.InDelta(t, 0.0, mean.AtVec(1), 0.1)
	assert.InDelta(t, 1.0, mean.AtVec(2), 0.1)
	for i := 0; i < 3; i++ {
		assert.GreaterOrEqual(t, variance.AtVec(i), 0.0)
		assert.Less(t, variance.AtVec(i), 0.1)
	}

	// Between training points the posterior follows the parabola
	// loosely.
	mid, _, err := gp.Predict(mat.NewDense(1, 1, []float64{0.5}))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, mid.AtVec(0), 0.5)
}

// Predictive variance grows with distance from the training data and
// approaches the prior variance far away.
func TestGPPredictVariance(t *testing.T) {
	gp := newTestGP(t)
	fitParabola(t, gp)

	_, variance, err := gp.Predict(mat.NewDense(2, 1, []float64{0, 10}))
	require.NoError(t, err)

	vNear := variance.AtVec(0)
	vFar := variance.AtVec(1)
	assert.Less(t, vNear, 0.1)
	assert.Greater(t, vFar, 0.5)
	assert.InDelta(t, 1.0, vFar, 0.1)
}

func TestGPUpdateFromState(t *testing.T) {
	gp := newTestGP(t)

	// Only the first output column is fitted; the second is ignored.
	state, err := optimization.NewLoopStateFrom(
		[][]float64{{-1}, {0}, {1}},
		[][]float64{{1, 99}, {0, 99}, {1, 99}},
	)
	require.NoError(t, err)
	require.NoError(t, gp.Update(state))

	mean, _, err := gp.Predict(mat.NewDense(1, 1, []float64{0}))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, mean.AtVec(0), 0.1)
}

func TestGPUpdateEmptyState(t *testing.T) {
	gp := newTestGP(t)

	err := gp.Update(nil)
	assert.Equal(t, optimization.KindModelUpdateFailure, optimization.KindOf(err))

	err = gp.Update(optimization.NewLoopState())
	assert.Equal(t, optimization.KindModelUpdateFailure, optimization.KindOf(err))
}

func TestGPPredictUnfitted(t *testing.T) {
	gp := newTestGP(t)

	_, _, err := gp.Predict(mat.NewDense(1, 1, []float64{0}))
	assert.Equal(t, optimization.KindModelUpdateFailure, optimization.KindOf(err))
}

func TestGPFitErrors(t *testing.T) {
	gp := newTestGP(t)

	err := gp.Fit(nil, mat.NewVecDense(1, []float64{1}))
	assert.Equal(t, optimization.KindModelUpdateFailure, optimization.KindOf(err))

	err = gp.Fit(mat.NewDense(1, 1, []float64{1}), nil)
	assert.Equal(t, optimization.KindModelUpdateFailure, optimization.KindOf(err))

	err = gp.Fit(mat.NewDense(2, 1, []float64{1, 2}), mat.NewVecDense(3, []float64{1, 2, 3}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "X has 2 samples but y has length 3")
}

func TestGPPredictDimensionMismatch(t *testing.T) {
	gp := newTestGP(t)
	fitParabola(t, gp)

	_, _, err := gp.Predict(mat.NewDense(1, 2, []float64{0, 0}))
	assert.Equal(t, optimization.KindDimensionMismatch, optimization.KindOf(err))

	_, _, err = gp.Predict(nil)
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))
}

// Duplicate rows make the kernel matrix singular without noise; the
// jitter ladder must still factorize it.
func TestGPFitDuplicatePoints(t *testing.T) {
	kern, err := kernels.NewRBF(1.0, 1.0)
	require.NoError(t, err)
	gp, err := NewGP(kern, 0, nil)
	require.NoError(t, err)

	X := mat.NewDense(4, 1, []float64{1, 1, 2, 2})
	y := mat.NewVecDense(4, []float64{3, 3, 5, 5})
	require.NoError(t, gp.Fit(X, y))

	mean, variance, err := gp.Predict(mat.NewDense(1, 1, []float64{1}))
	require.NoError(t, err)
	assert.InDelta(t, 3.0, mean.AtVec(0), 0.1)
	assert.GreaterOrEqual(t, variance.AtVec(0), 0.0)
}

// Far from the data the posterior mean reverts to the prior mean.
func TestGPSetMean(t *testing.T) {
	gp := newTestGP(t)
	gp.SetMean(func([]float64) float64 { return 10 })

	X := mat.NewDense(1, 1, []float64{0})
	y := mat.NewVecDense(1, []float64{10})
	require.NoError(t, gp.Fit(X, y))

	mean, _, err := gp.Predict(mat.NewDense(1, 1, []float64{100}))
	require.NoError(t, err)
	assert.InDelta(t, 10.0, mean.AtVec(0), 1e-6)
}

func TestGPConcurrentPredict(t *testing.T) {
	gp := newTestGP(t)
	fitParabola(t, gp)

	query := mat.NewDense(1, 1, []float64{0.5})
	want, _, err := gp.Predict(query)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				mean, variance, err := gp.Predict(query)
				assert.NoError(t, err)
				assert.InDelta(t, want.AtVec(0), mean.AtVec(0), 1e-12)
				assert.GreaterOrEqual(t, variance.AtVec(0), 0.0)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkGPPredict(b *testing.B) {
	kern, err := kernels.NewRBF(1.0, 1.0)
	if err != nil {
		b.Fatal(err)
	}
	gp, err := NewGP(kern, 1e-6, nil)
	if err != nil {
		b.Fatal(err)
	}

	rng := rand.New(rand.NewSource(42))
	const n, dim = 50, 4
	X := mat.NewDense(n, dim, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < dim; j++ {
			v := rng.Float64()*4 - 2
			X.Set(i, j, v)
			sum += v * v
		}
		y.SetVec(i, sum)
	}
	if err := gp.Fit(X, y); err != nil {
		b.Fatal(err)
	}

	query := mat.NewDense(1, dim, []float64{0.1, -0.3, 0.5, 0.2})
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := gp.Predict(query); err != nil {
			b.Fatal(err)
		}
	}
}
