package benchmarks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqopt/internal/optimization"
	"seqopt/internal/optimization/space"
)

func evalAt(t *testing.T, b *Benchmark, x []float64) float64 {
	t.Helper()
	Y, err := b.Objective([][]float64{x})
	require.NoError(t, err)
	require.Len(t, Y, 1)
	return Y[0][0]
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"branin", "mixed-sphere", "rosenbrock", "sphere"}, Names())

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			b, err := Lookup(name)
			require.NoError(t, err)
			assert.Equal(t, name, b.Name)
			require.NotNil(t, b.Space)
			require.NotNil(t, b.Objective)
		})
	}

	_, err := Lookup("ackley")
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))
}

func TestSphere(t *testing.T) {
	b, err := Sphere(3)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Space.Width())
	assert.Equal(t, 0.0, b.Optimum)

	assert.Equal(t, 0.0, evalAt(t, b, []float64{0, 0, 0}))
	assert.Equal(t, 14.0, evalAt(t, b, []float64{1, 2, 3}))

	_, err = Sphere(0)
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))
}

func TestRosenbrock(t *testing.T) {
	b, err := Rosenbrock(2)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Space.Width())

	// The valley floor sits at (1, 1).
	assert.Equal(t, 0.0, evalAt(t, b, []float64{1, 1}))
	assert.Equal(t, 1.0, evalAt(t, b, []float64{0, 0}))

	_, err = Rosenbrock(1)
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))
}

func TestBranin(t *testing.T) {
	b, err := Branin()
	require.NoError(t, err)
	assert.Equal(t, 2, b.Space.Width())

	// Two of the three global minima.
	assert.InDelta(t, b.Optimum, evalAt(t, b, []float64{math.Pi, 2.275}), 1e-6)
	assert.InDelta(t, b.Optimum, evalAt(t, b, []float64{-math.Pi, 12.275}), 1e-6)

	// Everywhere else lies above the optimum.
	assert.Greater(t, evalAt(t, b, []float64{0, 0}), b.Optimum)
}

func TestMixedSphere(t *testing.T) {
	b, err := MixedSphere()
	require.NoError(t, err)
	assert.Equal(t, 5, b.Space.Width())

	atLow, err := b.Space.Encode(map[string]interface{}{"x1": 0.0, "x2": 0.0, "mode": "low"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, evalAt(t, b, atLow))

	// Mode "high" scales by 4 and adds an offset of 1.
	atHigh, err := b.Space.Encode(map[string]interface{}{"x1": 1.0, "x2": 0.0, "mode": "high"})
	require.NoError(t, err)
	assert.Equal(t, 5.0, evalAt(t, b, atHigh))

	// Malformed one-hot blocks surface as objective errors.
	_, err = b.Objective([][]float64{{0, 0, 0.5, 0.5, 0}})
	require.Error(t, err)
}

func TestObjectiveFor(t *testing.T) {
	one, err := space.NewContinuous("x1", -1, 1)
	require.NoError(t, err)
	narrow, err := space.New(one)
	require.NoError(t, err)

	a, err := space.NewContinuous("x1", -1, 1)
	require.NoError(t, err)
	bp, err := space.NewContinuous("x2", -1, 1)
	require.NoError(t, err)
	wide, err := space.New(a, bp)
	require.NoError(t, err)

	obj, err := ObjectiveFor("sphere", narrow)
	require.NoError(t, err)
	Y, err := obj([][]float64{{2}})
	require.NoError(t, err)
	assert.Equal(t, 4.0, Y[0][0])

	// "quadratic" is an alias for the same bowl.
	obj, err = ObjectiveFor("quadratic", narrow)
	require.NoError(t, err)
	Y, err = obj([][]float64{{3}})
	require.NoError(t, err)
	assert.Equal(t, 9.0, Y[0][0])

	_, err = ObjectiveFor("rosenbrock", narrow)
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))
	_, err = ObjectiveFor("rosenbrock", wide)
	assert.NoError(t, err)

	_, err = ObjectiveFor("branin", narrow)
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))
	_, err = ObjectiveFor("branin", wide)
	assert.NoError(t, err)

	_, err = ObjectiveFor("ackley", wide)
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))

	_, err = ObjectiveFor("sphere", nil)
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))
}
