package space

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqopt/internal/optimization"
)

// testSpace builds the mixed space used across the package tests: a
// continuous x, a discrete depth, and a one-hot categorical kernel,
// encoded as [x, depth, k0, k1, k2].
func testSpace(t *testing.T) *Space {
	t.Helper()
	x, err := NewContinuous("x", -5, 5)
	require.NoError(t, err)
	depth, err := NewDiscrete("depth", 1, 2, 4, 8)
	require.NoError(t, err)
	kernel, err := NewCategorical("kernel", []string{"linear", "rbf", "poly"}, nil)
	require.NoError(t, err)
	s, err := New(x, depth, kernel)
	require.NoError(t, err)
	return s
}

func TestNewSpace(t *testing.T) {
	s := testSpace(t)

	assert.Equal(t, 5, s.Width())
	assert.Equal(t, 3, s.Len())

	offset, ok := s.Offset("kernel")
	require.True(t, ok)
	assert.Equal(t, 2, offset)

	p, ok := s.Parameter("depth")
	require.True(t, ok)
	assert.Equal(t, "depth", p.Name())

	_, ok = s.Parameter("gamma")
	assert.False(t, ok)
	_, ok = s.Offset("gamma")
	assert.False(t, ok)
}

func TestNewSpaceErrors(t *testing.T) {
	_, err := New()
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))

	a, err := NewContinuous("x", 0, 1)
	require.NoError(t, err)
	b, err := NewContinuous("x", -1, 1)
	require.NoError(t, err)
	_, err = New(a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate parameter name")
}

func TestSpaceEncodeDecode(t *testing.T) {
	s := testSpace(t)

	vec, err := s.Encode(map[string]interface{}{
		"x":      1.5,
		"depth":  4,
		"kernel": "rbf",
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 4, 0, 1, 0}, vec)

	decoded, err := s.Decode(vec)
	require.NoError(t, err)
	assert.Equal(t, 1.5, decoded["x"])
	assert.Equal(t, 4.0, decoded["depth"])
	assert.Equal(t, "rbf", decoded["kernel"])
}

func TestSpaceEncodeErrors(t *testing.T) {
	s := testSpace(t)

	_, err := s.Encode(map[string]interface{}{"x": 0.0, "depth": 2, "kernel": "rbf", "gamma": 1.0})
	assert.Equal(t, optimization.KindUnknownParameter, optimization.KindOf(err))

	_, err = s.Encode(map[string]interface{}{"x": 0.0, "depth": 2})
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))

	_, err = s.Encode(map[string]interface{}{"x": 9.0, "depth": 2, "kernel": "rbf"})
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))
}

func TestSpaceDecodeErrors(t *testing.T) {
	s := testSpace(t)

	_, err := s.Decode([]float64{0, 1})
	assert.Equal(t, optimization.KindDimensionMismatch, optimization.KindOf(err))

	_, err = s.Decode([]float64{0, 1, 0.5, 0.5, 0})
	assert.Equal(t, optimization.KindInvalidEncoding, optimization.KindOf(err))
}

func TestSpaceValidate(t *testing.T) {
	s := testSpace(t)

	assert.NoError(t, s.Validate([]float64{0, 2, 1, 0, 0}))

	err := s.Validate([]float64{0, 3, 1, 0, 0})
	assert.Equal(t, optimization.KindInvalidValue, optimization.KindOf(err))

	err = s.Validate([]float64{0, 2, 1, 0, 0, 0})
	assert.Equal(t, optimization.KindDimensionMismatch, optimization.KindOf(err))
}

func TestSpaceWithout(t *testing.T) {
	s := testSpace(t)

	sub, err := s.Without("depth")
	require.NoError(t, err)
	assert.Equal(t, 4, sub.Width())
	assert.Equal(t, 2, sub.Len())

	// Relative order of the kept parameters is preserved.
	params := sub.Parameters()
	assert.Equal(t, "x", params[0].Name())
	assert.Equal(t, "kernel", params[1].Name())

	_, err = s.Without("gamma")
	assert.Equal(t, optimization.KindUnknownParameter, optimization.KindOf(err))

	// Removing everything yields a nil space, not an error.
	empty, err := s.Without("x", "depth", "kernel")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestSpaceSample(t *testing.T) {
	s := testSpace(t)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		vec := s.Sample(rng)
		require.Len(t, vec, s.Width())
		assert.NoError(t, s.Validate(vec))
	}
}

func TestSpaceSampleDeterministic(t *testing.T) {
	s := testSpace(t)

	a := s.Sample(rand.New(rand.NewSource(42)))
	b := s.Sample(rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
}

func TestSpaceRepair(t *testing.T) {
	s := testSpace(t)

	repaired, err := s.Repair([]float64{7.2, 5.1, 0.2, 0.7, 0.3})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 4, 0, 1, 0}, repaired)
	assert.NoError(t, s.Validate(repaired))

	_, err = s.Repair([]float64{1, 2})
	assert.Equal(t, optimization.KindDimensionMismatch, optimization.KindOf(err))
}

func TestSpaceBounds(t *testing.T) {
	s := testSpace(t)

	b := s.Bounds()
	require.Len(t, b, 5)
	assert.Equal(t, [2]float64{-5, 5}, b[0])
	assert.Equal(t, [2]float64{1, 8}, b[1])
	assert.Equal(t, [2]float64{0, 1}, b[2])
	assert.Equal(t, [2]float64{0, 1}, b[4])
}
