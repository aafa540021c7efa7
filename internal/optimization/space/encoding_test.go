package space

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqopt/internal/optimization"
)

func TestOneHotEncode(t *testing.T) {
	enc := OneHot{}

	assert.Equal(t, 4, enc.Width(4))
	assert.Equal(t, []float64{1, 0, 0, 0}, enc.Encode(0, 4))
	assert.Equal(t, []float64{0, 1, 0, 0}, enc.Encode(1, 4))
	assert.Equal(t, []float64{0, 0, 0, 1}, enc.Encode(3, 4))
}

func TestOneHotDecode(t *testing.T) {
	enc := OneHot{}

	tests := []struct {
		name     string
		block    []float64
		want     int
		wantKind optimization.Kind
	}{
		{name: "first active", block: []float64{1, 0, 0}, want: 0},
		{name: "last active", block: []float64{0, 0, 1}, want: 2},
		{name: "within tolerance", block: []float64{0, 1 + 1e-12, 0}, want: 1},
		{name: "wrong width", block: []float64{1, 0}, wantKind: optimization.KindDimensionMismatch},
		{name: "two active", block: []float64{1, 1, 0}, wantKind: optimization.KindInvalidEncoding},
		{name: "none active", block: []float64{0, 0, 0}, wantKind: optimization.KindInvalidEncoding},
		{name: "fractional entry", block: []float64{0, 0.6, 0}, wantKind: optimization.KindInvalidEncoding},
		{name: "nan entry", block: []float64{math.NaN(), 1, 0}, wantKind: optimization.KindInvalidEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, err := enc.Decode(tt.block, 3)
			if tt.wantKind != optimization.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, optimization.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, i)
		})
	}
}

func TestOneHotRepair(t *testing.T) {
	enc := OneHot{}

	tests := []struct {
		name  string
		block []float64
		want  []float64
	}{
		{name: "snaps to max", block: []float64{0.2, 0.9, 0.4}, want: []float64{0, 1, 0}},
		{name: "tie takes lowest index", block: []float64{0.5, 0.5, 0}, want: []float64{1, 0, 0}},
		{name: "ignores nan", block: []float64{math.NaN(), 0.3, 0.1}, want: []float64{0, 1, 0}},
		{name: "all nan", block: []float64{math.NaN(), math.NaN(), math.NaN()}, want: []float64{1, 0, 0}},
		{name: "wrong width", block: []float64{7}, want: []float64{1, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := enc.Repair(tt.block, 3)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, enc.Validate(got, 3))
		})
	}
}

func TestOneHotBounds(t *testing.T) {
	b := OneHot{}.Bounds(3)
	require.Len(t, b, 3)
	for _, entry := range b {
		assert.Equal(t, [2]float64{0, 1}, entry)
	}
}

func TestOrdinalDecode(t *testing.T) {
	enc := Ordinal{}

	assert.Equal(t, 1, enc.Width(5))

	tests := []struct {
		name     string
		block    []float64
		want     int
		wantKind optimization.Kind
	}{
		{name: "exact index", block: []float64{2}, want: 2},
		{name: "rounds down", block: []float64{1.4}, want: 1},
		{name: "rounds up", block: []float64{1.6}, want: 2},
		{name: "clamps below", block: []float64{-3}, want: 0},
		{name: "clamps above", block: []float64{12}, want: 3},
		{name: "nan", block: []float64{math.NaN()}, wantKind: optimization.KindInvalidEncoding},
		{name: "infinite", block: []float64{math.Inf(1)}, wantKind: optimization.KindInvalidEncoding},
		{name: "wrong width", block: []float64{1, 2}, wantKind: optimization.KindDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, err := enc.Decode(tt.block, 4)
			if tt.wantKind != optimization.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, optimization.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, i)
		})
	}
}

// Validate stays strict where Decode is lenient: only exact in-range
// indices pass.
func TestOrdinalValidate(t *testing.T) {
	enc := Ordinal{}

	assert.NoError(t, enc.Validate([]float64{0}, 4))
	assert.NoError(t, enc.Validate([]float64{3}, 4))

	tests := []struct {
		name     string
		block    []float64
		wantKind optimization.Kind
	}{
		{name: "fractional", block: []float64{1.3}, wantKind: optimization.KindInvalidEncoding},
		{name: "negative", block: []float64{-1}, wantKind: optimization.KindInvalidEncoding},
		{name: "past last index", block: []float64{4}, wantKind: optimization.KindInvalidEncoding},
		{name: "nan", block: []float64{math.NaN()}, wantKind: optimization.KindInvalidEncoding},
		{name: "wrong width", block: nil, wantKind: optimization.KindDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := enc.Validate(tt.block, 4)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, optimization.KindOf(err))
		})
	}
}

func TestOrdinalRepair(t *testing.T) {
	enc := Ordinal{}

	assert.Equal(t, []float64{2}, enc.Repair([]float64{1.6}, 4))
	assert.Equal(t, []float64{3}, enc.Repair([]float64{9}, 4))
	assert.Equal(t, []float64{0}, enc.Repair([]float64{math.NaN()}, 4))
	assert.Equal(t, []float64{0}, enc.Repair(nil, 4))
}

func TestOrdinalBounds(t *testing.T) {
	assert.Equal(t, [][2]float64{{0, 4}}, Ordinal{}.Bounds(5))
}
