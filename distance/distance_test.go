package distance

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Dot(tt.a, tt.b), 1e-5)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 27},
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Mixed", []float32{1, -1}, []float32{-1, 1}, 8},
		{"Empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SquaredL2(tt.a, tt.b), 1e-5)
		})
	}
}

func TestSquaredL2_Symmetric(t *testing.T) {
	a := []float32{0.8, 0.7, 120, 0.6, 0.1}
	b := []float32{0.9, 0.5, 85, 0.65, 0.15}
	assert.Equal(t, SquaredL2(a, b), SquaredL2(b, a))
	assert.Greater(t, SquaredL2(a, b), float32(0))
}

func TestCosineDistanceSelfIsExactlyZero(t *testing.T) {
	for dim := 1; dim <= 512; dim *= 2 {
		v := make([]float32, dim)
		for i := range v {
			v[i] = float32(i%7) - 2.75 + float32(dim)/3
		}
		u, ok := NormalizeL2Copy(v)
		require.True(t, ok)

		assert.Zero(t, CosineDistance(u, u), "dim %d", dim)
		assert.Zero(t, CosineDistance(u, slices.Clone(u)), "dim %d", dim)
	}

	a, _ := NormalizeL2Copy([]float32{1, 2, 3})
	b, _ := NormalizeL2Copy([]float32{1, 2, 3.1})
	assert.Positive(t, CosineDistance(a, b))
}

func TestCosineDistance(t *testing.T) {
	a, ok := NormalizeL2Copy([]float32{3, 4})
	require.True(t, ok)
	b, ok := NormalizeL2Copy([]float32{6, 8})
	require.True(t, ok)
	c, ok := NormalizeL2Copy([]float32{-3, -4})
	require.True(t, ok)

	assert.InDelta(t, 0, CosineDistance(a, b), 1e-6)
	assert.GreaterOrEqual(t, CosineDistance(a, b), float32(0))
	assert.InDelta(t, 2, CosineDistance(a, c), 1e-6)
}

func TestInnerProductDistance(t *testing.T) {
	assert.InDelta(t, 1-32, InnerProductDistance([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-5)
	assert.InDelta(t, 1, InnerProductDistance([]float32{1, 0}, []float32{0, 1}), 1e-6)
}

func TestNormalizeL2(t *testing.T) {
	t.Run("InPlace", func(t *testing.T) {
		v := []float32{3, 4}
		assert.True(t, NormalizeL2InPlace(v))
		assert.InDelta(t, float32(0.6), v[0], 1e-5)
		assert.InDelta(t, float32(0.8), v[1], 1e-5)
	})

	t.Run("Zero", func(t *testing.T) {
		v := []float32{0, 0}
		assert.False(t, NormalizeL2InPlace(v))
		assert.Equal(t, []float32{0, 0}, v)
	})

	t.Run("Copy", func(t *testing.T) {
		src := []float32{0, 2}
		dst, ok := NormalizeL2Copy(src)
		assert.True(t, ok)
		assert.Equal(t, []float32{0, 1}, dst)
		assert.Equal(t, []float32{0, 2}, src)
	})
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{Euclidean, Cosine, InnerProduct} {
		fn, err := Provider(m)
		require.NoError(t, err, m.String())
		assert.NotNil(t, fn)
	}

	_, err := Provider(Metric(42))
	assert.Error(t, err)
	assert.False(t, Metric(42).Valid())
	assert.Equal(t, "Unknown(42)", Metric(42).String())
}

func TestParseMetric(t *testing.T) {
	tests := map[string]Metric{
		"euclidean": Euclidean,
		"L2":        Euclidean,
		"Cosine":    Cosine,
		"ip":        InnerProduct,
		"dot":       InnerProduct,
	}
	for in, want := range tests {
		got, err := ParseMetric(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMetric("manhattan")
	assert.Error(t, err)
}
