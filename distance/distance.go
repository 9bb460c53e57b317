package distance

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Metric represents the distance metric used for vector comparison.
type Metric uint8

const (
	Euclidean Metric = iota
	Cosine
	InnerProduct
)

func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "Euclidean"
	case Cosine:
		return "Cosine"
	case InnerProduct:
		return "InnerProduct"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Valid reports whether m names a supported metric.
func (m Metric) Valid() bool {
	return m <= InnerProduct
}

// NormalizesInput reports whether vectors are L2-normalized before storage.
func (m Metric) NormalizesInput() bool {
	return m == Cosine
}

// ParseMetric parses a metric name. Matching is case-insensitive and accepts
// the short forms "l2", "ip" and "dot".
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "euclidean", "l2", "squaredl2":
		return Euclidean, nil
	case "cosine", "cos":
		return Cosine, nil
	case "innerproduct", "inner_product", "ip", "dot":
		return InnerProduct, nil
	default:
		return 0, fmt.Errorf("unsupported metric %q", s)
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case Euclidean:
		return SquaredL2, nil
	case Cosine:
		return CosineDistance, nil
	case InnerProduct:
		return InnerProductDistance, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}
	return ret
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	var d float32
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}

// cosineExactBelow bounds the raw cosine distance under which identical
// vectors are checked for. Rounding of a normalized self dot product stays far
// below it.
const cosineExactBelow = 1e-3

// CosineDistance returns 1 - <a,b> for vectors that are already L2-normalized.
// Rounding can push the raw value slightly below zero; it is clamped.
// Identical vectors are at distance exactly 0.
func CosineDistance(a, b []float32) float32 {
	d := 1 - Dot(a, b)
	switch {
	case d <= 0:
		return 0
	case d < cosineExactBelow && slices.Equal(a, b):
		return 0
	}
	return d
}

// InnerProductDistance returns 1 - <a,b>.
func InnerProductDistance(a, b []float32) float32 {
	return 1 - Dot(a, b)
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm, leaving v untouched.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := float32(1 / math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}
