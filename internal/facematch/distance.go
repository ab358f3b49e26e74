package facematch

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/config"
	"gonum.org/v1/gonum/floats"
)

// ErrDimensionMismatch is returned when two embeddings differ in length.
var ErrDimensionMismatch = errors.New("embedding dimensions differ")

// Distance computes the configured metric between two embeddings.
func Distance(metric string, a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	switch metric {
	case config.MetricCosine:
		return CosineDistance(a, b), nil
	case config.MetricEuclidean, "":
		return EuclideanDistance(a, b), nil
	default:
		return 0, fmt.Errorf("unknown distance metric %q", metric)
	}
}

// EuclideanDistance returns the L2 distance. a and b must have the same length.
func EuclideanDistance(a, b []float32) float64 {
	return floats.Distance(toFloat64(a), toFloat64(b), 2)
}

// CosineDistance returns 1 - cosine similarity (0 = identical direction, 2 = opposite).
// A zero vector has distance 1 to everything. a and b must have the same length.
func CosineDistance(a, b []float32) float64 {
	x, y := toFloat64(a), toFloat64(b)
	na, nb := floats.Norm(x, 2), floats.Norm(y, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(x, y)/(na*nb)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// confidence maps a distance under threshold onto 0..1, 1 being identical.
func confidence(distance, threshold float64) float64 {
	if threshold <= 0 || distance >= threshold {
		return 0
	}
	return 1 - distance/threshold
}
