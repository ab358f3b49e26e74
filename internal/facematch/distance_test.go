package facematch

import (
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"3-4-5", []float32{0, 0}, []float32{3, 4}, 5},
		{"negative", []float32{-1, 0}, []float32{1, 0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EuclideanDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"same direction", []float32{1, 1}, []float32{2, 2}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("CosineDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistance(t *testing.T) {
	a, b := []float32{0, 0}, []float32{3, 4}

	d, err := Distance(config.MetricEuclidean, a, b)
	if err != nil || d != 5 {
		t.Errorf("Distance(euclidean) = %v, %v", d, err)
	}
	d, err = Distance("", a, b)
	if err != nil || d != 5 {
		t.Errorf("Distance(default) = %v, %v", d, err)
	}
	if _, err := Distance(config.MetricCosine, a, b); err != nil {
		t.Errorf("Distance(cosine) error: %v", err)
	}
	if _, err := Distance(config.MetricEuclidean, a, []float32{1}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatched lengths error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := Distance(config.MetricEuclidean, nil, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("empty embeddings error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := Distance("manhattan", a, b); err == nil {
		t.Error("expected error for unknown metric")
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		distance, threshold, want float64
	}{
		{0, 0.6, 1},
		{0.3, 0.6, 0.5},
		{0.6, 0.6, 0},
		{0.9, 0.6, 0},
		{0.1, 0, 0},
	}
	for _, tt := range tests {
		if got := confidence(tt.distance, tt.threshold); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("confidence(%v, %v) = %v, want %v", tt.distance, tt.threshold, got, tt.want)
		}
	}
}
