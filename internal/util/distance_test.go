package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"unit axis", []float32{0, 0}, []float32{1, 0}, 1},
		{"3-4-5", []float32{0, 0}, []float32{3, 4}, 25},
		{"unrolled tail", []float32{1, 1, 1, 1, 1, 1, 1}, []float32{0, 0, 0, 0, 0, 0, 0}, 7},
		{"empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SquaredL2(tt.a, tt.b), 1e-6)
		})
	}
}

func TestL2(t *testing.T) {
	assert.InDelta(t, 5.0, L2([]float32{0, 0}, []float32{3, 4}), 1e-6)
	assert.InDelta(t, math.Sqrt(2), L2([]float32{1, 0}, []float32{0, 1}), 1e-6)
}

func TestSquaredL2_DimensionMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		SquaredL2([]float32{1, 2}, []float32{1})
	})
}

func BenchmarkSquaredL2(b *testing.B) {
	x := make([]float32, 128)
	y := make([]float32, 128)
	for i := range x {
		x[i] = float32(i)
		y[i] = float32(128 - i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = SquaredL2(x, y)
	}
}
