package util

import (
	"math"
)

// SquaredL2 calculates the squared Euclidean distance between two vectors.
// The vectors must have equal length.
func SquaredL2(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("vector dimensions must match")
	}

	var sum float32
	i := 0
	for ; i+4 <= len(a); i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		sum += d0*d0 + d1*d1 + d2*d2 + d3*d3
	}
	for ; i < len(a); i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// L2 calculates Euclidean distance
func L2(a, b []float32) float32 {
	return float32(math.Sqrt(float64(SquaredL2(a, b))))
}
