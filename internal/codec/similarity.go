package codec

import (
	"fmt"
	"math"
)

// Dot returns the inner product of two equal-length vectors. The accumulator is
// float64 so precision does not drift over high-dimensional sums. For unit-normalized
// vectors this equals cosine similarity.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// DotChecked is Dot with an explicit dimension check. A mismatch is a programming
// error and is signaled, never silently truncated.
func DotChecked(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	return Dot(a, b), nil
}

// L2Norm returns the Euclidean norm of a vector, accumulated in float64.
func L2Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize scales vec in place to unit length. Normalizing a zero vector is an error.
func Normalize(vec []float32) error {
	norm := L2Norm(vec)
	if norm == 0 {
		return fmt.Errorf("cannot normalize zero vector")
	}
	inv := 1.0 / norm
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return nil
}
