// Package codec converts vectors between the compact half-precision on-disk layout
// and the full-precision in-memory representation, and computes similarity.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"
)

// BytesPerComponent is the on-disk width of one vector component (IEEE 754 half).
const BytesPerComponent = 2

// Stride returns the byte length of one encoded vector of the given dimension.
func Stride(dimensions int) int {
	return dimensions * BytesPerComponent
}

// EncodeVectors serializes vectors into the half-precision blob layout: each
// component stored as a little-endian float16, vectors concatenated in input order.
// All vectors must share the same dimension.
func EncodeVectors(vectors [][]float32) ([]byte, error) {
	if len(vectors) == 0 {
		return nil, nil
	}
	dims := len(vectors[0])
	if dims == 0 {
		return nil, fmt.Errorf("cannot encode zero-dimension vectors")
	}
	out := make([]byte, len(vectors)*Stride(dims))
	for i, vec := range vectors {
		if len(vec) != dims {
			return nil, fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), dims)
		}
		base := i * Stride(dims)
		for j, v := range vec {
			bits := float16.Fromfloat32(v).Bits()
			binary.LittleEndian.PutUint16(out[base+j*BytesPerComponent:], bits)
		}
	}
	return out, nil
}

// DecodeVectors deserializes a half-precision blob into full-precision vectors.
// The blob length must be an exact multiple of the per-vector stride; anything
// else is a truncated or misaligned buffer and fails fast.
func DecodeVectors(data []byte, dimensions int) ([][]float32, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	stride := Stride(dimensions)
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of vector stride %d", len(data), stride)
	}
	n := len(data) / stride
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		vec := make([]float32, dimensions)
		base := i * stride
		for j := 0; j < dimensions; j++ {
			bits := binary.LittleEndian.Uint16(data[base+j*BytesPerComponent:])
			vec[j] = float16.Frombits(bits).Float32()
		}
		vectors[i] = vec
	}
	return vectors, nil
}
