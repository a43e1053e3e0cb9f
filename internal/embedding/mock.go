package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockEmbedder is a deterministic embedder for tests and offline development.
// The same text always yields the same unit-normalized vector.
type MockEmbedder struct {
	dimensions int
	warmed     bool
}

// NewMockEmbedder returns a mock embedder of the given dimensions (384 when <= 0).
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Warm reports synthetic progress and marks the embedder ready.
func (e *MockEmbedder) Warm(ctx context.Context, progress WarmProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if progress != nil {
		for _, f := range []float64{0.25, 0.5, 0.75, 1.0} {
			progress(f)
		}
	}
	e.warmed = true
	return nil
}

// Embed returns a deterministic embedding derived from the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		vec[i] = float32(math.Sin(float64(seed%100003)*float64(i+1)) * 0.1)
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		inv := 1.0 / math.Sqrt(sum)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	} else {
		vec[0] = 1
	}
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
