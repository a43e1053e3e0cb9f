// Package embedding defines the vector-source collaborator boundary. The engine
// only consumes fixed-length normalized vectors; how they are produced is the
// concrete backend's concern.
package embedding

import "context"

// WarmProgress reports model readiness progress in [0,1] (e.g. download fraction).
type WarmProgress func(fraction float64)

// Embedder produces unit-normalized fixed-dimension vectors for text.
type Embedder interface {
	// Warm prepares the backend (model download, session creation). progress may
	// be nil. Warm must be called before Embed and is safe to call again.
	Warm(ctx context.Context, progress WarmProgress) error
	// Embed returns a unit-normalized vector of Dimensions() length.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds several texts; result order matches input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
