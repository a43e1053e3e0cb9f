// Package builder assembles the three retrieval artifacts from source content:
// the half-precision vector blob, the length-prefixed text blob, and the
// manifest that binds them together.
package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/artifact"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/codec"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
)

// Result holds the three build artifacts. Manifest chunk order, vector blob
// layout, and text blob layout all follow the same document-then-chunk order.
type Result struct {
	Manifest   *models.ArtifactManifest
	Embeddings []byte
	TextBlob   []byte
	Texts      []string
}

// Builder turns content items into a searchable corpus snapshot.
type Builder struct {
	embedder  embedding.Embedder
	chunker   *chunker.Chunker
	modelName string
	workers   int
	logger    *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithChunkerOptions overrides the chunking parameters.
func WithChunkerOptions(opts chunker.Options) Option {
	return func(b *Builder) { b.chunker = chunker.NewChunker(opts) }
}

// WithWorkers sets the size of the embedding worker pool.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithModelName records the embedding model name in the manifest.
func WithModelName(name string) Option {
	return func(b *Builder) { b.modelName = name }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a builder around an embedder.
func NewBuilder(embedder embedding.Embedder, opts ...Option) *Builder {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	b := &Builder{
		embedder:  embedder,
		chunker:   chunker.NewChunker(chunker.DefaultOptions()),
		modelName: "unknown",
		workers:   workers,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build chunks every item, embeds all chunks through the worker pool, and
// serializes the corpus. Output order is deterministic: items in the order
// given, chunks in document order.
func (b *Builder) Build(ctx context.Context, items []models.ContentItem) (*Result, error) {
	var chunks []*models.Chunk
	for i := range items {
		chunks = append(chunks, b.chunker.Chunk(&items[i], len(chunks))...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from %d content items", len(items))
	}
	b.logger.Info("chunking complete",
		zap.Int("documents", len(items)),
		zap.Int("chunks", len(chunks)),
	)

	embedded, err := b.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(embedded))
	for i, res := range embedded {
		if err := codec.Normalize(res.Vector); err != nil {
			return nil, fmt.Errorf("normalize vector for chunk %s: %w", res.ChunkID, err)
		}
		vectors[i] = res.Vector
	}

	blob, err := codec.EncodeVectors(vectors)
	if err != nil {
		return nil, fmt.Errorf("encode vectors: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	textBlob := artifact.EncodeTextBlob(texts)

	dims := b.embedder.Dimensions()
	manifest := &models.ArtifactManifest{
		Version:   models.ManifestVersion,
		BuildTime: time.Now().UTC(),
		BuildHash: buildHash(blob, textBlob),
		Model: models.ModelInfo{
			Name:          b.modelName,
			Dimensions:    dims,
			Normalization: "l2",
		},
		Storage: models.StorageInfo{
			Precision:             "float16",
			AccumulationPrecision: "float64",
		},
	}
	totalTokens := 0
	for i, ch := range chunks {
		manifest.Chunks = append(manifest.Chunks, models.ManifestChunk{
			ID:              ch.ID,
			ParentID:        ch.DocumentID,
			Tokens:          ch.Tokens,
			Metadata:        ch.Metadata,
			EmbeddingOffset: i * codec.Stride(dims),
		})
		totalTokens += ch.Tokens
	}
	manifest.Stats = models.CorpusStats{
		TotalChunks:       len(chunks),
		TotalTokens:       totalTokens,
		AvgTokensPerChunk: float64(totalTokens) / float64(len(chunks)),
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("built manifest failed validation: %w", err)
	}

	b.logger.Info("build complete",
		zap.String("buildHash", manifest.BuildHash),
		zap.Int("chunks", len(chunks)),
		zap.Int("embeddingBytes", len(blob)),
	)
	return &Result{Manifest: manifest, Embeddings: blob, TextBlob: textBlob, Texts: texts}, nil
}

// embedAll runs the embedder over every chunk through an ants pool. The result
// slice is indexed by chunk position so concurrent completion cannot reorder it.
func (b *Builder) embedAll(ctx context.Context, chunks []*models.Chunk) ([]models.EmbeddingResult, error) {
	pool, err := ants.NewPool(b.workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	results := make([]models.EmbeddingResult, len(chunks))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := range chunks {
		i := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			mu.Lock()
			failed := firstErr != nil
			mu.Unlock()
			if failed || ctx.Err() != nil {
				return
			}
			vec, err := b.embedder.Embed(ctx, chunks[i].Text)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
				}
				mu.Unlock()
				return
			}
			results[i] = models.EmbeddingResult{ChunkID: chunks[i].ID, Vector: vec}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("submit embedding task: %w", submitErr)
			}
			mu.Unlock()
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := range results {
		if results[i].Vector == nil {
			return nil, fmt.Errorf("chunk %s was not embedded", chunks[i].ID)
		}
	}
	return results, nil
}

// buildHash is the content identity of a corpus snapshot: sha256 over the
// vector blob followed by the text blob.
func buildHash(embeddings, textBlob []byte) string {
	h := sha256.New()
	h.Write(embeddings)
	h.Write(textBlob)
	return hex.EncodeToString(h.Sum(nil))
}
