// Package retrieve runs the query-time pipeline: embed the query, rank it
// against both indexes concurrently, fuse the rankings, and materialize the
// selected chunk texts.
package retrieve

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/engine"
	"github.com/hyperjump/kotae/internal/fusion"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
)

// DefaultLexicalLimit bounds how many lexical hits feed into fusion.
const DefaultLexicalLimit = 50

// Retriever answers queries against a fully initialized corpus.
type Retriever struct {
	embedder embedding.Embedder
	engine   *engine.Engine
	lexical  keyword.Index
	manifest *models.ArtifactManifest
	texts    []string

	fusionOpts   fusion.Options
	lexicalLimit int
	logger       *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithFusionOptions overrides the fusion and budget parameters.
func WithFusionOptions(opts fusion.Options) Option {
	return func(r *Retriever) { r.fusionOpts = opts }
}

// WithLexicalLimit bounds the lexical candidate set per query.
func WithLexicalLimit(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.lexicalLimit = n
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever wires the query pipeline over an initialized engine and lexical
// index. texts must be in manifest chunk order.
func NewRetriever(
	embedder embedding.Embedder,
	eng *engine.Engine,
	lexical keyword.Index,
	manifest *models.ArtifactManifest,
	texts []string,
	opts ...Option,
) (*Retriever, error) {
	if len(texts) != len(manifest.Chunks) {
		return nil, fmt.Errorf("got %d texts for %d manifest chunks", len(texts), len(manifest.Chunks))
	}
	r := &Retriever{
		embedder:     embedder,
		engine:       eng,
		lexical:      lexical,
		manifest:     manifest,
		texts:        texts,
		fusionOpts:   fusion.DefaultOptions(),
		lexicalLimit: DefaultLexicalLimit,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Retrieve embeds the query, runs semantic and lexical search concurrently,
// fuses both rankings, applies the token budget, and resolves chunk texts.
// An empty corpus match surfaces as a no-relevant-content error; everything
// else is a system error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.RetrievedChunk, error) {
	if query == "" {
		return nil, models.NewError(models.KindNoRelevantContent, "retrieve",
			fmt.Errorf("empty query"))
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var semantic []models.SemanticResult
	var lexical []models.LexicalResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := r.engine.Search(queryVec)
		if err != nil {
			return fmt.Errorf("semantic search: %w", err)
		}
		semantic = results
		return nil
	})
	g.Go(func() error {
		results, err := r.lexical.Search(gctx, query, r.lexicalLimit)
		if err != nil {
			return fmt.Errorf("lexical search: %w", err)
		}
		lexical = results
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused, err := fusion.Fuse(semantic, lexical, r.manifest, r.fusionOpts)
	if err != nil {
		return nil, err
	}
	selected := fusion.SelectWithinBudget(fused, r.fusionOpts.TokenBudget, r.fusionOpts.MinChunks)

	r.logger.Debug("query resolved",
		zap.Int("semantic", len(semantic)),
		zap.Int("lexical", len(lexical)),
		zap.Int("fused", len(fused)),
		zap.Int("selected", len(selected)),
	)
	return r.materialize(selected), nil
}

// materialize denormalizes fused results into display-ready chunks. Text lookup
// is by manifest position: texts and manifest chunks share one order.
func (r *Retriever) materialize(selected []models.FusedResult) []models.RetrievedChunk {
	position := make(map[string]int, len(r.manifest.Chunks))
	for i := range r.manifest.Chunks {
		position[r.manifest.Chunks[i].ID] = i
	}

	out := make([]models.RetrievedChunk, 0, len(selected))
	for _, res := range selected {
		idx, ok := position[res.ChunkID]
		if !ok {
			continue
		}
		record := &r.manifest.Chunks[idx]
		out = append(out, models.RetrievedChunk{
			ID:      record.ID,
			Text:    r.texts[idx],
			Score:   res.Score,
			Title:   record.Metadata.Title,
			Section: record.Metadata.Section,
			URL:     record.Metadata.URL,
			Tokens:  record.Tokens,
		})
	}
	return out
}
