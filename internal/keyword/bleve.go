// Package keyword provides the Bleve implementation of Index.
package keyword

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// DefaultBuildBatchSize is the number of chunks indexed per batch during a build.
const DefaultBuildBatchSize = 64

// indexedChunk is the shape Bleve indexes for each corpus chunk.
type indexedChunk struct {
	Text    string   `json:"text"`
	Title   string   `json:"title"`
	Section string   `json:"section"`
	Tags    []string `json:"tags"`
}

// BleveIndex implements Index over an in-memory Bleve index. The corpus is small
// and rebuilt whole at initialization, so nothing is persisted.
type BleveIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithLogger sets a logger for build debug output.
func WithLogger(l *zap.Logger) Option {
	return func(b *BleveIndex) { b.logger = l }
}

// NewBleveIndex creates an empty in-memory index.
// The standard analyzer (lowercase + tokenize, no stemming) is used so exact
// technical terms match without stem collisions.
func NewBleveIndex(opts ...Option) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("section", textFieldMapping)
	docMapping.AddFieldMappingsAt("tags", textFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b := &BleveIndex{index: index}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Build indexes every manifest chunk with its resolved text, in batches of
// batchSize (DefaultBuildBatchSize when <= 0). Between batches it checks ctx and
// reports progress, so a long build never monopolizes the caller. texts must be
// in manifest order, one entry per manifest chunk.
func (b *BleveIndex) Build(ctx context.Context, manifest *models.ArtifactManifest, texts []string, batchSize int, progress BatchProgress) error {
	if len(texts) != len(manifest.Chunks) {
		return fmt.Errorf("text count %d does not match manifest chunk count %d", len(texts), len(manifest.Chunks))
	}
	if batchSize <= 0 {
		batchSize = DefaultBuildBatchSize
	}

	total := len(manifest.Chunks)
	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > total {
			end = total
		}
		batch := b.index.NewBatch()
		for i := start; i < end; i++ {
			record := manifest.Chunks[i]
			doc := indexedChunk{
				Text:    texts[i],
				Title:   record.Metadata.Title,
				Section: record.Metadata.Section,
				Tags:    record.Metadata.Tags,
			}
			if err := batch.Index(record.ID, doc); err != nil {
				return fmt.Errorf("failed to batch chunk %q: %w", record.ID, err)
			}
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to index batch at %d: %w", start, err)
		}
		if progress != nil {
			progress(end, total)
		}
	}
	if b.logger != nil {
		b.logger.Debug("lexical index built", zap.Int("chunks", total))
	}
	return nil
}

// Search runs a match query over text, title, section, and tags, returning the
// top limit chunk ids by relevance.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]models.LexicalResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]models.LexicalResult, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = models.LexicalResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close releases the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
