// Package keyword provides the lexical (keyword relevance) index over corpus chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Index defines lexical search over the chunk-id space.
type Index interface {
	// Search returns up to limit hits ranked by keyword relevance, descending.
	Search(ctx context.Context, query string, limit int) ([]models.LexicalResult, error)
	// DocCount returns the number of indexed chunks.
	DocCount() (uint64, error)
	Close() error
}

// BatchProgress is invoked after each indexing batch with the number of chunks
// indexed so far and the total. The build yields between batches so a caller
// driving UI progress stays responsive.
type BatchProgress func(done, total int)
