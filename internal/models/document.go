// Package models defines core data structures for content, chunks, manifests, and results.
package models

import "time"

// ContentType tags the kind of source document a chunk came from.
type ContentType string

const (
	ContentTypeArticle ContentType = "article"
	ContentTypeProject ContentType = "project"
	ContentTypeNote    ContentType = "note"
	ContentTypePage    ContentType = "page"
)

// ContentMetadata carries auxiliary document fields (tags, dates, author, canonical URL).
type ContentMetadata struct {
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
	Author      string    `json:"author,omitempty"`
	URL         string    `json:"url,omitempty"`
}

// ContentItem is a source document as handed over by the content loader.
// Items are produced once per build and are immutable thereafter.
type ContentItem struct {
	ID       string          `json:"id"`
	Slug     string          `json:"slug"`
	Type     ContentType     `json:"type"`
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Metadata ContentMetadata `json:"metadata"`
}

// ChunkMetadata is the denormalized per-chunk display and ranking metadata.
// Index is a running global index across the whole corpus, used for stable tie-breaking.
type ChunkMetadata struct {
	DocType ContentType `json:"docType"`
	Title   string      `json:"title"`
	Section string      `json:"section,omitempty"`
	Tags    []string    `json:"tags,omitempty"`
	URL     string      `json:"url"`
	Index   int         `json:"index"`
}

// Chunk is a bounded, independently embeddable unit of document text.
// One document yields an ordered sequence of chunks; chunks never own their parent.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"documentId"`
	Text       string        `json:"text"`
	Tokens     int           `json:"tokens"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// EmbeddingResult pairs a chunk ID with its embedding vector; the build
// pipeline's embed stage emits one per chunk in corpus order.
type EmbeddingResult struct {
	ChunkID string    `json:"chunkId"`
	Vector  []float32 `json:"-"`
}
