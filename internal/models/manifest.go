package models

import (
	"fmt"
	"time"
)

// ManifestVersion is the current artifact manifest format version.
const ManifestVersion = 1

// ModelInfo describes the embedding model a corpus was built with.
type ModelInfo struct {
	Name          string `json:"name"`
	Dimensions    int    `json:"dimensions"`
	Normalization string `json:"normalization"`
}

// StorageInfo records the numeric precision used on disk and during scoring.
type StorageInfo struct {
	Precision             string `json:"precision"`
	AccumulationPrecision string `json:"accumulationPrecision"`
}

// ManifestChunk is the manifest's record for one chunk: identity, token count,
// display metadata, and the byte offset of its embedding in the vector blob.
type ManifestChunk struct {
	ID              string        `json:"id"`
	ParentID        string        `json:"parentId"`
	Tokens          int           `json:"tokens"`
	Metadata        ChunkMetadata `json:"metadata"`
	EmbeddingOffset int           `json:"embeddingOffset"`
}

// CorpusStats holds aggregate counts for a corpus snapshot.
type CorpusStats struct {
	TotalChunks       int     `json:"totalChunks"`
	TotalTokens       int     `json:"totalTokens"`
	AvgTokensPerChunk float64 `json:"avgTokensPerChunk"`
}

// ArtifactManifest is the corpus's metadata-of-record. The order of Chunks defines
// the byte layout of both the vector blob and the text blob.
type ArtifactManifest struct {
	Version   int             `json:"version"`
	BuildTime time.Time       `json:"buildTime"`
	BuildHash string          `json:"buildHash"`
	Model     ModelInfo       `json:"model"`
	Storage   StorageInfo     `json:"storage"`
	Chunks    []ManifestChunk `json:"chunks"`
	Stats     CorpusStats     `json:"stats"`
}

// Validate checks internal consistency: version, dimensions, unique chunk IDs,
// and embedding offsets laid out in manifest order.
func (m *ArtifactManifest) Validate() error {
	if m.Version != ManifestVersion {
		return fmt.Errorf("unsupported manifest version %d (expected %d)", m.Version, ManifestVersion)
	}
	if m.BuildHash == "" {
		return fmt.Errorf("manifest has empty build hash")
	}
	if m.Model.Dimensions <= 0 {
		return fmt.Errorf("manifest has invalid dimensions %d", m.Model.Dimensions)
	}
	stride := m.Model.Dimensions * 2
	seen := make(map[string]struct{}, len(m.Chunks))
	for i, ch := range m.Chunks {
		if ch.ID == "" {
			return fmt.Errorf("manifest chunk %d has empty id", i)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("manifest has duplicate chunk id %q", ch.ID)
		}
		seen[ch.ID] = struct{}{}
		if ch.EmbeddingOffset != i*stride {
			return fmt.Errorf("chunk %q embedding offset %d does not match manifest order (expected %d)",
				ch.ID, ch.EmbeddingOffset, i*stride)
		}
	}
	return nil
}

// ChunkByID returns the manifest record for id, or nil when unknown.
func (m *ArtifactManifest) ChunkByID(id string) *ManifestChunk {
	for i := range m.Chunks {
		if m.Chunks[i].ID == id {
			return &m.Chunks[i]
		}
	}
	return nil
}

// CacheRecord is the single-slot persisted corpus snapshot (key "current").
// Chunks holds the parsed text array in manifest order.
type CacheRecord struct {
	BuildHash  string            `json:"buildHash"`
	Timestamp  time.Time         `json:"timestamp"`
	Embeddings []byte            `json:"-"`
	Manifest   *ArtifactManifest `json:"manifest"`
	Chunks     []string          `json:"chunks"`
}
