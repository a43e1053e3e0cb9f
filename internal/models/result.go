package models

// FusedResult is a per-query intermediate: a chunk ID, its combined fusion score,
// and the manifest record for that chunk.
type FusedResult struct {
	ChunkID string         `json:"chunkId"`
	Score   float64        `json:"score"`
	Chunk   *ManifestChunk `json:"chunk"`
}

// RetrievedChunk is the final output unit handed to the generation collaborator.
type RetrievedChunk struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
	Title   string  `json:"title"`
	Section string  `json:"section,omitempty"`
	URL     string  `json:"url"`
	Tokens  int     `json:"tokens"`
}

// LexicalResult is one hit from the lexical (keyword) index collaborator.
type LexicalResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// SemanticResult is one hit from the search engine, in descending score order.
type SemanticResult struct {
	ChunkID string         `json:"chunkId"`
	Score   float64        `json:"score"`
	Chunk   *ManifestChunk `json:"chunk"`
}
