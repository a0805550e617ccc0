package doc

// Chunk is a bounded-size fragment of document text, the retrieval unit.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ScoredChunk pairs a chunk with its similarity score against a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
