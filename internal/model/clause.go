package model

// RetrievedClause is a policy chunk returned by the vector index for a query
type RetrievedClause struct {
	Text       string  `json:"text"`
	Section    string  `json:"section"`
	Similarity float64 `json:"similarity"` // Clamped to [0, 1]
	ChunkID    string  `json:"chunk_id"`
}

// ClampSimilarity bounds a raw similarity score to [0, 1]
func ClampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
