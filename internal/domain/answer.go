package domain

// SearchHit is a per-query candidate from hybrid retrieval.
type SearchHit struct {
	Document     Document `json:"document"`
	VectorScore  float64  `json:"vector_score"`
	KeywordScore float64  `json:"keyword_score"`
	// KeywordRank is the 0-based position in the keyword result list,
	// -1 when the document came from the vector signal only.
	KeywordRank int     `json:"keyword_rank"`
	RerankScore float64 `json:"rerank_score"`
	Reranked    bool    `json:"reranked"`
}

// RankedContext is the grounding context handed to the generator:
// at most top_k hits, ordered by descending RerankScore with the
// deterministic tie-break chain applied.
type RankedContext []SearchHit

// Citation binds an inline [Quelle N] marker to a context document.
type Citation struct {
	Marker     string `json:"marker"`
	Index      int    `json:"index"` // 1-based index into the ranked context
	DocumentID string `json:"document_id,omitempty"`
	Valid      bool   `json:"valid"`
}

// AnswerResult is the complete outcome of one answered question.
type AnswerResult struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	Confidence int        `json:"confidence"` // 0..100
	Sources    []Document `json:"sources"`
	FromCache  bool       `json:"from_cache"`
}

// Turn is one prior conversation message.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
