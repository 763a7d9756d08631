package answer

import (
	"context"

	"github.com/geopard-lu/geopard/internal/domain"
)

// SearchRepository defines the storage contract for hybrid retrieval.
type SearchRepository interface {
	// SearchKNN returns vector-similarity hits with VectorScore set.
	SearchKNN(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error)
	// SearchBM25 returns keyword hits with KeywordScore and KeywordRank set.
	SearchBM25(ctx context.Context, query string, topK int) ([]domain.SearchHit, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Reranker scores query/passage pairs; see domain.Reranker.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Completer generates the answer text; see domain.Completer.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// ResultCache memoizes complete answers. Get returns false for absent or
// expired entries; Put never fails the pipeline.
type ResultCache interface {
	Get(ctx context.Context, key string) (domain.AnswerResult, bool)
	Put(ctx context.Context, key string, result domain.AnswerResult)
}
