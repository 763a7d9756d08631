package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token usage through the
// decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Completer generates a free-text answer from a structured prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a provider-neutral chat completion input.
type CompletionRequest struct {
	System      string
	Messages    []Turn
	MaxTokens   int
	Temperature float32
}

// Reranker scores query/passage pairs with a secondary relevance model.
// Scores are returned in passage order, nominally in [0,1].
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
