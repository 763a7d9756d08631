package domain

import "errors"

var (
	// ErrInvalidInput signals empty or malformed query input. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmbeddingUnavailable signals an embedding provider failure after retries.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrRetrievalUnavailable signals a search backend failure after retries.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationUnavailable signals a chat provider failure after retries.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrGenerationRejected signals a content-policy rejection. Not retriable;
	// mapped to a fixed fallback answer, never cached.
	ErrGenerationRejected = errors.New("generation rejected")
)
