// Package search adapts FT.SEARCH results to catalog documents and hits.
package search

import (
	"context"
	"fmt"

	"github.com/geopard-lu/geopard/internal/db"
	"github.com/geopard-lu/geopard/internal/domain"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

// Repo runs vector and keyword searches against the catalog index.
type Repo struct {
	store     store
	indexName string
}

// New creates a search repository over the given catalog index.
func New(s store, indexName string) *Repo {
	return &Repo{store: s, indexName: indexName}
}

// SearchKNN performs a vector similarity search. Each returned hit carries the
// cosine similarity in VectorScore.
func (r *Repo) SearchKNN(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName,
		Vector:       vector,
		K:            topK,
		ReturnFields: documentFields(),
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w: %w", err, domain.ErrRetrievalUnavailable)
	}

	hits := make([]domain.SearchHit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		hits = append(hits, domain.SearchHit{
			Document:    documentFromEntry(entry),
			VectorScore: entry.Score,
			KeywordRank: -1,
		})
	}
	return hits, nil
}

// SearchBM25 performs a keyword search. Each returned hit carries the BM25
// score in KeywordScore and its 0-based rank in KeywordRank.
func (r *Repo) SearchBM25(ctx context.Context, query string, topK int) ([]domain.SearchHit, error) {
	q := &db.TextQuery{
		IndexName:    r.indexName,
		Query:        query,
		TopK:         topK,
		ReturnFields: documentFields(),
	}

	sr, err := r.store.SearchBM25(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search bm25: %w: %w", err, domain.ErrRetrievalUnavailable)
	}

	hits := make([]domain.SearchHit, 0, len(sr.Entries))
	for rank, entry := range sr.Entries {
		hits = append(hits, domain.SearchHit{
			Document:     documentFromEntry(entry),
			KeywordScore: entry.Score,
			KeywordRank:  rank,
		})
	}
	return hits, nil
}
