package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/geopard-lu/geopard/internal/domain"
)

func TestRerankReordersByModelScore(t *testing.T) {
	reranker := &mockReranker{scores: []float64{0.2, 0.9, 0.5}}
	svc := newTestService(nil, nil, reranker, nil, nil)

	hits := []domain.SearchHit{
		vectorHit("a", "A", 0.9),
		vectorHit("b", "B", 0.8),
		vectorHit("c", "C", 0.7),
	}

	ranked := svc.rerank(context.Background(), "frage", hits, 3)

	wantOrder := []string{"b", "c", "a"}
	for i, want := range wantOrder {
		if ranked[i].Document.ID != want {
			t.Fatalf("position %d = %q, want %q", i, ranked[i].Document.ID, want)
		}
		if !ranked[i].Reranked {
			t.Errorf("hit %q not marked as reranked", ranked[i].Document.ID)
		}
	}
	if ranked[0].RerankScore != 0.9 {
		t.Errorf("top RerankScore = %v, want 0.9", ranked[0].RerankScore)
	}
	if reranker.lastQuery != "frage" {
		t.Errorf("reranker query = %q, want %q", reranker.lastQuery, "frage")
	}
}

func TestRerankTruncatesToTopK(t *testing.T) {
	svc := newTestService(nil, nil, &mockReranker{}, nil, nil)

	hits := []domain.SearchHit{
		vectorHit("a", "A", 0.9),
		vectorHit("b", "B", 0.8),
		vectorHit("c", "C", 0.7),
	}

	ranked := svc.rerank(context.Background(), "frage", hits, 2)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 hits after truncation, got %d", len(ranked))
	}
}

func TestRerankDegradesOnError(t *testing.T) {
	reranker := &mockReranker{err: errors.New("model overloaded")}
	svc := newTestService(nil, nil, reranker, nil, nil)

	hits := []domain.SearchHit{
		vectorHit("a", "A", 0.9),
		vectorHit("b", "B", 0.8),
	}

	ranked := svc.rerank(context.Background(), "frage", hits, 5)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(ranked))
	}
	// Fused retrieval order survives, scored by vector similarity.
	if ranked[0].Document.ID != "a" || ranked[0].RerankScore != 0.9 {
		t.Errorf("degraded top hit = %q score %v, want a/0.9", ranked[0].Document.ID, ranked[0].RerankScore)
	}
	for _, h := range ranked {
		if h.Reranked {
			t.Errorf("hit %q marked reranked despite degradation", h.Document.ID)
		}
	}
}

func TestRerankDegradesOnScoreCountMismatch(t *testing.T) {
	reranker := &mockReranker{scores: []float64{0.5}}
	svc := newTestService(nil, nil, reranker, nil, nil)

	hits := []domain.SearchHit{
		vectorHit("a", "A", 0.9),
		vectorHit("b", "B", 0.8),
	}

	ranked := svc.rerank(context.Background(), "frage", hits, 5)
	if ranked[0].Reranked || ranked[1].Reranked {
		t.Error("mismatched score count must fall back to retrieval order")
	}
}

func TestRerankNilRerankerUsesVectorOrder(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil, nil)

	hits := []domain.SearchHit{
		vectorHit("low", "Low", 0.3),
		vectorHit("high", "High", 0.95),
	}

	ranked := svc.rerank(context.Background(), "frage", hits, 5)
	if ranked[0].Document.ID != "high" {
		t.Errorf("expected vector-score ordering, got %q first", ranked[0].Document.ID)
	}
}

func TestRerankEmptyCandidates(t *testing.T) {
	svc := newTestService(nil, nil, &mockReranker{}, nil, nil)
	if ranked := svc.rerank(context.Background(), "frage", nil, 5); ranked != nil {
		t.Errorf("expected nil context for no candidates, got %v", ranked)
	}
}

func TestOrderContextTieBreakChain(t *testing.T) {
	// Equal rerank scores: vector score decides.
	a := vectorHit("a", "A", 0.5)
	a.RerankScore = 0.8
	b := vectorHit("b", "B", 0.9)
	b.RerankScore = 0.8

	ranked := orderContext([]domain.SearchHit{a, b}, 5)
	if ranked[0].Document.ID != "b" {
		t.Errorf("vector score tie-break: got %q first, want b", ranked[0].Document.ID)
	}

	// Equal rerank and vector scores: keyword rank decides, absent (-1) last.
	c := keywordHit("c", "C", 4.0, 2)
	c.RerankScore = 0.8
	d := vectorHit("d", "D", 0)
	d.RerankScore = 0.8

	ranked = orderContext([]domain.SearchHit{d, c}, 5)
	if ranked[0].Document.ID != "c" {
		t.Errorf("keyword rank tie-break: got %q first, want c", ranked[0].Document.ID)
	}
}

func TestOrderContextPrefersNewerTitleYear(t *testing.T) {
	old := vectorHit("old", "DTM 2012", 0.8)
	old.RerankScore = 0.8
	newer := vectorHit("new", "DTM 2024", 0.8)
	newer.RerankScore = 0.8

	ranked := orderContext([]domain.SearchHit{old, newer}, 5)
	if ranked[0].Document.ID != "new" {
		t.Errorf("expected newer vintage first on full tie, got %q", ranked[0].Document.ID)
	}
}

func TestTitleYear(t *testing.T) {
	tests := []struct {
		title string
		want  int
	}{
		{"DTM 2024", 2024},
		{"Luftbilder 2012-2015", 2015},
		{"Gewässernetz", 0},
		{"Zonenplan 1998", 0},
	}
	for _, tt := range tests {
		if got := titleYear(tt.title); got != tt.want {
			t.Errorf("titleYear(%q) = %d, want %d", tt.title, got, tt.want)
		}
	}
}
