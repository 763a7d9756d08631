package answer

import "github.com/geopard-lu/geopard/internal/domain"

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

// fuseRRF merges KNN and BM25 hit lists via Reciprocal Rank Fusion.
// score(d) = sum of 1/(k + rank_i(d)) for each ranking where d appears.
// When a document appears in both lists, per-signal scores are merged onto
// one hit so the vector score and the keyword rank both survive fusion.
func fuseRRF(knn, bm25 []domain.SearchHit, topN int) []domain.SearchHit {
	type scored struct {
		hit   domain.SearchHit
		score float64
	}

	merged := make(map[string]*scored, len(knn)+len(bm25))
	order := make([]string, 0, len(knn)+len(bm25))

	for rank, h := range knn {
		s := 1.0 / float64(rrfK+rank+1)
		merged[h.Document.ID] = &scored{hit: h, score: s}
		order = append(order, h.Document.ID)
	}

	for rank, h := range bm25 {
		s := 1.0 / float64(rrfK+rank+1)
		if existing, ok := merged[h.Document.ID]; ok {
			existing.score += s
			existing.hit.KeywordScore = h.KeywordScore
			existing.hit.KeywordRank = h.KeywordRank
		} else {
			merged[h.Document.ID] = &scored{hit: h, score: s}
			order = append(order, h.Document.ID)
		}
	}

	// Insertion order plus score sort keeps fusion deterministic for equal scores.
	results := make([]domain.SearchHit, 0, len(order))
	scores := make([]float64, 0, len(order))
	for _, id := range order {
		s := merged[id]
		results = append(results, s.hit)
		scores = append(scores, s.score)
	}

	sortHitsByScoreStable(results, scores)

	if len(results) > topN {
		results = results[:topN]
	}
	return results
}

// sortHitsByScoreStable sorts hits by descending fused score, preserving
// input order for ties (insertion sort: candidate lists are small).
func sortHitsByScoreStable(hits []domain.SearchHit, scores []float64) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && scores[j] > scores[j-1]; j-- {
			scores[j], scores[j-1] = scores[j-1], scores[j]
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// dedupeByMetaUID keeps the first (best-ranked) hit per dataset. The catalog
// stores several records per dataset family; answering twice from the same
// metauid wastes context slots.
func dedupeByMetaUID(hits []domain.SearchHit) []domain.SearchHit {
	seen := make(map[string]struct{}, len(hits))
	out := hits[:0]
	for _, h := range hits {
		uid := h.Document.MetaUID
		if uid == "" {
			uid = h.Document.ID
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, h)
	}
	return out
}
