package answer

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/geopard-lu/geopard/internal/domain"
	"github.com/geopard-lu/geopard/internal/logger"
)

// rerank applies the secondary relevance model to the fused candidates and
// truncates to topK. If the reranker is unavailable the fused retrieval order
// degrades gracefully: RerankScore falls back to VectorScore and the query
// continues with lower confidence instead of failing.
func (s *Service) rerank(ctx context.Context, queryText string, hits []domain.SearchHit, topK int) domain.RankedContext {
	if len(hits) == 0 {
		return nil
	}

	if s.reranker != nil {
		passages := make([]string, len(hits))
		for i, h := range hits {
			passages[i] = rerankPassage(h.Document)
		}

		scores, err := s.reranker.Rerank(ctx, queryText, passages)
		if err == nil && len(scores) == len(hits) {
			for i := range hits {
				hits[i].RerankScore = scores[i]
				hits[i].Reranked = true
			}
			return orderContext(hits, topK)
		}
		logger.FromContext(ctx).Warn("Reranker degraded, using fused retrieval order", zap.Error(err))
	}

	for i := range hits {
		hits[i].RerankScore = hits[i].VectorScore
		hits[i].Reranked = false
	}
	return orderContext(hits, topK)
}

// rerankPassage renders the document text scored by the reranker.
func rerankPassage(d domain.Document) string {
	text := d.Title
	if d.Abstract != "" {
		text += "\n" + d.Abstract
	} else if d.Content != "" {
		text += "\n" + d.Content
	}
	return text
}

// orderContext sorts hits into the deterministic context ordering:
// rerankScore desc, then vectorScore desc, then original keyword rank asc,
// then newest title year as the final tiebreaker.
func orderContext(hits []domain.SearchHit, topK int) domain.RankedContext {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.RerankScore != b.RerankScore {
			return a.RerankScore > b.RerankScore
		}
		if a.VectorScore != b.VectorScore {
			return a.VectorScore > b.VectorScore
		}
		if ra, rb := keywordRankKey(a), keywordRankKey(b); ra != rb {
			return ra < rb
		}
		return titleYear(a.Document.Title) > titleYear(b.Document.Title)
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return domain.RankedContext(hits)
}

// keywordRankKey maps "absent from keyword results" (-1) after every real rank.
func keywordRankKey(h domain.SearchHit) int {
	if h.KeywordRank < 0 {
		return int(^uint(0) >> 1)
	}
	return h.KeywordRank
}

var yearRegex = regexp.MustCompile(`\b(20[0-2][0-9])\b`)

// titleYear extracts the most recent 4-digit year from a dataset title
// (e.g. "DTM 2024"), 0 when none is present.
func titleYear(title string) int {
	best := 0
	for _, m := range yearRegex.FindAllString(title, -1) {
		if y, err := strconv.Atoi(m); err == nil && y > best {
			best = y
		}
	}
	return best
}
