package answer

import "github.com/geopard-lu/geopard/internal/domain"

// Confidence weighting. Retrieval strength of the grounding context carries
// half the score, citation coverage most of the rest; a small bonus rewards
// any valid grounding at all.
const (
	retrievalWeight = 50
	coverageWeight  = 40
	citedBase       = 10

	// emptyContextCeiling caps answers synthesized without grounding.
	emptyContextCeiling = 15
	// zeroCitationPenalty lowers answers that cite nothing.
	zeroCitationPenalty = 20
	// invalidMarkerPenalty is charged per hallucinated citation index.
	invalidMarkerPenalty = 5
	invalidPenaltyCap    = 10
)

// scoreConfidence derives a 0-100 estimate from retrieval and citation
// signals. Retrieval strength averages the rerank scores of the whole
// grounding context, so swapping one cited document for a better-ranked one
// never lowers the score; coverage counts distinct validly cited documents
// against the context size, so citing more of the context always raises it.
func scoreConfidence(context domain.RankedContext, citations []domain.Citation) int {
	if len(context) == 0 {
		return min(5, emptyContextCeiling)
	}

	var rerankSum float64
	for _, hit := range context {
		rerankSum += clamp01(hit.RerankScore)
	}
	retrieval := rerankSum / float64(len(context)) * retrievalWeight

	valid, invalid := 0, 0
	for _, c := range citations {
		if c.Valid {
			valid++
		} else {
			invalid++
		}
	}

	score := retrieval

	if valid == 0 {
		score -= zeroCitationPenalty
	} else {
		coverage := float64(valid) / float64(len(context))
		score += clamp01(coverage)*coverageWeight + citedBase
	}

	score -= float64(min(invalid*invalidMarkerPenalty, invalidPenaltyCap))

	return clampScore(score)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func clampScore(v float64) int {
	return min(max(int(v+0.5), 0), 100)
}
