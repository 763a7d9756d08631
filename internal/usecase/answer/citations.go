package answer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/geopard-lu/geopard/internal/domain"
)

// citationRegex matches inline markers in the documented [Quelle N] format.
// It matches exactly what buildPrompt instructs the model to emit.
var citationRegex = regexp.MustCompile(`\[Quelle\s+(\d+)\]`)

// extractCitations scans the answer text for citation markers in order of
// first occurrence, deduplicating repeated references to the same index.
// Out-of-range indices are kept with Valid=false instead of failing the
// request; generation errors degrade confidence, not availability.
func extractCitations(text string, context domain.RankedContext) []domain.Citation {
	matches := citationRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]struct{}, len(matches))
	citations := make([]domain.Citation, 0, len(matches))

	for _, m := range matches {
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[index]; ok {
			continue
		}
		seen[index] = struct{}{}

		c := domain.Citation{
			Marker: strings.Trim(m[0], "[]"),
			Index:  index,
		}
		if index >= 1 && index <= len(context) {
			c.DocumentID = context[index-1].Document.ID
			c.Valid = true
		}
		citations = append(citations, c)
	}

	return citations
}

// collectSources orders the result documents: cited documents first, in
// citation order, then uncited-but-retrieved context documents. Invalid
// citations contribute nothing.
func collectSources(citations []domain.Citation, context domain.RankedContext) []domain.Document {
	if len(context) == 0 {
		return nil
	}

	sources := make([]domain.Document, 0, len(context))
	used := make(map[string]struct{}, len(context))

	for _, c := range citations {
		if !c.Valid {
			continue
		}
		doc := context[c.Index-1].Document
		if _, ok := used[doc.ID]; ok {
			continue
		}
		used[doc.ID] = struct{}{}
		sources = append(sources, doc)
	}

	for _, hit := range context {
		if _, ok := used[hit.Document.ID]; ok {
			continue
		}
		used[hit.Document.ID] = struct{}{}
		sources = append(sources, hit.Document)
	}

	return sources
}

// confidenceTrailerRegex matches the self-assessment trailer some completions
// append despite the prompt not asking for one.
var confidenceTrailerRegex = regexp.MustCompile(`(?m)\s*CONFIDENCE:\s*(\d{1,3})\s*%?\s*$`)

// stripConfidenceTrailer removes a trailing "CONFIDENCE: XX%" line and
// returns the cleaned text plus the claimed value (-1 when absent). The
// heuristic scorer stays authoritative; the claim is only logged.
func stripConfidenceTrailer(text string) (string, int) {
	m := confidenceTrailerRegex.FindStringSubmatch(text)
	if m == nil {
		return text, -1
	}
	claimed, err := strconv.Atoi(m[1])
	if err != nil || claimed > 100 {
		claimed = -1
	}
	return strings.TrimSpace(confidenceTrailerRegex.ReplaceAllString(text, "")), claimed
}
