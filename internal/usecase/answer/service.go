// Package answer implements the retrieval-augmented answer pipeline:
// hybrid retrieval, semantic reranking, grounded generation with inline
// [Quelle N] citations, confidence scoring, and response caching.
package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/geopard-lu/geopard/internal/domain"
	"github.com/geopard-lu/geopard/internal/logger"
	"github.com/geopard-lu/geopard/internal/metrics"
	"github.com/geopard-lu/geopard/internal/repository/respcache"
)

// Fallback answers surfaced instead of errors for the two non-error
// degraded outcomes.
const (
	noHitsAnswer   = "Ich konnte keine relevanten Datensätze zu Ihrer Frage finden."
	rejectedAnswer = "Entschuldigung, diese Anfrage kann ich nicht beantworten. Bitte formulieren Sie Ihre Frage zu den Geodaten des Kantons Luzern um."
)

// Timeouts bound each external provider call independently.
type Timeouts struct {
	Embed    time.Duration
	Search   time.Duration
	Rerank   time.Duration
	Generate time.Duration
}

// Config holds pipeline tuning knobs.
type Config struct {
	// RetrievalMultiplier scales top_k into the candidate count fetched for
	// the reranker; MinCandidates bounds it from below.
	RetrievalMultiplier int
	MinCandidates       int
	MaxTokens           int
	Temperature         float32
	Timeouts            Timeouts
}

// Service executes the answer pipeline. Each call runs sequentially;
// concurrent calls share only the caches, which tolerate duplicate work.
type Service struct {
	embedder  Embedder
	repo      SearchRepository
	reranker  Reranker
	completer Completer
	cache     ResultCache
	cfg       Config
}

// New creates the pipeline service. reranker and cache may be nil: a nil
// reranker always degrades to fused retrieval order, a nil cache disables
// memoization.
func New(embedder Embedder, repo SearchRepository, reranker Reranker, completer Completer, cache ResultCache, cfg Config) *Service {
	if cfg.RetrievalMultiplier <= 0 {
		cfg.RetrievalMultiplier = 3
	}
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = 20
	}
	return &Service{
		embedder:  embedder,
		repo:      repo,
		reranker:  reranker,
		completer: completer,
		cache:     cache,
		cfg:       cfg,
	}
}

// Answer runs the full pipeline for one question. It returns a well-formed
// AnswerResult or one of the typed domain errors; reranker unavailability,
// zero hits, and invalid citations degrade the result instead of failing it.
func (s *Service) Answer(ctx context.Context, query domain.Query) (domain.AnswerResult, error) {
	log := logger.FromContext(ctx)

	cacheKey := respcache.Key(query.Text(), query.TopK(), query.History())
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			metrics.AnswersTotal.WithLabelValues("cached").Inc()
			return cached, nil
		}
	}

	// Embed
	embedding, err := s.embed(ctx, query.Text())
	if err != nil {
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		return domain.AnswerResult{}, err
	}

	// Retrieve
	candidates, err := s.retrieve(ctx, query.Text(), embedding, query.TopK())
	if err != nil {
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		return domain.AnswerResult{}, err
	}

	if len(candidates) == 0 {
		result := domain.AnswerResult{
			Text:       noHitsAnswer,
			Confidence: scoreConfidence(nil, nil),
		}
		metrics.AnswersTotal.WithLabelValues("no_hits").Inc()
		metrics.AnswerConfidence.Observe(float64(result.Confidence))
		if s.cache != nil {
			s.cache.Put(ctx, cacheKey, result)
		}
		return result, nil
	}

	// Rerank (degrades gracefully)
	rankedCtx := s.rerankCandidates(ctx, query.Text(), candidates, query.TopK())

	// Generate
	rawText, err := s.synthesize(ctx, query, rankedCtx)
	if err != nil {
		if errors.Is(err, domain.ErrGenerationRejected) {
			log.Warn("Generation rejected by content policy", zap.String("query", query.Text()))
			metrics.AnswersTotal.WithLabelValues("rejected").Inc()
			// Fixed fallback, never cached.
			return domain.AnswerResult{Text: rejectedAnswer, Confidence: 0}, nil
		}
		metrics.AnswersTotal.WithLabelValues("error").Inc()
		return domain.AnswerResult{}, err
	}

	// Extract citations and score
	text, claimed := stripConfidenceTrailer(rawText)
	if claimed >= 0 {
		log.Debug("Model self-assessed confidence", zap.Int("claimed", claimed))
	}

	citations := extractCitations(text, rankedCtx)
	result := domain.AnswerResult{
		Text:       text,
		Citations:  citations,
		Confidence: scoreConfidence(rankedCtx, citations),
		Sources:    collectSources(citations, rankedCtx),
	}

	metrics.AnswersTotal.WithLabelValues("ok").Inc()
	metrics.AnswerConfidence.Observe(float64(result.Confidence))

	if s.cache != nil {
		s.cache.Put(ctx, cacheKey, result)
	}

	log.Info("Answered query",
		zap.Int("context_size", len(rankedCtx)),
		zap.Int("citations", len(citations)),
		zap.Int("confidence", result.Confidence),
	)

	return result, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeouts.Embed)
	defer cancel()

	res, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return res.Embedding, nil
}

// retrieve issues the combined vector+keyword retrieval and fuses both
// signals. Candidate count is top_k scaled by the retrieval multiplier,
// floored at MinCandidates, so the reranker has enough to reorder.
func (s *Service) retrieve(ctx context.Context, queryText string, vector []float32, topK int) ([]domain.SearchHit, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeouts.Search)
	defer cancel()

	topN := max(topK*s.cfg.RetrievalMultiplier, s.cfg.MinCandidates)

	knn, err := s.repo.SearchKNN(ctx, vector, topN)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	bm25, err := s.repo.SearchBM25(ctx, queryText, topN)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	fused := fuseRRF(knn, bm25, topN)
	return dedupeByMetaUID(fused), nil
}

func (s *Service) rerankCandidates(ctx context.Context, queryText string, hits []domain.SearchHit, topK int) domain.RankedContext {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeouts.Rerank)
	defer cancel()

	return s.rerank(ctx, queryText, hits, topK)
}

func (s *Service) synthesize(ctx context.Context, query domain.Query, rankedCtx domain.RankedContext) (string, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeouts.Generate)
	defer cancel()

	prompt := buildPrompt(query.Text(), rankedCtx, query.History(), s.cfg.MaxTokens, s.cfg.Temperature)

	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	return text, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
