package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/geopard-lu/geopard/internal/domain"
	"github.com/geopard-lu/geopard/internal/metrics"
	"github.com/geopard-lu/geopard/internal/retry"
)

// Reranker scores query/passage pairs with a single cross-encoder-style chat
// call. The model sees all passages at once and returns one relevance score
// per passage, which is more precise than the first-pass fusion score.
type Reranker struct {
	client *openai.Client
	model  string
	policy retry.Policy
	logger *zap.Logger
}

// RerankerConfig holds the reranker settings.
type RerankerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewReranker creates an LLM-backed reranker.
func NewReranker(cfg *RerankerConfig) *Reranker {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Reranker{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		policy: retry.DefaultPolicy(),
		logger: cfg.Logger,
	}
}

const rerankSystemPrompt = `You score how relevant each numbered passage is to a user question about geospatial datasets.
Return ONLY a JSON array of numbers between 0 and 100, one per passage, in passage order.
Example: [85, 20, 60]`

// passageExcerptLimit bounds per-passage text sent to the scoring model.
const passageExcerptLimit = 1200

// Rerank implements domain.Reranker. Returned scores are normalized to [0,1],
// in passage order. Callers degrade to the fused retrieval order on error.
func (r *Reranker) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	for i, p := range passages {
		fmt.Fprintf(&sb, "Passage %d:\n%s\n\n", i+1, excerpt(p, passageExcerptLimit))
	}

	apiReq := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rerankSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		MaxTokens:   16 * len(passages),
		Temperature: 0,
	}

	var resp openai.ChatCompletionResponse
	start := time.Now()

	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.client.CreateChatCompletion(ctx, apiReq)
		return callErr
	})

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("rerank", r.model, "error").Inc()
		return nil, parseAPIError(err, domain.ErrGenerationUnavailable)
	}
	if len(resp.Choices) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues("rerank", r.model, "error").Inc()
		return nil, fmt.Errorf("empty rerank response: %w", domain.ErrGenerationUnavailable)
	}

	scores, err := parseScores(resp.Choices[0].Message.Content, len(passages))
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("rerank", r.model, "error").Inc()
		return nil, err
	}

	metrics.ProviderRequestsTotal.WithLabelValues("rerank", r.model, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues("rerank", r.model).Observe(duration.Seconds())

	return scores, nil
}

// parseScores extracts the JSON score array from the model output and
// normalizes 0-100 scores to [0,1].
func parseScores(content string, want int) ([]float64, error) {
	openIdx := strings.Index(content, "[")
	closeIdx := strings.LastIndex(content, "]")
	if openIdx < 0 || closeIdx <= openIdx {
		return nil, fmt.Errorf("no score array in rerank output: %q", excerpt(content, 120))
	}

	var raw []float64
	if err := json.Unmarshal([]byte(content[openIdx:closeIdx+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse rerank scores: %w", err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("expected %d rerank scores, got %d", want, len(raw))
	}

	scores := make([]float64, len(raw))
	for i, s := range raw {
		scores[i] = min(max(s/100.0, 0), 1)
	}
	return scores, nil
}

// excerpt truncates on a rune boundary so multi-byte characters never split.
func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
