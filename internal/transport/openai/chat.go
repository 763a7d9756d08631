package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/geopard-lu/geopard/internal/domain"
	"github.com/geopard-lu/geopard/internal/metrics"
	"github.com/geopard-lu/geopard/internal/retry"
)

// Completer is a chat completion provider using the OpenAI-compatible API.
type Completer struct {
	client *openai.Client
	model  string
	policy retry.Policy
	logger *zap.Logger
}

// CompleterConfig holds the chat provider settings.
type CompleterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewCompleter creates an OpenAI-compatible chat completion provider.
func NewCompleter(cfg *CompleterConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Completer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		policy: retry.DefaultPolicy(),
		logger: cfg.Logger,
	}
}

// Complete implements domain.Completer. Transient failures are retried once
// with backoff and surface as domain.ErrGenerationUnavailable; content-policy
// rejections surface as domain.ErrGenerationRejected without retrying.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, turn := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	apiReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	var resp openai.ChatCompletionResponse
	start := time.Now()

	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, apiReq)
		if callErr != nil && isContentRejection(callErr) {
			return retry.Permanent(fmt.Errorf("content rejected: %w", domain.ErrGenerationRejected))
		}
		return callErr
	})

	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("chat", c.model, "error").Inc()
		if errors.Is(err, domain.ErrGenerationRejected) {
			return "", err
		}
		return "", parseAPIError(err, domain.ErrGenerationUnavailable)
	}

	if len(resp.Choices) == 0 {
		metrics.ProviderRequestsTotal.WithLabelValues("chat", c.model, "error").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrGenerationUnavailable)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		metrics.ProviderRequestsTotal.WithLabelValues("chat", c.model, "rejected").Inc()
		return "", fmt.Errorf("completion filtered: %w", domain.ErrGenerationRejected)
	}

	metrics.ProviderRequestsTotal.WithLabelValues("chat", c.model, "success").Inc()
	metrics.ProviderRequestDuration.WithLabelValues("chat", c.model).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		metrics.ProviderTokensTotal.WithLabelValues("chat", c.model, "prompt").
			Add(float64(resp.Usage.PromptTokens))
		metrics.ProviderTokensTotal.WithLabelValues("chat", c.model, "completion").
			Add(float64(resp.Usage.CompletionTokens))
		metrics.ProviderTokensTotal.WithLabelValues("chat", c.model, "total").
			Add(float64(resp.Usage.TotalTokens))
	}

	return choice.Message.Content, nil
}

// isContentRejection reports whether the API refused the request on policy
// grounds rather than failing transiently.
func isContentRejection(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if code, ok := apiErr.Code.(string); ok {
		switch code {
		case "content_filter", "content_policy_violation":
			return true
		}
	}
	return apiErr.Type == "invalid_request_error" && apiErr.HTTPStatusCode == 400 &&
		apiErr.Param != nil && *apiErr.Param == "prompt"
}
