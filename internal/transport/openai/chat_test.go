package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/geopard-lu/geopard/internal/domain"
)

func chatCompletionJSON(content, finishReason string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": finishReason,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     20,
			"completion_tokens": 30,
			"total_tokens":      50,
		},
	}
}

func newTestCompleter(t *testing.T, handler http.HandlerFunc) (*Completer, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewCompleter(&CompleterConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	}), server
}

func TestCompleter_Complete(t *testing.T) {
	var gotReq struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
	}

	completer, _ := newTestCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionJSON("Die Antwort [Quelle 1].", "stop"))
	})

	text, err := completer.Complete(context.Background(), domain.CompletionRequest{
		System:      "Du bist ein Assistent.",
		Messages:    []domain.Turn{{Role: "user", Content: "Welche Höhendaten gibt es?"}},
		MaxTokens:   3000,
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "Die Antwort [Quelle 1]." {
		t.Errorf("unexpected completion text: %q", text)
	}

	if len(gotReq.Messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" {
		t.Errorf("expected first message to be system, got %q", gotReq.Messages[0].Role)
	}
	if gotReq.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", gotReq.Temperature)
	}
	if gotReq.MaxTokens != 3000 {
		t.Errorf("expected max_tokens 3000, got %d", gotReq.MaxTokens)
	}
}

func TestCompleter_ContentFilterFinishReason(t *testing.T) {
	completer, _ := newTestCompleter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionJSON("", "content_filter"))
	})

	_, err := completer.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Turn{{Role: "user", Content: "frage"}},
	})
	if !errors.Is(err, domain.ErrGenerationRejected) {
		t.Fatalf("expected ErrGenerationRejected, got %v", err)
	}
}

func TestCompleter_PolicyRejectionNotRetried(t *testing.T) {
	var calls int
	completer, _ := newTestCompleter(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "content policy",
				"type":    "invalid_request_error",
				"code":    "content_filter",
			},
		})
	})

	_, err := completer.Complete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Turn{{Role: "user", Content: "frage"}},
	})
	if !errors.Is(err, domain.ErrGenerationRejected) {
		t.Fatalf("expected ErrGenerationRejected, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("policy rejection must not be retried, got %d calls", calls)
	}
}
