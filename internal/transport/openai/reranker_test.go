package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"
)

func TestReranker_Rerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletionJSON("[90, 10, 55]", "stop"))
	}))
	defer server.Close()

	rr := NewReranker(&RerankerConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Logger:  zap.NewNop(),
	})

	scores, err := rr.Rerank(context.Background(), "Höhendaten", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	want := []float64{0.9, 0.1, 0.55}
	if len(scores) != len(want) {
		t.Fatalf("expected %d scores, got %d", len(want), len(scores))
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
}

func TestReranker_EmptyPassages(t *testing.T) {
	rr := NewReranker(&RerankerConfig{APIKey: "k", Model: "m", Logger: zap.NewNop()})

	scores, err := rr.Rerank(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores != nil {
		t.Fatalf("expected nil scores, got %v", scores)
	}
}

func TestParseScores(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"plain array", "[80, 20]", 2, false},
		{"array with prose", "Scores: [80, 20] as requested.", 2, false},
		{"wrong count", "[80]", 2, true},
		{"no array", "eighty and twenty", 2, true},
		{"malformed", "[80, x]", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores, err := parseScores(tt.content, tt.want)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(scores) != tt.want {
				t.Fatalf("expected %d scores, got %d", tt.want, len(scores))
			}
		})
	}
}

func TestParseScores_ClampsOutOfRange(t *testing.T) {
	scores, err := parseScores("[150, -10]", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores[0] != 1 || scores[1] != 0 {
		t.Errorf("expected clamped scores [1 0], got %v", scores)
	}
}

func TestExcerpt_RuneBoundary(t *testing.T) {
	s := strings.Repeat("ü", 50)
	for _, limit := range []int{1, 3, 99} {
		got := excerpt(s, limit)
		if !utf8.ValidString(got) {
			t.Errorf("limit %d: invalid UTF-8 in excerpt %q", limit, got)
		}
		if len(got) > limit {
			t.Errorf("limit %d: excerpt length %d exceeds limit", limit, len(got))
		}
	}
	if got := excerpt("kurz", 10); got != "kurz" {
		t.Errorf("short text changed: %q", got)
	}
}
