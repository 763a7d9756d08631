package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/geopard-lu/geopard/internal/domain"
	healthuc "github.com/geopard-lu/geopard/internal/usecase/health"
)

// --- Mocks ---

type mockAnswerer struct {
	result    domain.AnswerResult
	err       error
	calls     int
	lastQuery domain.Query
}

func (m *mockAnswerer) Answer(_ context.Context, query domain.Query) (domain.AnswerResult, error) {
	m.calls++
	m.lastQuery = query
	return m.result, m.err
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestServer(answers Answerer, dbErr error) *Server {
	return NewServer(answers, healthuc.New(&mockPinger{err: dbErr}, nil), zap.NewNop(), 0)
}

func postAsk(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/ask", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Ask(rr, req)
	return rr
}

// --- Tests ---

func TestAsk_Success(t *testing.T) {
	answers := &mockAnswerer{
		result: domain.AnswerResult{
			Text:       "Das DTM 2024 [Quelle 1] liefert Geländehöhen.",
			Citations:  []domain.Citation{{Marker: "Quelle 1", Index: 1, DocumentID: "dtm", Valid: true}},
			Confidence: 82,
			Sources:    []domain.Document{{ID: "dtm", Title: "DTM 2024"}},
		},
	}
	srv := newTestServer(answers, nil)

	rr := postAsk(t, srv, `{"question": "  Welche   Höhendaten gibt es? ", "top_k": 3}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp domain.AnswerResult
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != answers.result.Text || resp.Confidence != 82 {
		t.Errorf("unexpected response: %+v", resp)
	}

	if answers.lastQuery.Text() != "Welche Höhendaten gibt es?" {
		t.Errorf("query text = %q, whitespace not normalized", answers.lastQuery.Text())
	}
	if answers.lastQuery.TopK() != 3 {
		t.Errorf("top_k = %d, want 3", answers.lastQuery.TopK())
	}
}

func TestAsk_DefaultTopK(t *testing.T) {
	answers := &mockAnswerer{}
	srv := newTestServer(answers, nil)

	if rr := postAsk(t, srv, `{"question": "Gibt es Luftbilder?"}`); rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if answers.lastQuery.TopK() != domain.DefaultTopK {
		t.Errorf("top_k = %d, want default %d", answers.lastQuery.TopK(), domain.DefaultTopK)
	}
}

func TestAsk_ConfiguredDefaultTopK(t *testing.T) {
	answers := &mockAnswerer{}
	srv := NewServer(answers, healthuc.New(&mockPinger{}, nil), zap.NewNop(), 7)

	if rr := postAsk(t, srv, `{"question": "Gibt es Luftbilder?"}`); rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if answers.lastQuery.TopK() != 7 {
		t.Errorf("top_k = %d, want configured default 7", answers.lastQuery.TopK())
	}

	// Explicit top_k still wins over the configured default.
	if rr := postAsk(t, srv, `{"question": "Gibt es Luftbilder?", "top_k": 2}`); rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if answers.lastQuery.TopK() != 2 {
		t.Errorf("top_k = %d, want explicit 2", answers.lastQuery.TopK())
	}
}

func TestAsk_HistoryForwarded(t *testing.T) {
	answers := &mockAnswerer{}
	srv := newTestServer(answers, nil)

	body := `{"question": "Und als WMS?", "history": [
		{"role": "user", "content": "Gibt es Luftbilder?"},
		{"role": "assistant", "content": "Ja, Orthofotos."}
	]}`
	if rr := postAsk(t, srv, body); rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	history := answers.lastQuery.History()
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("history not forwarded: %+v", history)
	}
}

func TestAsk_InvalidBody_400(t *testing.T) {
	srv := newTestServer(&mockAnswerer{}, nil)

	rr := postAsk(t, srv, `{"question": `)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	var errResp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != codeBadRequest {
		t.Errorf("error code = %s, want %s", errResp.Code, codeBadRequest)
	}
}

func TestAsk_ValidationFailures_400(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty question", `{"question": "   "}`},
		{"negative top_k", `{"question": "Frage?", "top_k": -1}`},
		{"oversized top_k", `{"question": "Frage?", "top_k": 21}`},
		{"bad history role", `{"question": "Frage?", "history": [{"role": "system", "content": "x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := &mockAnswerer{}
			srv := newTestServer(answers, nil)

			rr := postAsk(t, srv, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}

			var errResp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != codeInvalidInput {
				t.Errorf("error code = %s, want %s", errResp.Code, codeInvalidInput)
			}
			if answers.calls != 0 {
				t.Error("pipeline invoked despite invalid input")
			}
		})
	}
}

func TestAsk_DomainErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   errorCode
	}{
		{"embedding unavailable", domain.ErrEmbeddingUnavailable, http.StatusBadGateway, codeEmbeddingUnavailable},
		{"retrieval unavailable", domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, codeRetrievalUnavailable},
		{"generation unavailable", domain.ErrGenerationUnavailable, http.StatusBadGateway, codeGenerationUnavailable},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, codeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&mockAnswerer{err: tt.err}, nil)

			rr := postAsk(t, srv, `{"question": "Welche Höhendaten gibt es?"}`)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}

			var errResp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != tt.wantCode {
				t.Errorf("error code = %s, want %s", errResp.Code, tt.wantCode)
			}
		})
	}
}

func TestHealthCheck_OK(t *testing.T) {
	srv := newTestServer(&mockAnswerer{}, nil)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	srv.HealthCheck(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp healthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("unexpected report: %+v", resp)
	}
}

func TestHealthCheck_DBDown_503(t *testing.T) {
	srv := newTestServer(&mockAnswerer{}, errors.New("conn refused"))

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	srv.HealthCheck(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestRegister_Routes(t *testing.T) {
	srv := newTestServer(&mockAnswerer{result: domain.AnswerResult{Text: "ok"}}, nil)

	r := chirouter.NewRouter()
	srv.Register(r)

	req := httptest.NewRequest("POST", "/v1/ask", strings.NewReader(`{"question": "Frage?"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("POST /v1/ask via router: status = %d, want %d", rr.Code, http.StatusOK)
	}

	req = httptest.NewRequest("GET", "/health", http.NoBody)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health via router: status = %d, want %d", rr.Code, http.StatusOK)
	}
}
