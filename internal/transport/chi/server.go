package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/geopard-lu/geopard/internal/domain"
	healthuc "github.com/geopard-lu/geopard/internal/usecase/health"
)

// maxTopK bounds the requested context size; larger values add prompt cost
// without adding answer quality.
const maxTopK = 20

// maxHistoryTurns bounds accepted conversation history per request.
const maxHistoryTurns = 20

// Answerer runs the question-answering pipeline.
type Answerer interface {
	Answer(ctx context.Context, query domain.Query) (domain.AnswerResult, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the answer pipeline over HTTP.
type Server struct {
	answers       Answerer
	health        *healthuc.Service
	logger        *zap.Logger
	defaultTopK   int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. defaultTopK is applied to requests
// that omit top_k; values <= 0 fall back to domain.DefaultTopK.
func NewServer(answers Answerer, health *healthuc.Service, logger *zap.Logger, defaultTopK int) *Server {
	if defaultTopK <= 0 {
		defaultTopK = domain.DefaultTopK
	}
	s := &Server{
		answers:     answers,
		health:      health,
		logger:      logger,
		defaultTopK: defaultTopK,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, codeEmbeddingUnavailable),
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, codeRetrievalUnavailable),
		sentinelHandler(domain.ErrGenerationUnavailable, http.StatusBadGateway, codeGenerationUnavailable),
	}
	return s
}

// Register mounts all routes on the given router.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/ask", s.Ask)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type askRequest struct {
	Question string        `json:"question"`
	TopK     int           `json:"top_k,omitempty"`
	History  []domain.Turn `json:"history,omitempty"`
}

// Ask handles POST /v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.TopK == 0 {
		req.TopK = s.defaultTopK
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		writeError(w, http.StatusBadRequest, codeInvalidInput,
			"top_k must be between 1 and 20")
		return
	}
	if len(req.History) > maxHistoryTurns {
		writeError(w, http.StatusBadRequest, codeInvalidInput,
			"history exceeds the maximum of 20 turns")
		return
	}
	for _, turn := range req.History {
		if turn.Role != "user" && turn.Role != "assistant" {
			writeError(w, http.StatusBadRequest, codeInvalidInput,
				"history roles must be user or assistant")
			return
		}
	}

	query, err := domain.NewQuery(req.Question, req.TopK, req.History)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	result, err := s.answers.Answer(r.Context(), query)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type errorCode string

const (
	codeBadRequest            errorCode = "bad_request"
	codeUnauthorized          errorCode = "unauthorized"
	codeInvalidInput          errorCode = "invalid_input"
	codeEmbeddingUnavailable  errorCode = "embedding_unavailable"
	codeRetrievalUnavailable  errorCode = "retrieval_unavailable"
	codeGenerationUnavailable errorCode = "generation_unavailable"
	codeInternalError         errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrEmbeddingUnavailable,
		domain.ErrRetrievalUnavailable,
		domain.ErrGenerationUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
