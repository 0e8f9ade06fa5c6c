package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gosexpert/tagvec/internal/domain"
	"github.com/gosexpert/tagvec/internal/domain/query"
	healthuc "github.com/gosexpert/tagvec/internal/usecase/health"
	searchuc "github.com/gosexpert/tagvec/internal/usecase/search"
)

// Server exposes tag search over HTTP.
type Server struct {
	search *searchuc.Service
	health *healthuc.Service
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(search *searchuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{search: search, health: health, logger: logger}
}

// Routes registers the server's handlers on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/v1/search", s.handleSearch)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type matchResponse struct {
	TagID   int64   `json:"tag_id"`
	TagName string  `json:"tag_name"`
	Score   float64 `json:"score"`
}

type searchResponse struct {
	Query   string          `json:"query"`
	Matches []matchResponse `json:"matches"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleSearch serves GET /v1/search?q=...&top_k=...&threshold=...
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")

	topK := query.DefaultTopK
	if v := r.URL.Query().Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "top_k must be an integer")
			return
		}
		topK = n
	}

	threshold := query.DefaultThreshold
	if v := r.URL.Query().Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "threshold must be a number")
			return
		}
		threshold = f
	}

	q, err := query.New(text, topK, threshold)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	matches, err := s.search.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]matchResponse, len(matches))
	for i, m := range matches {
		items[i] = matchResponse{TagID: m.TagID, TagName: m.TagName, Score: m.Score}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q.Text(), Matches: items})
}

// handleHealth serves GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", safeDomainMessage(err))
	case errors.Is(err, domain.ErrEmbedding):
		s.logger.Warn("embedding provider error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "embedding_provider_error", safeDomainMessage(err))
	case errors.Is(err, domain.ErrStore):
		s.logger.Error("tag store error", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", safeDomainMessage(err))
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// safeDomainMessage returns a client-facing message without exposing internals.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrValidation) {
		return err.Error()
	}
	for _, s := range []error{domain.ErrEmbedding, domain.ErrStore, domain.ErrNotFound} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
