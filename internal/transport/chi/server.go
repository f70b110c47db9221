// Package chi exposes the match service over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/search/request"
	"github.com/climateseal/carbonmatch/internal/domain/search/result"
	logpkg "github.com/climateseal/carbonmatch/internal/logger"
	"github.com/climateseal/carbonmatch/internal/metrics"
	healthuc "github.com/climateseal/carbonmatch/internal/usecase/health"
	"github.com/climateseal/carbonmatch/internal/version"
)

// maxBodyBytes caps request bodies; a full batch of maximum-length labels fits.
const maxBodyBytes = 1 << 20

// Matcher answers batch match requests.
type Matcher interface {
	MatchBatch(ctx context.Context, p request.Params) (*result.Batch, error)
}

// HealthChecker aggregates dependency probes.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server holds the HTTP handlers.
type Server struct {
	match  Matcher
	health HealthChecker
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(match Matcher, health HealthChecker, logger *zap.Logger) *Server {
	return &Server{match: match, health: health, logger: logger}
}

// Routes builds the router with the full middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/", s.Info)
	r.Post("/match", s.Match)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/match", s.Match)
	})
	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

type matchRequest struct {
	Labels         []string `json:"labels"`
	TopK           *int     `json:"top_k"`
	MinScore       *float64 `json:"min_score"`
	EmbeddingModel string   `json:"embedding_model"`
	SearchMethod   string   `json:"search_method"`
}

type matchResponse struct {
	Success     bool          `json:"success"`
	Results     []labelResult `json:"results"`
	Request     requestEcho   `json:"request"`
	Performance performance   `json:"performance"`
	Message     string        `json:"message,omitempty"`
}

type labelResult struct {
	QueryLabel string      `json:"query_label"`
	Matches    []matchItem `json:"matches"`
	Error      *string     `json:"error"`
}

type matchItem struct {
	ActivityName string   `json:"activity_name"`
	Geography    string   `json:"geography,omitempty"`
	KgCO2eq      *float64 `json:"kg_co2eq"`
	Unit         string   `json:"reference_product_unit"`
	Score        float64  `json:"score"`
}

type requestEcho struct {
	Labels         []string `json:"labels"`
	TopK           int      `json:"top_k"`
	MinScore       float64  `json:"min_score"`
	EmbeddingModel string   `json:"embedding_model"`
	SearchMethod   string   `json:"search_method"`
}

type performance struct {
	ElapsedTime string `json:"elapsed_time"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Match handles POST /match and POST /api/v1/match.
func (s *Server) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	batch, err := s.match.MatchBatch(r.Context(), request.Params{
		Labels:         req.Labels,
		TopK:           req.TopK,
		MinScore:       req.MinScore,
		SearchMethod:   req.SearchMethod,
		EmbeddingModel: req.EmbeddingModel,
	})
	if err != nil {
		s.handleError(r.Context(), w, err)
		return
	}

	annotate(r.Context(),
		zap.Int("labels", len(batch.Results)),
		zap.Int("failed_labels", batch.Failures()),
		zap.String("search_method", string(batch.Request.Method())),
		zap.String("embedding_model", batch.Request.EmbeddingModel()),
		zap.Int("top_k", batch.Request.TopK()),
	)
	writeJSON(w, http.StatusOK, batchToResponse(batch))
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
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

// Info handles GET /.
func (s *Server) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "carbonmatch",
		"version": version.Version,
		"commit":  version.Commit,
		"endpoints": map[string]string{
			"match":   "POST /match, POST /api/v1/match",
			"health":  "GET /health",
			"metrics": "GET /metrics",
		},
	})
}

func (s *Server) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContext(ctx)
	if errors.Is(err, domain.ErrValidation) {
		log.Debug("rejected match request", zap.Error(err))
		writeFailure(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	log.Error("match failed", zap.Error(err))
	writeFailure(w, http.StatusInternalServerError, "match failed: "+err.Error())
}

// validationMessage drops the sentinel prefix: "validation failed: top_k must be positive" -> "top_k must be positive".
func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
}

func batchToResponse(b *result.Batch) matchResponse {
	results := make([]labelResult, len(b.Results))
	for i, lr := range b.Results {
		items := make([]matchItem, len(lr.Matches))
		for j := range lr.Matches {
			rec := lr.Matches[j].Record()
			items[j] = matchItem{
				ActivityName: rec.ActivityName,
				Geography:    rec.Geography,
				KgCO2eq:      rec.KgCO2eq,
				Unit:         rec.Unit,
				Score:        lr.Matches[j].Score(),
			}
		}
		results[i] = labelResult{QueryLabel: lr.Label, Matches: items}
		if lr.Err != nil {
			msg := lr.Err.Error()
			results[i].Error = &msg
		}
	}

	req := b.Request
	return matchResponse{
		Success: true,
		Results: results,
		Request: requestEcho{
			Labels:         req.Labels(),
			TopK:           req.TopK(),
			MinScore:       req.MinScore(),
			EmbeddingModel: req.EmbeddingModel(),
			SearchMethod:   string(req.Method()),
		},
		Performance: performance{ElapsedTime: fmt.Sprintf("%.2fs", b.Elapsed.Seconds())},
		Message:     b.Message,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, failureResponse{Success: false, Error: msg})
}
