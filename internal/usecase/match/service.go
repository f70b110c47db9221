// Package match answers batch emission-factor lookups: each label is planned,
// optionally embedded, searched and ranked independently on a bounded pool.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/search/request"
	"github.com/climateseal/carbonmatch/internal/domain/search/result"
	"github.com/climateseal/carbonmatch/internal/logger"
	"github.com/climateseal/carbonmatch/internal/metrics"
	"github.com/climateseal/carbonmatch/internal/normalize"
)

// Config controls batch execution.
type Config struct {
	Index        string
	Workers      int
	LabelTimeout time.Duration
	Limits       request.Limits
	Tuning       Tuning
}

// Service handles batch match requests.
type Service struct {
	searcher Searcher
	models   Models
	planner  *Planner
	cfg      Config
}

// New creates a match service.
func New(s Searcher, models Models, cfg Config) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.LabelTimeout <= 0 {
		cfg.LabelTimeout = 10 * time.Second
	}
	return &Service{
		searcher: s,
		models:   models,
		planner:  NewPlanner(cfg.Index, cfg.Tuning),
		cfg:      cfg,
	}
}

// Limits returns the defaults and bounds applied to incoming parameters.
func (s *Service) Limits() request.Limits { return s.cfg.Limits }

// MatchBatch validates p and matches every label. Label failures are reported
// on the label; the error is non-nil only for invalid input, an unusable
// embedding model, or a batch in which every label failed with the backend unreachable.
func (s *Service) MatchBatch(ctx context.Context, p request.Params) (*result.Batch, error) {
	start := time.Now()
	req, err := request.New(p, s.cfg.Limits)
	if err != nil {
		return nil, err
	}

	var embedder domain.Embedder
	if req.Method().NeedsVector() {
		e, model, err := s.models.Query(req.EmbeddingModel())
		if err != nil {
			return nil, fmt.Errorf("resolve embedding model: %w", err)
		}
		embedder = e
		ctx = logger.With(ctx, zap.String("embedding_model", model))
	}

	labels := req.Labels()
	results := make([]result.LabelResult, len(labels))

	// In-flight labels outlive request cancellation but not their own timeout.
	detached := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for i, label := range labels {
		if err := ctx.Err(); err != nil {
			results[i] = result.Failed(label, fmt.Errorf("label not started: %w", err))
			metrics.MatchLabelsTotal.WithLabelValues(string(req.Method()), "error").Inc()
			continue
		}
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(detached, s.cfg.LabelTimeout)
			defer cancel()
			results[i] = s.matchLabel(lctx, &req, embedder, label)
			return nil
		})
	}
	_ = g.Wait()

	batch := &result.Batch{Request: req, Results: results, Elapsed: time.Since(start)}
	metrics.MatchBatchDuration.Observe(batch.Elapsed.Seconds())

	if err := unavailable(results); err != nil {
		return nil, fmt.Errorf("every label failed: %w", err)
	}
	if batch.Empty() {
		batch.Message = result.NoMatchMessage
	}

	logger.FromContext(ctx).Debug("Match batch finished",
		zap.Int("labels", len(labels)),
		zap.Int("failed", batch.Failures()),
		zap.String("method", string(req.Method())),
		zap.Duration("elapsed", batch.Elapsed),
	)
	return batch, nil
}

func (s *Service) matchLabel(ctx context.Context, req *request.Request, embedder domain.Embedder, label string) result.LabelResult {
	start := time.Now()
	m := req.Method()
	defer func() {
		metrics.MatchLabelDuration.WithLabelValues(string(m)).Observe(time.Since(start).Seconds())
	}()

	matches, err := s.search(ctx, req, embedder, label)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		logger.FromContext(ctx).Warn("Label match failed",
			zap.String("label", label),
			zap.String("method", string(m)),
			zap.Error(err),
		)
		metrics.MatchLabelsTotal.WithLabelValues(string(m), "error").Inc()
		return result.Failed(label, err)
	}

	outcome := "matched"
	if len(matches) == 0 {
		outcome = "empty"
	}
	metrics.MatchLabelsTotal.WithLabelValues(string(m), outcome).Inc()
	return result.LabelResult{Label: label, Matches: matches}
}

func (s *Service) search(ctx context.Context, req *request.Request, embedder domain.Embedder, label string) ([]result.Match, error) {
	// keyword fields hold values as imported, so only analyzed and vector paths fold
	text := normalize.FoldLabel(label)
	if req.Method().IsKeyword() {
		text = normalize.KeywordLabel(label)
	}

	var vector []float32
	if req.Method().NeedsVector() {
		emb, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("vectorize label: %w", err)
		}
		vector = emb.Embedding
	}

	q, err := s.planner.Build(text, req.Method(), vector, req.TopK())
	if err != nil {
		return nil, fmt.Errorf("plan %s query: %w", req.Method(), err)
	}

	hits, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return Rank(hits, req.TopK(), req.MinScore()), nil
}

// unavailable returns the first backend-unavailable error when every label failed.
func unavailable(results []result.LabelResult) error {
	var first error
	for _, r := range results {
		if r.Err == nil {
			return nil
		}
		if first == nil && errors.Is(r.Err, domain.ErrBackendUnavailable) {
			first = r.Err
		}
	}
	return first
}
