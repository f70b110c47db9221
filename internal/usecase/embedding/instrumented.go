package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/metrics"
)

// DefaultMaxBatchSize caps texts per provider call when none is configured.
const DefaultMaxBatchSize = 10

// InstrumentedEmbedder rate limits calls to a provider, splits batches to the
// provider's request size and logs every call. Transport metrics are recorded
// by the provider adapters.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	limiter  *rate.Limiter
	maxBatch int
	logger   *zap.Logger
}

// InstrumentedConfig configures an InstrumentedEmbedder.
type InstrumentedConfig struct {
	Provider     string
	Model        string
	Limiter      *rate.Limiter // nil = unlimited
	MaxBatchSize int
}

// NewLimiter returns nil for rps <= 0 so callers can pass config through unchanged.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// NewInstrumentedEmbedder wraps inner. Embedders of one provider should share
// a limiter so the provider quota is enforced across models.
func NewInstrumentedEmbedder(inner domain.Embedder, cfg InstrumentedConfig, logger *zap.Logger) *InstrumentedEmbedder {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: cfg.Provider,
		model:    cfg.Model,
		limiter:  cfg.Limiter,
		maxBatch: cfg.MaxBatchSize,
		logger:   logger,
	}
}

// Embed waits for the limiter and delegates.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// BatchEmbed splits texts into provider-sized requests, each waiting for the limiter.
func (p *InstrumentedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}

	for offset := 0; offset < len(texts); offset += p.maxBatch {
		end := min(offset+p.maxBatch, len(texts))
		chunk := texts[offset:end]

		if err := p.wait(ctx); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		res, err := domain.BatchEmbed(ctx, p.inner, chunk)
		if err != nil {
			p.logger.Error("Batch embedding request failed",
				zap.String("provider", p.provider),
				zap.String("model", p.model),
				zap.Int("chunk_offset", offset),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed [%d:%d]: %w", offset, end, err)
		}
		if len(res.Embeddings) != len(chunk) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed [%d:%d]: got %d vectors: %w",
				offset, end, len(res.Embeddings), domain.ErrEmbeddingProviderError)
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

// HealthCheck forwards to the inner embedder.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (p *InstrumentedEmbedder) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	start := time.Now()
	err := p.limiter.Wait(ctx)
	metrics.EmbeddingRateLimitWait.WithLabelValues(p.provider).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	switch {
	case ctx.Err() == nil:
		// the reservation would outlive the deadline
		return fmt.Errorf("%s rate limit: %w: %w", p.provider, domain.ErrRateLimited, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s rate limit: %w: %w", p.provider, domain.ErrTimeout, ctx.Err())
	default:
		return fmt.Errorf("%s rate limit: %w", p.provider, ctx.Err())
	}
}
