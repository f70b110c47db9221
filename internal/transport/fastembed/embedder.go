//go:build cgo

package fastembed

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/climateseal/carbonmatch/internal/domain"
)

// Embedder runs a local ONNX model. Safe for concurrent use.
type Embedder struct {
	mu        sync.RWMutex
	model     *fastembed.FlagEmbedding
	name      string
	dims      int
	batchSize int
}

// New loads (and on first use downloads) the model into cfg.CacheDir.
func New(cfg Config) (*Embedder, error) {
	cfg = cfg.withDefaults()
	name, dims, err := Resolve(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}

	showProgress := false
	m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                fastembed.EmbeddingModel(name),
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("init fastembed %s: %w", name, err)
	}
	return &Embedder{model: m, name: name, dims: dims, batchSize: cfg.BatchSize}, nil
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{Embedding: res.Embeddings[0]}, nil
}

// BatchEmbed implements domain.BatchEmbedder. Local models report no token usage.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("fastembed: %w", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("fastembed: closed: %w", domain.ErrEmbeddingProviderError)
	}

	vectors, err := e.model.Embed(texts, e.batchSize)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("fastembed %s: %w: %w", e.name, domain.ErrEmbeddingProviderError, err)
	}
	return domain.BatchEmbeddingResult{Embeddings: vectors}, nil
}

// Dimensions returns the model output size.
func (e *Embedder) Dimensions() int { return e.dims }

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	if err != nil {
		return fmt.Errorf("destroy fastembed: %w", err)
	}
	return nil
}
