//go:build !cgo

package fastembed

import (
	"context"

	"github.com/climateseal/carbonmatch/internal/domain"
)

// Embedder is the pure-Go stand-in; every call fails with ErrUnavailable.
type Embedder struct{}

// New validates the model name and reports ErrUnavailable.
func New(cfg Config) (*Embedder, error) {
	if _, _, err := Resolve(cfg.Model); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, ErrUnavailable
}

// BatchEmbed implements domain.BatchEmbedder.
func (e *Embedder) BatchEmbed(context.Context, []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchEmbeddingResult{}, ErrUnavailable
}

// Dimensions returns 0.
func (e *Embedder) Dimensions() int { return 0 }

// Close is a no-op.
func (e *Embedder) Close() error { return nil }
