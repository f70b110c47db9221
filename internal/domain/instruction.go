package domain

import (
	"context"
	"fmt"
)

// InstructionEmbedder prefixes every text with a model-specific instruction,
// e.g. "query: " for E5-style models. Queries and documents use separate instances.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder wraps inner.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Embed embeds instruction+text.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := e.inner.Embed(ctx, e.instruction+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	return res, nil
}

// BatchEmbed embeds instruction+text for every text, batching when inner supports it.
func (e *InstructionEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.instruction + t
	}
	return BatchEmbed(ctx, e.inner, prefixed)
}

// HealthCheck probes inner when it can be probed.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	hc, ok := e.inner.(HealthChecker)
	if !ok {
		return nil
	}
	return hc.HealthCheck(ctx)
}
