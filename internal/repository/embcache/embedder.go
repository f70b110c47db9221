// Package embcache caches embedding vectors in a key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/metrics"
)

// store is the subset of db.KVStore the cache uses.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMultiWithTTL(ctx context.Context, entries []db.KV, ttl time.Duration) error
}

// Config names the cache namespace of one model.
type Config struct {
	KeyPrefix string
	Model     string
	Dims      int
	TTL       time.Duration
}

// CachedEmbedder returns stored vectors for texts it has seen and delegates the rest.
// Cache failures are logged and never fail the call.
type CachedEmbedder struct {
	inner  domain.Embedder
	store  store
	prefix string
	dims   int
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a caching decorator. Keys are namespaced by model and dimension so
// switching either never serves stale vectors.
func New(inner domain.Embedder, s store, cfg Config, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		store:  s,
		prefix: fmt.Sprintf("%s%s:%d:", cfg.KeyPrefix, cfg.Model, cfg.Dims),
		dims:   cfg.Dims,
		ttl:    cfg.TTL,
		logger: logger,
	}
}

// Embed returns a cached vector (zero token usage) or calls the inner embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)
	if vec, ok := c.get(ctx, key); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	res, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	c.put(ctx, key, res.Embedding)
	return res, nil
}

// BatchEmbed looks every text up in one round trip and embeds only the misses.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	vectors := make([][]float32, len(texts))
	cached, err := c.store.GetMulti(ctx, keys)
	if err != nil {
		c.logger.Warn("Embedding cache lookup failed", zap.Int("keys", len(keys)), zap.Error(err))
		cached = nil
	}

	var missIdx []int
	var missTexts []string
	for i := range texts {
		if i < len(cached) && cached[i] != nil {
			if vec, decErr := c.decode(cached[i]); decErr == nil {
				vectors[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("hit").Add(float64(len(texts) - len(missIdx)))
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Add(float64(len(missIdx)))

	if len(missIdx) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: vectors}, nil
	}

	res, err := domain.BatchEmbed(ctx, c.inner, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed %d uncached texts: %w", len(missTexts), err)
	}
	if len(res.Embeddings) != len(missTexts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("inner embedder returned %d vectors for %d texts: %w",
			len(res.Embeddings), len(missTexts), domain.ErrEmbeddingProviderError)
	}
	entries := make([]db.KV, len(missIdx))
	for j, i := range missIdx {
		vectors[i] = res.Embeddings[j]
		entries[j] = db.KV{Key: keys[i], Value: encode(res.Embeddings[j])}
	}
	if err := c.store.SetMultiWithTTL(ctx, entries, c.ttl); err != nil {
		c.logger.Warn("Embedding cache write failed", zap.Int("keys", len(entries)), zap.Error(err))
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   vectors,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// HealthCheck forwards to the inner embedder.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) key(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Embedding cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	vec, err := c.decode(data)
	if err != nil {
		c.logger.Warn("Discarding cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) put(ctx context.Context, key string, vec []float32) {
	if err := c.store.SetWithTTL(ctx, key, encode(vec), c.ttl); err != nil {
		c.logger.Warn("Embedding cache put failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) decode(data []byte) ([]float32, error) {
	vec, err := decode(data)
	if err != nil {
		return nil, err
	}
	if c.dims > 0 && len(vec) != c.dims {
		return nil, fmt.Errorf("cached vector has %d dimensions, want %d", len(vec), c.dims)
	}
	return vec, nil
}

// encode packs float32 values little-endian.
func encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decode(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid cached embedding: %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
