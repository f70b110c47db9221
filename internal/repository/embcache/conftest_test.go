package embcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/domain"
)

// countingEmbedder returns [len(text), 1] for each text and records what it saw.
type countingEmbedder struct {
	mu    sync.Mutex
	seen  []string
	err   error
	batch bool
}

func (m *countingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	m.seen = append(m.seen, text)
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1}, TotalTokens: 5}, nil
}

type batchEmbedder struct{ countingEmbedder }

func (m *batchEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batch = true
	return domain.BatchFallback(ctx, &m.countingEmbedder, texts)
}

// memStore is an in-memory store with injectable failures.
type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) GetMulti(_ context.Context, keys []string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) SetMultiWithTTL(ctx context.Context, entries []db.KV, ttl time.Duration) error {
	for _, e := range entries {
		if err := m.SetWithTTL(ctx, e.Key, e.Value, ttl); err != nil {
			return err
		}
	}
	return nil
}

var errStoreDown = errors.New("connection refused")

func newTestCache(t *testing.T, inner domain.Embedder, s *memStore) *CachedEmbedder {
	t.Helper()
	return New(inner, s, Config{KeyPrefix: "test:", Model: "m1", Dims: 2, TTL: time.Hour}, zaptest.NewLogger(t))
}
