package db

import (
	"context"
	"time"
)

// Store is the search backend facade combining all sub-interfaces.
//
//nolint:interfacebloat // consumers depend on the sub-interfaces
type Store interface {
	Pinger
	IndexManager
	DocumentWriter
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// ClusterInfo is the subset of the backend root endpoint reported by probes.
type ClusterInfo struct {
	ClusterName string
	Version     string
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
	Info(ctx context.Context) (ClusterInfo, error)
}

// IndexManager provides index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	// VectorDims returns the dims of a dense_vector field in an existing index (0 when unmapped).
	VectorDims(ctx context.Context, index, field string) (int, error)
	Refresh(ctx context.Context, index string) error
	Count(ctx context.Context, index string) (int, error)
}

// DocumentWriter indexes documents.
type DocumentWriter interface {
	// Bulk overwrites docs by ID in one request. Per-document rejections are
	// reported in the result, a non-nil error means the whole request failed.
	Bulk(ctx context.Context, index string, docs []BulkDoc) (*BulkResult, error)
}

// Searcher runs query DSL searches.
type Searcher interface {
	Search(ctx context.Context, q *SearchQuery) (*SearchResult, error)
}

// KV is one key-value pair of a multi-key write.
type KV struct {
	Key   string
	Value []byte
}

// KVStore provides the key-value operations of the embedding cache.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// GetMulti returns one entry per key, nil for missing keys.
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMultiWithTTL(ctx context.Context, entries []KV, ttl time.Duration) error
}
