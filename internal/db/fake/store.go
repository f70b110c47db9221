// Package fake is an in-memory db.Store that evaluates the query DSL subset
// produced by the match planner. It backs tests and the "fake" backend mode.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/climateseal/carbonmatch/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type index struct {
	def   *db.IndexDefinition
	docs  map[string]map[string]any
	order map[string]int
	seq   int
}

// Store is a concurrency-safe in-memory backend.
type Store struct {
	mu      sync.RWMutex
	indices map[string]*index
	faults  map[string]error
	calls   map[string]int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		indices: make(map[string]*index),
		faults:  make(map[string]error),
		calls:   make(map[string]int),
	}
}

// Fail makes every subsequent call of op (a db.Op* constant) return err. A nil err clears it.
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// Docs returns a copy of the stored documents of index keyed by ID.
func (s *Store) Docs(name string) map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[name]
	if !ok {
		return nil
	}
	out := make(map[string]map[string]any, len(idx.docs))
	for id, d := range idx.docs {
		out[id] = copyDoc(d, nil)
	}
	return out
}

// enter records a call and returns an injected fault, if any. Caller holds no lock.
func (s *Store) enter(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return &db.Error{Op: op, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if err, ok := s.faults[op]; ok {
		return &db.Error{Op: op, Err: err}
	}
	return nil
}

// Ping always succeeds unless a fault is injected for db.OpInfo.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Info(ctx)
	return err
}

// Info reports a synthetic cluster.
func (s *Store) Info(ctx context.Context) (db.ClusterInfo, error) {
	if err := s.enter(ctx, db.OpInfo); err != nil {
		return db.ClusterInfo{}, err
	}
	return db.ClusterInfo{ClusterName: "fake", Version: "8.0.0-fake"}, nil
}

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// CreateIndex registers an empty index.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := s.enter(ctx, db.OpCreateIndex); err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid index definition: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[def.Name]; ok {
		return db.ErrIndexExists
	}
	s.indices[def.Name] = &index{
		def:   def,
		docs:  make(map[string]map[string]any),
		order: make(map[string]int),
	}
	return nil
}

// DeleteIndex drops an index.
func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	if err := s.enter(ctx, db.OpDeleteIndex); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(s.indices, name)
	return nil
}

// IndexExists reports whether name was created.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	if err := s.enter(ctx, db.OpIndexExists); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[name]
	return ok, nil
}

// VectorDims returns the dims of a dense_vector field (0 when unmapped).
func (s *Store) VectorDims(ctx context.Context, name, field string) (int, error) {
	if err := s.enter(ctx, db.OpGetMapping); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[name]
	if !ok {
		return 0, &db.Error{Op: db.OpGetMapping, Status: 404, Err: db.ErrIndexNotFound}
	}
	for _, f := range idx.def.Fields {
		if f.Name == field && f.Type == db.FieldDenseVector {
			return f.VectorDims, nil
		}
	}
	return 0, nil
}

// Refresh is a no-op: writes are visible immediately.
func (s *Store) Refresh(ctx context.Context, name string) error {
	if err := s.enter(ctx, db.OpRefresh); err != nil {
		return err
	}
	return s.withIndex(db.OpRefresh, name, func(*index) {})
}

// Count returns the number of documents in index.
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	if err := s.enter(ctx, db.OpCount); err != nil {
		return 0, err
	}
	n := 0
	err := s.withIndex(db.OpCount, name, func(idx *index) { n = len(idx.docs) })
	return n, err
}

func (s *Store) withIndex(op, name string, fn func(*index)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[name]
	if !ok {
		return &db.Error{Op: op, Status: 404, Err: db.ErrIndexNotFound}
	}
	fn(idx)
	return nil
}

// Bulk overwrites documents by ID, rejecting those that do not fit the explicit mapping.
func (s *Store) Bulk(ctx context.Context, name string, docs []db.BulkDoc) (*db.BulkResult, error) {
	if err := s.enter(ctx, db.OpBulk); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indices[name]
	if !ok {
		return nil, &db.Error{Op: db.OpBulk, Status: 404, Err: db.ErrIndexNotFound}
	}

	res := &db.BulkResult{Items: len(docs)}
	for _, d := range docs {
		if reason := checkMapping(idx.def, d.Source); reason != "" {
			res.Errors = append(res.Errors, db.BulkItemError{
				ID: d.ID, Status: 400, Type: "mapper_parsing_exception", Reason: reason,
			})
			continue
		}
		if _, exists := idx.order[d.ID]; !exists {
			idx.order[d.ID] = idx.seq
			idx.seq++
		}
		idx.docs[d.ID] = copyDoc(d.Source, nil)
	}
	return res, nil
}

func checkMapping(def *db.IndexDefinition, src map[string]any) string {
	for _, f := range def.Fields {
		v, ok := src[f.Name]
		if !ok {
			continue
		}
		switch f.Type {
		case db.FieldFloat:
			if _, ok := toFloat(v); !ok {
				return fmt.Sprintf("failed to parse field [%s] of type [float]", f.Name)
			}
		case db.FieldDenseVector:
			vec, ok := toVector(v)
			if !ok || len(vec) != f.VectorDims {
				return fmt.Sprintf("the [dims] of field [%s] must be %d", f.Name, f.VectorDims)
			}
		}
	}
	return ""
}

// Search evaluates q against every document of the index.
func (s *Store) Search(ctx context.Context, q *db.SearchQuery) (*db.SearchResult, error) {
	if err := s.enter(ctx, db.OpSearch); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[q.Index]
	if !ok {
		return nil, &db.Error{Op: db.OpSearch, Status: 404, Err: db.ErrIndexNotFound}
	}

	type scored struct {
		id    string
		score float64
		seq   int
	}
	var hits []scored
	for id, doc := range idx.docs {
		score, matched, err := evaluate(q.Query, doc)
		if err != nil {
			return nil, &db.Error{Op: db.OpSearch, Status: 400, Err: err}
		}
		if matched {
			hits = append(hits, scored{id: id, score: score, seq: idx.order[id]})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].seq < hits[j].seq
	})

	out := &db.SearchResult{Total: len(hits), Hits: make([]db.Hit, 0, min(len(hits), q.Size))}
	for i := 0; i < len(hits) && i < q.Size; i++ {
		out.Hits = append(out.Hits, db.Hit{
			ID:     hits[i].id,
			Score:  hits[i].score,
			Source: copyDoc(idx.docs[hits[i].id], q.SourceExcludes),
		})
	}
	return out, nil
}

func copyDoc(src map[string]any, excludes []string) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	for _, k := range excludes {
		delete(out, k)
	}
	return out
}

// ErrUnsupportedQuery is returned for query clauses the fake cannot evaluate.
var ErrUnsupportedQuery = errors.New("fake: unsupported query clause")
