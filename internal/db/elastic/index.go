package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/climateseal/carbonmatch/internal/db"
)

// CreateIndex creates an index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid index definition: %w", err)
	}
	body, err := json.Marshal(def.Mapping())
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err := s.es.Indices.Create(def.Name,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err := decode(ctx, db.OpCreateIndex, res, err, nil); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return db.ErrIndexExists
		}
		return err
	}
	return nil
}

// DeleteIndex removes an index; a missing index yields db.ErrIndexNotFound.
func (s *Store) DeleteIndex(ctx context.Context, name string) error {
	res, err := s.es.Indices.Delete([]string{name}, s.es.Indices.Delete.WithContext(ctx))
	if err := decode(ctx, db.OpDeleteIndex, res, err, nil); err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return db.ErrIndexNotFound
		}
		return err
	}
	return nil
}

// IndexExists probes the index with HEAD; 404 means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := s.es.Indices.Exists([]string{name}, s.es.Indices.Exists.WithContext(ctx))
	if err == nil && res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return false, nil
	}
	if err := decode(ctx, db.OpIndexExists, res, err, nil); err != nil {
		return false, err
	}
	return true, nil
}

type mappingResponse map[string]struct {
	Mappings struct {
		Properties map[string]struct {
			Type string `json:"type"`
			Dims int    `json:"dims"`
		} `json:"properties"`
	} `json:"mappings"`
}

// VectorDims reads the index mapping and returns the dims of field (0 when unmapped).
func (s *Store) VectorDims(ctx context.Context, index, field string) (int, error) {
	res, err := s.es.Indices.GetMapping(
		s.es.Indices.GetMapping.WithContext(ctx),
		s.es.Indices.GetMapping.WithIndex(index),
	)
	var body mappingResponse
	if err := decode(ctx, db.OpGetMapping, res, err, &body); err != nil {
		return 0, err
	}
	// a single concrete index comes back keyed by its name (or the alias target)
	for _, m := range body {
		if p, ok := m.Mappings.Properties[field]; ok && p.Type == string(db.FieldDenseVector) {
			return p.Dims, nil
		}
	}
	return 0, nil
}

// Refresh makes recent writes visible to search.
func (s *Store) Refresh(ctx context.Context, index string) error {
	res, err := s.es.Indices.Refresh(
		s.es.Indices.Refresh.WithContext(ctx),
		s.es.Indices.Refresh.WithIndex(index),
	)
	return decode(ctx, db.OpRefresh, res, err, nil)
}

// Count returns the number of documents in index.
func (s *Store) Count(ctx context.Context, index string) (int, error) {
	res, err := s.es.Count(
		s.es.Count.WithContext(ctx),
		s.es.Count.WithIndex(index),
	)
	var body struct {
		Count int `json:"count"`
	}
	if err := decode(ctx, db.OpCount, res, err, &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}
