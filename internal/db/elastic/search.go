package elastic

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/climateseal/carbonmatch/internal/db"
)

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Score  *float64       `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs q and returns hits in backend order.
func (s *Store) Search(ctx context.Context, q *db.SearchQuery) (*db.SearchResult, error) {
	body, err := json.Marshal(q.Body())
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(q.Index),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	var parsed searchResponse
	if err := decode(ctx, db.OpSearch, res, err, &parsed); err != nil {
		return nil, err
	}

	out := &db.SearchResult{
		Total: parsed.Hits.Total.Value,
		Hits:  make([]db.Hit, 0, len(parsed.Hits.Hits)),
	}
	for _, h := range parsed.Hits.Hits {
		hit := db.Hit{ID: h.ID, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}
