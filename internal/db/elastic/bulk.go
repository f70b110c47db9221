package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/climateseal/carbonmatch/internal/db"
)

type bulkAction struct {
	Index bulkMeta `json:"index"`
}

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type bulkResponse struct {
	Took   int  `json:"took"`
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Bulk sends index actions (overwrite by ID) for docs as one NDJSON request.
func (s *Store) Bulk(ctx context.Context, index string, docs []db.BulkDoc) (*db.BulkResult, error) {
	if len(docs) == 0 {
		return &db.BulkResult{}, nil
	}

	body, err := encodeBulk(index, docs)
	if err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: err}
	}

	res, err := s.es.Bulk(bytes.NewReader(body),
		s.es.Bulk.WithContext(ctx),
		s.es.Bulk.WithIndex(index),
	)
	var parsed bulkResponse
	if err := decode(ctx, db.OpBulk, res, err, &parsed); err != nil {
		return nil, err
	}

	out := &db.BulkResult{Took: parsed.Took, Items: len(parsed.Items)}
	if !parsed.Errors {
		return out, nil
	}
	for _, item := range parsed.Items {
		for _, r := range item {
			if r.Error == nil {
				continue
			}
			out.Errors = append(out.Errors, db.BulkItemError{
				ID:     r.ID,
				Status: r.Status,
				Type:   r.Error.Type,
				Reason: r.Error.Reason,
			})
		}
	}
	return out, nil
}

func encodeBulk(index string, docs []db.BulkDoc) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range docs {
		if err := enc.Encode(bulkAction{Index: bulkMeta{Index: index, ID: docs[i].ID}}); err != nil {
			return nil, fmt.Errorf("encode action %s: %w", docs[i].ID, err)
		}
		if err := enc.Encode(docs[i].Source); err != nil {
			return nil, fmt.Errorf("encode document %s: %w", docs[i].ID, err)
		}
	}
	return buf.Bytes(), nil
}
