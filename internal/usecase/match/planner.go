package match

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/search/method"
)

// vectorParam is the script parameter holding the query embedding.
const vectorParam = "query_vector"

// Tuning holds the query constants of every method.
type Tuning struct {
	ContentZHBoost     float64
	ContentENBoost     float64
	ActivityNameBoost  float64
	TieBreaker         float64
	MinimumShouldMatch string
	Fuzziness          int
	MaxExpansions      int
	// LexicalField is the keyword field used by term, fuzzy, prefix and wildcard.
	LexicalField string
	// VectorOffset is added to the cosine similarity so scores stay non-negative.
	VectorOffset float64
}

// DefaultTuning returns the production constants.
func DefaultTuning() Tuning {
	return Tuning{
		ContentZHBoost:     3,
		ContentENBoost:     2,
		ActivityNameBoost:  2,
		TieBreaker:         0.3,
		MinimumShouldMatch: "30%",
		Fuzziness:          2,
		MaxExpansions:      50,
		LexicalField:       record.FieldActivityName,
		VectorOffset:       1.0,
	}
}

// Planner turns one label into a backend query.
type Planner struct {
	index  string
	tuning Tuning
}

// NewPlanner creates a planner for index.
func NewPlanner(index string, t Tuning) *Planner {
	return &Planner{index: index, tuning: t}
}

// Build plans the query for label. vector is required for methods that need one
// and ignored otherwise. The query asks for topK hits without the stored vector.
func (p *Planner) Build(label string, m method.Method, vector []float32, topK int) (*db.SearchQuery, error) {
	if m.NeedsVector() && len(vector) == 0 {
		return nil, fmt.Errorf("%w: %s search requires a query vector", domain.ErrValidation, m)
	}

	var query map[string]any
	switch m {
	case method.Term:
		query = map[string]any{"term": map[string]any{
			p.tuning.LexicalField: map[string]any{"value": label},
		}}
	case method.Fuzzy:
		query = map[string]any{"fuzzy": map[string]any{
			p.tuning.LexicalField: map[string]any{
				"value":          label,
				"fuzziness":      p.tuning.Fuzziness,
				"max_expansions": p.tuning.MaxExpansions,
			},
		}}
	case method.Prefix:
		query = map[string]any{"prefix": map[string]any{
			p.tuning.LexicalField: map[string]any{"value": label},
		}}
	case method.Wildcard:
		query = map[string]any{"wildcard": map[string]any{
			p.tuning.LexicalField: map[string]any{"value": wildcardPattern(label)},
		}}
	case method.MultiMatch:
		query = p.multiMatch(label)
	case method.ScriptScore:
		query = p.scriptScore(vector)
	case method.Hybrid:
		query = map[string]any{"bool": map[string]any{
			"should":               []any{p.multiMatch(label), p.scriptScore(vector)},
			"minimum_should_match": 1,
		}}
	default:
		return nil, fmt.Errorf("%w: unsupported search_method %q", domain.ErrValidation, m)
	}

	return &db.SearchQuery{
		Index:          p.index,
		Query:          query,
		Size:           topK,
		SourceExcludes: []string{record.FieldVector},
	}, nil
}

func (p *Planner) multiMatch(label string) map[string]any {
	return map[string]any{"multi_match": map[string]any{
		"query": label,
		"type":  "best_fields",
		"fields": []string{
			boosted(record.FieldContentZH, p.tuning.ContentZHBoost),
			boosted(record.FieldContentEN, p.tuning.ContentENBoost),
			boosted(record.FieldActivityName, p.tuning.ActivityNameBoost),
		},
		"tie_breaker":          p.tuning.TieBreaker,
		"minimum_should_match": p.tuning.MinimumShouldMatch,
	}}
}

func (p *Planner) scriptScore(vector []float32) map[string]any {
	return map[string]any{"script_score": map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"script": map[string]any{
			"source": fmt.Sprintf("cosineSimilarity(params.%s, '%s') + %s",
				vectorParam, record.FieldVector, formatOffset(p.tuning.VectorOffset)),
			"params": map[string]any{vectorParam: vector},
		},
	}}
}

func boosted(field string, boost float64) string {
	return field + "^" + strconv.FormatFloat(boost, 'f', -1, 64)
}

// formatOffset keeps one decimal for whole numbers so the script reads "+ 1.0".
func formatOffset(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// wildcardPattern wraps a label without wildcard characters as *label*.
func wildcardPattern(label string) string {
	if strings.ContainsAny(label, "*?") {
		return label
	}
	return "*" + label + "*"
}
