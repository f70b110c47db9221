package match

import (
	"errors"
	"reflect"
	"testing"

	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/search/method"
)

func TestBuild_LexicalMethods(t *testing.T) {
	p := NewPlanner("carbon_factor", DefaultTuning())

	tests := []struct {
		method method.Method
		label  string
		want   map[string]any
	}{
		{method.Term, "cement production", map[string]any{"term": map[string]any{
			"activity_name": map[string]any{"value": "cement production"},
		}}},
		{method.Fuzzy, "cemnt", map[string]any{"fuzzy": map[string]any{
			"activity_name": map[string]any{"value": "cemnt", "fuzziness": 2, "max_expansions": 50},
		}}},
		{method.Prefix, "cem", map[string]any{"prefix": map[string]any{
			"activity_name": map[string]any{"value": "cem"},
		}}},
		{method.Wildcard, "steel", map[string]any{"wildcard": map[string]any{
			"activity_name": map[string]any{"value": "*steel*"},
		}}},
		{method.Wildcard, "st?el*", map[string]any{"wildcard": map[string]any{
			"activity_name": map[string]any{"value": "st?el*"},
		}}},
	}

	for _, tt := range tests {
		t.Run(string(tt.method)+"/"+tt.label, func(t *testing.T) {
			q, err := p.Build(tt.label, tt.method, nil, 3)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if !reflect.DeepEqual(q.Query, tt.want) {
				t.Errorf("query = %#v\nwant    %#v", q.Query, tt.want)
			}
			if q.Index != "carbon_factor" || q.Size != 3 {
				t.Errorf("index %q size %d", q.Index, q.Size)
			}
			if !reflect.DeepEqual(q.SourceExcludes, []string{record.FieldVector}) {
				t.Errorf("excludes = %v", q.SourceExcludes)
			}
		})
	}
}

func TestBuild_MultiMatch(t *testing.T) {
	q, err := NewPlanner("cf", DefaultTuning()).Build("electricity", method.MultiMatch, nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"multi_match": map[string]any{
		"query":                "electricity",
		"type":                 "best_fields",
		"fields":               []string{"content_zh^3", "content_en^2", "activity_name^2"},
		"tie_breaker":          0.3,
		"minimum_should_match": "30%",
	}}
	if !reflect.DeepEqual(q.Query, want) {
		t.Errorf("query = %#v", q.Query)
	}
}

func TestBuild_ScriptScore(t *testing.T) {
	vec := []float32{0.1, 0.2}
	q, err := NewPlanner("cf", DefaultTuning()).Build("cement", method.ScriptScore, vec, 3)
	if err != nil {
		t.Fatal(err)
	}
	ss := q.Query["script_score"].(map[string]any)
	if !reflect.DeepEqual(ss["query"], map[string]any{"match_all": map[string]any{}}) {
		t.Errorf("inner query = %v", ss["query"])
	}
	script := ss["script"].(map[string]any)
	if got := script["source"]; got != "cosineSimilarity(params.query_vector, 'content_vector') + 1.0" {
		t.Errorf("source = %q", got)
	}
	params := script["params"].(map[string]any)
	if !reflect.DeepEqual(params["query_vector"], vec) {
		t.Errorf("params = %v", params)
	}
}

func TestBuild_CustomOffset(t *testing.T) {
	tuning := DefaultTuning()
	tuning.VectorOffset = 0.5
	q, err := NewPlanner("cf", tuning).Build("cement", method.ScriptScore, []float32{1}, 3)
	if err != nil {
		t.Fatal(err)
	}
	src := q.Query["script_score"].(map[string]any)["script"].(map[string]any)["source"]
	if src != "cosineSimilarity(params.query_vector, 'content_vector') + 0.5" {
		t.Errorf("source = %q", src)
	}
}

func TestBuild_Hybrid(t *testing.T) {
	q, err := NewPlanner("cf", DefaultTuning()).Build("cement", method.Hybrid, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	b := q.Query["bool"].(map[string]any)
	if b["minimum_should_match"] != 1 {
		t.Errorf("minimum_should_match = %v", b["minimum_should_match"])
	}
	should := b["should"].([]any)
	if len(should) != 2 {
		t.Fatalf("should = %d clauses", len(should))
	}
	if _, ok := should[0].(map[string]any)["multi_match"]; !ok {
		t.Errorf("first clause = %v", should[0])
	}
	if _, ok := should[1].(map[string]any)["script_score"]; !ok {
		t.Errorf("second clause = %v", should[1])
	}
}

func TestBuild_VectorRequired(t *testing.T) {
	p := NewPlanner("cf", DefaultTuning())
	for _, m := range []method.Method{method.ScriptScore, method.Hybrid} {
		if _, err := p.Build("cement", m, nil, 3); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", m, err)
		}
	}
}

func TestBuild_UnknownMethod(t *testing.T) {
	if _, err := NewPlanner("cf", DefaultTuning()).Build("x", method.Method("knn"), nil, 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuild_LexicalFieldOverride(t *testing.T) {
	tuning := DefaultTuning()
	tuning.LexicalField = "ipcc_2021_keyword"
	q, err := NewPlanner("cf", tuning).Build("CO2", method.Term, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := q.Query["term"].(map[string]any)["ipcc_2021_keyword"]; !ok {
		t.Errorf("query = %v", q.Query)
	}
}
