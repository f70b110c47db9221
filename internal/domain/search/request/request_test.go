package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/search/method"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestNew_Defaults(t *testing.T) {
	r, err := New(Params{Labels: []string{"steel"}}, DefaultLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TopK() != DefaultTopK {
		t.Errorf("TopK() = %d, want %d", r.TopK(), DefaultTopK)
	}
	if r.MinScore() != DefaultMinScore {
		t.Errorf("MinScore() = %f", r.MinScore())
	}
	if r.Method() != method.ScriptScore {
		t.Errorf("Method() = %q, want script_score", r.Method())
	}
	if r.EmbeddingModel() != DefaultModel {
		t.Errorf("EmbeddingModel() = %q", r.EmbeddingModel())
	}
}

func TestNew_ExplicitValues(t *testing.T) {
	r, err := New(Params{
		Labels:         []string{"a", "b"},
		TopK:           intPtr(5),
		MinScore:       floatPtr(0),
		SearchMethod:   "lexical",
		EmbeddingModel: "bge_small",
	}, DefaultLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TopK() != 5 || r.MinScore() != 0 {
		t.Errorf("TopK()=%d MinScore()=%f", r.TopK(), r.MinScore())
	}
	if r.Method() != method.MultiMatch {
		t.Errorf("Method() = %q", r.Method())
	}
	if r.EmbeddingModel() != "bge_small" {
		t.Errorf("EmbeddingModel() = %q", r.EmbeddingModel())
	}
	if len(r.Labels()) != 2 {
		t.Errorf("Labels() = %v", r.Labels())
	}
}

func TestNew_TopKClamped(t *testing.T) {
	r, err := New(Params{Labels: []string{"a"}, TopK: intPtr(MaxTopK + 50)}, DefaultLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TopK() != MaxTopK {
		t.Errorf("TopK() = %d, want %d", r.TopK(), MaxTopK)
	}
}

func TestNew_ValidationErrors(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxLabels = 2

	tests := []struct {
		name string
		p    Params
		want string
	}{
		{"nil labels", Params{}, "Missing required parameter: labels"},
		{"empty labels", Params{Labels: []string{}}, "Missing required parameter: labels"},
		{"blank label", Params{Labels: []string{"ok", "  "}}, "labels[1] is blank"},
		{"too many", Params{Labels: []string{"a", "b", "c"}}, "too many labels"},
		{"long label", Params{Labels: []string{strings.Repeat("x", MaxLabelLength+1)}}, "too long"},
		{"zero top_k", Params{Labels: []string{"a"}, TopK: intPtr(0)}, "top_k"},
		{"min_score high", Params{Labels: []string{"a"}, MinScore: floatPtr(1.5)}, "min_score"},
		{"min_score negative", Params{Labels: []string{"a"}, MinScore: floatPtr(-0.1)}, "min_score"},
		{"bad method", Params{Labels: []string{"a"}, SearchMethod: "knn"}, "search_method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.p, lim)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error %v does not wrap ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}
