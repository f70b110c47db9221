package db

import (
	"errors"
	"strconv"
	"strings"
)

// Similarity is the dense_vector similarity function.
type Similarity string

const (
	// SimilarityCosine is cosine similarity.
	SimilarityCosine Similarity = "cosine"
	// SimilarityDotProduct requires unit-length vectors.
	SimilarityDotProduct Similarity = "dot_product"
	// SimilarityL2 is Euclidean distance.
	SimilarityL2 Similarity = "l2_norm"
)

// FieldType enumerates supported mapping field types.
type FieldType string

// Mapping field types.
const (
	FieldKeyword     FieldType = "keyword"
	FieldText        FieldType = "text"
	FieldFloat       FieldType = "float"
	FieldDate        FieldType = "date"
	FieldDenseVector FieldType = "dense_vector"
)

// IndexField describes a single explicitly mapped field.
type IndexField struct {
	Name string
	Type FieldType

	// text options
	Analyzer string

	// dense_vector options
	VectorDims       int
	VectorSimilarity Similarity
}

// IndexDefinition is a complete index definition: settings plus explicit mappings.
type IndexDefinition struct {
	Name     string
	Shards   int
	Replicas int
	Fields   []IndexField
	// StringsAsKeywords maps every unmapped string field to keyword via a dynamic template.
	StringsAsKeywords bool
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIndexName(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	if idx.Shards < 0 || idx.Replicas < 0 {
		return errors.New("shards and replicas must not be negative")
	}

	seen := make(map[string]bool)
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return errors.New("field name is required at index " + strconv.Itoa(i))
		}
		if seen[f.Name] {
			return errors.New("duplicate field name: " + f.Name)
		}
		seen[f.Name] = true

		if f.Type == FieldDenseVector && f.VectorDims <= 0 {
			return errors.New("dense_vector field requires positive dims")
		}
	}

	return nil
}

// Mapping renders the index creation body.
func (idx *IndexDefinition) Mapping() map[string]any {
	props := make(map[string]any, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		p := map[string]any{"type": string(f.Type)}
		switch f.Type {
		case FieldText:
			if f.Analyzer != "" {
				p["analyzer"] = f.Analyzer
			}
		case FieldDenseVector:
			sim := f.VectorSimilarity
			if sim == "" {
				sim = SimilarityCosine
			}
			p["dims"] = f.VectorDims
			p["index"] = true
			p["similarity"] = string(sim)
		}
		props[f.Name] = p
	}

	mappings := map[string]any{"properties": props}
	if idx.StringsAsKeywords {
		mappings["dynamic_templates"] = []any{
			map[string]any{
				"strings_as_keywords": map[string]any{
					"match_mapping_type": "string",
					"mapping":            map[string]any{"type": "keyword"},
				},
			},
		}
	}

	shards := idx.Shards
	if shards == 0 {
		shards = 1
	}
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   shards,
			"number_of_replicas": idx.Replicas,
		},
		"mappings": mappings,
	}
}

// IsValidIndexName reports whether s is an acceptable index name:
// lowercase, no path or wildcard characters, not starting with -, _ or +.
func IsValidIndexName(s string) bool {
	if s == "" || s == "." || s == ".." || len(s) > 255 {
		return false
	}
	if strings.ContainsAny(s[:1], "-_+") {
		return false
	}
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return false
		}
		if strings.ContainsRune(`\/*?"<>| ,#:`, r) {
			return false
		}
	}
	return true
}
