package method

import (
	"fmt"
	"strings"
)

// Method is the retrieval strategy for a single label.
type Method string

// Search method constants.
const (
	Term     Method = "term"
	Fuzzy    Method = "fuzzy"
	Prefix   Method = "prefix"
	Wildcard Method = "wildcard"
	// MultiMatch scores the label against the Chinese, English and name fields.
	MultiMatch Method = "multi_match"
	// ScriptScore ranks every document by offset cosine similarity.
	ScriptScore Method = "script_score"
	// Hybrid adds the multi_match score and the script_score score.
	Hybrid Method = "hybrid"
)

// Default is used when a request omits search_method.
const Default = ScriptScore

var aliases = map[string]Method{
	"term":             Term,
	"lexical-term":     Term,
	"fuzzy":            Fuzzy,
	"lexical-fuzzy":    Fuzzy,
	"prefix":           Prefix,
	"lexical-prefix":   Prefix,
	"wildcard":         Wildcard,
	"lexical-wildcard": Wildcard,
	"multi_match":      MultiMatch,
	"lexical":          MultiMatch,
	"match":            MultiMatch,
	"script_score":     ScriptScore,
	"vector":           ScriptScore,
	"hybrid":           Hybrid,
}

// Parse resolves a wire name or alias. Empty input yields Default.
func Parse(s string) (Method, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default, nil
	}
	m, ok := aliases[s]
	if !ok {
		return "", fmt.Errorf("unsupported search_method %q", s)
	}
	return m, nil
}

// IsValid checks if the method is one of the canonical values.
func (m Method) IsValid() bool {
	switch m {
	case Term, Fuzzy, Prefix, Wildcard, MultiMatch, ScriptScore, Hybrid:
		return true
	}
	return false
}

// NeedsVector reports whether the method requires a query embedding.
func (m Method) NeedsVector() bool { return m == ScriptScore || m == Hybrid }

// IsKeyword reports whether the method compares against whole stored keyword values.
func (m Method) IsKeyword() bool {
	return m == Term || m == Fuzzy || m == Prefix || m == Wildcard
}

// IsLexical reports whether the method uses only text matching.
func (m Method) IsLexical() bool { return m.IsValid() && !m.NeedsVector() }
