package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanFieldName folds a raw column header into a backend-safe field name.
// Returns "" when nothing usable remains.
func CleanFieldName(name string) string {
	folded := strings.ToLower(norm.NFKC.String(name))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			pendingSep = b.Len() > 0
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}

	out := b.String()
	if out == "" {
		return ""
	}
	if first := []rune(out)[0]; unicode.IsDigit(first) {
		out = "f_" + out
	}
	return out
}

// CleanHeaders applies CleanFieldName to every header and disambiguates duplicates
// with _2, _3 suffixes. Dropped headers stay "" so positions line up with row values.
func CleanHeaders(headers []string) []string {
	out := make([]string, len(headers))
	used := make(map[string]bool, len(headers))
	for i, h := range headers {
		name := CleanFieldName(h)
		if name == "" {
			continue
		}
		candidate := name
		for n := 2; used[candidate]; n++ {
			candidate = name + "_" + strconv.Itoa(n)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

// FoldLabel normalizes a query label for analyzed text and embeddings:
// NFKC fold, trim, collapse inner whitespace.
func FoldLabel(label string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(label)), " ")
}

// KeywordLabel prepares a label for exact keyword comparison. It trims the same
// way Fields trims stored strings and leaves everything else as typed.
func KeywordLabel(label string) string {
	return strings.TrimSpace(label)
}
