package fake

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var scriptPattern = regexp.MustCompile(`cosineSimilarity\(params\.(\w+),\s*'([^']+)'\)\s*(?:\+\s*([0-9.]+))?`)

// evaluate scores doc against one query clause.
func evaluate(q map[string]any, doc map[string]any) (float64, bool, error) {
	if len(q) != 1 {
		return 0, false, fmt.Errorf("%w: expected one clause, got %d", ErrUnsupportedQuery, len(q))
	}
	for kind, body := range q {
		args, _ := body.(map[string]any)
		switch kind {
		case "match_all":
			return 1, true, nil
		case "term":
			field, value, _ := fieldValue(args)
			return binary(text(doc[field]) == value)
		case "prefix":
			field, value, _ := fieldValue(args)
			return binary(strings.HasPrefix(text(doc[field]), value))
		case "wildcard":
			field, value, _ := fieldValue(args)
			return binary(wildcardMatch(value, text(doc[field])))
		case "fuzzy":
			return fuzzy(args, doc)
		case "multi_match":
			return multiMatch(args, doc)
		case "script_score":
			return scriptScore(args, doc)
		case "bool":
			return boolShould(args, doc)
		default:
			return 0, false, fmt.Errorf("%w: %s", ErrUnsupportedQuery, kind)
		}
	}
	return 0, false, nil
}

func binary(ok bool) (float64, bool, error) {
	if ok {
		return 1, true, nil
	}
	return 0, false, nil
}

// fieldValue unpacks {"field": {"value": v, ...}} or {"field": v}.
func fieldValue(args map[string]any) (string, string, map[string]any) {
	for field, v := range args {
		if opts, ok := v.(map[string]any); ok {
			return field, text(opts["value"]), opts
		}
		return field, text(v), nil
	}
	return "", "", nil
}

func fuzzy(args map[string]any, doc map[string]any) (float64, bool, error) {
	field, value, opts := fieldValue(args)
	maxEdits := 2
	if f, ok := toFloat(opts["fuzziness"]); ok {
		maxEdits = int(f)
	}
	got := text(doc[field])
	d := levenshtein(strings.ToLower(value), strings.ToLower(got))
	if d > maxEdits {
		return 0, false, nil
	}
	return 1 - float64(d)/float64(len([]rune(value))+1), true, nil
}

func multiMatch(args map[string]any, doc map[string]any) (float64, bool, error) {
	terms := tokenize(text(args["query"]))
	if len(terms) == 0 {
		return 0, false, nil
	}
	required := minimumShouldMatch(args["minimum_should_match"], len(terms))
	tie, _ := toFloat(args["tie_breaker"])

	fields := asSlice(args["fields"])
	var best, sum float64
	matched := false
	for _, f := range fields {
		name, boost := splitBoost(text(f))
		docTerms := make(map[string]bool)
		for _, t := range tokenize(text(doc[name])) {
			docTerms[t] = true
		}
		hit := 0
		for _, t := range terms {
			if docTerms[t] {
				hit++
			}
		}
		if hit == 0 || hit < required {
			continue
		}
		matched = true
		score := boost * float64(hit) / float64(len(terms))
		sum += score
		if score > best {
			best = score
		}
	}
	if !matched {
		return 0, false, nil
	}
	return best + tie*(sum-best), true, nil
}

func scriptScore(args map[string]any, doc map[string]any) (float64, bool, error) {
	inner, _ := args["query"].(map[string]any)
	if inner != nil {
		if _, ok, err := evaluate(inner, doc); err != nil || !ok {
			return 0, false, err
		}
	}
	script, _ := args["script"].(map[string]any)
	m := scriptPattern.FindStringSubmatch(text(script["source"]))
	if m == nil {
		return 0, false, fmt.Errorf("%w: script %q", ErrUnsupportedQuery, script["source"])
	}
	params, _ := script["params"].(map[string]any)
	qv, ok := toVector(params[m[1]])
	if !ok {
		return 0, false, fmt.Errorf("%w: missing param %s", ErrUnsupportedQuery, m[1])
	}
	dv, ok := toVector(doc[m[2]])
	if !ok {
		// the real backend fails the shard for documents without the field
		return 0, false, nil
	}
	if len(qv) != len(dv) {
		return 0, false, fmt.Errorf("vector dimension mismatch: query %d, field %d", len(qv), len(dv))
	}
	offset := 0.0
	if m[3] != "" {
		offset, _ = strconv.ParseFloat(m[3], 64)
	}
	return cosine(qv, dv) + offset, true, nil
}

func boolShould(args map[string]any, doc map[string]any) (float64, bool, error) {
	should := asSlice(args["should"])
	required := 1
	if f, ok := toFloat(args["minimum_should_match"]); ok {
		required = int(f)
	}
	var total float64
	hits := 0
	for _, c := range should {
		clause, ok := c.(map[string]any)
		if !ok {
			return 0, false, fmt.Errorf("%w: should clause %T", ErrUnsupportedQuery, c)
		}
		score, ok, err := evaluate(clause, doc)
		if err != nil {
			return 0, false, err
		}
		if ok {
			total += score
			hits++
		}
	}
	if hits < required {
		return 0, false, nil
	}
	return total, true, nil
}

func minimumShouldMatch(v any, n int) int {
	s := text(v)
	if strings.HasSuffix(s, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return 1
		}
		// percentages round down, with at least one term
		return max(1, int(math.Floor(float64(n)*pct/100)))
	}
	if f, ok := toFloat(v); ok {
		return int(f)
	}
	return 1
}

func splitBoost(field string) (string, float64) {
	name, boost, ok := strings.Cut(field, "^")
	if !ok {
		return field, 1
	}
	b, err := strconv.ParseFloat(boost, 64)
	if err != nil {
		return name, 1
	}
	return name, b
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func wildcardMatch(pattern, s string) bool {
	p, str := []rune(pattern), []rune(s)
	var match func(i, j int) bool
	memo := make(map[[2]int]bool)
	seen := make(map[[2]int]bool)
	match = func(i, j int) bool {
		key := [2]int{i, j}
		if seen[key] {
			return memo[key]
		}
		seen[key] = true
		var ok bool
		switch {
		case i == len(p):
			ok = j == len(str)
		case p[i] == '*':
			ok = match(i+1, j) || (j < len(str) && match(i, j+1))
		case j < len(str) && (p[i] == '?' || p[i] == str[j]):
			ok = match(i+1, j+1)
		}
		memo[key] = ok
		return ok
	}
	return match(0, 0)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toVector(v any) ([]float64, bool) {
	switch t := v.(type) {
	case []float64:
		return t, true
	case []float32:
		out := make([]float64, len(t))
		for i, f := range t {
			out[i] = float64(f)
		}
		return out, true
	case []any:
		out := make([]float64, len(t))
		for i, e := range t {
			f, ok := toFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func asSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	default:
		return nil
	}
}
