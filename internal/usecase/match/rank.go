package match

import "github.com/climateseal/carbonmatch/internal/domain/search/result"

// Rank keeps hits scoring at least minScore, at most topK of them. Hits arrive
// in backend order (score descending) and keep it; ties are never reordered.
// The result is non-nil.
func Rank(hits []result.Match, topK int, minScore float64) []result.Match {
	out := make([]result.Match, 0, min(len(hits), max(topK, 0)))
	for _, h := range hits {
		if len(out) >= topK {
			break
		}
		if h.Score() < minScore {
			continue
		}
		out = append(out, h)
	}
	return out
}
