package result

import (
	"time"

	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/search/request"
)

// NoMatchMessage is returned alongside a batch in which no label matched anything.
const NoMatchMessage = "no matching emission factors found; try a broader label, " +
	"a lower min_score or a different search_method"

// Match is a single ranked catalog hit.
type Match struct {
	record record.Record
	score  float64
}

// New creates a match.
func New(rec record.Record, score float64) Match {
	return Match{record: rec, score: score}
}

// Record returns the matched catalog record.
func (m *Match) Record() record.Record { return m.record }

// Score returns the backend relevance score.
func (m *Match) Score() float64 { return m.score }

// LabelResult is the outcome for one input label.
type LabelResult struct {
	Label   string
	Matches []Match
	Err     error
}

// Failed creates a result carrying a label-scoped error and no matches.
func Failed(label string, err error) LabelResult {
	return LabelResult{Label: label, Matches: []Match{}, Err: err}
}

// Batch is the ordered result set of a match request.
type Batch struct {
	// Request is the validated request with defaults applied.
	Request request.Request
	Results []LabelResult
	Elapsed time.Duration
	// Message is a hint for the caller, set when nothing matched.
	Message string
}

// Empty reports whether no label produced any match.
func (b *Batch) Empty() bool {
	for _, r := range b.Results {
		if len(r.Matches) > 0 {
			return false
		}
	}
	return true
}

// Failures counts labels that carry an error.
func (b *Batch) Failures() int {
	n := 0
	for _, r := range b.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
