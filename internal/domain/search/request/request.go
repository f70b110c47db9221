package request

import (
	"fmt"
	"strings"

	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/search/method"
)

// Match parameter defaults and limits.
const (
	// MaxLabelLength is the maximum allowed label length in bytes.
	MaxLabelLength  = 1024
	DefaultTopK     = 3
	MaxTopK         = 100
	DefaultMinScore = 0.3
	DefaultMaxLabel = 200
	DefaultModel    = "dashscope_v3"
)

// Limits carries the configurable defaults applied by New.
type Limits struct {
	DefaultTopK     int
	MaxTopK         int
	DefaultMinScore float64
	DefaultMethod   method.Method
	DefaultModel    string
	MaxLabels       int
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{
		DefaultTopK:     DefaultTopK,
		MaxTopK:         MaxTopK,
		DefaultMinScore: DefaultMinScore,
		DefaultMethod:   method.Default,
		DefaultModel:    DefaultModel,
		MaxLabels:       DefaultMaxLabel,
	}
}

// Params is the raw, possibly partial, match input. Nil pointers mean "use the default".
type Params struct {
	Labels         []string
	TopK           *int
	MinScore       *float64
	SearchMethod   string
	EmbeddingModel string
}

// Request is a validated batch match query.
type Request struct {
	labels   []string
	topK     int
	minScore float64
	method   method.Method
	model    string
}

// New validates p and fills in defaults from lim.
// Every error wraps domain.ErrValidation.
func New(p Params, lim Limits) (Request, error) {
	if len(p.Labels) == 0 {
		return Request{}, domain.ErrMissingLabels
	}
	if lim.MaxLabels > 0 && len(p.Labels) > lim.MaxLabels {
		return Request{}, fmt.Errorf("%w: too many labels (max %d)", domain.ErrValidation, lim.MaxLabels)
	}
	labels := make([]string, len(p.Labels))
	for i, l := range p.Labels {
		if strings.TrimSpace(l) == "" {
			return Request{}, fmt.Errorf("%w: labels[%d] is blank", domain.ErrValidation, i)
		}
		if len(l) > MaxLabelLength {
			return Request{}, fmt.Errorf("%w: labels[%d] too long (max %d bytes)", domain.ErrValidation, i, MaxLabelLength)
		}
		labels[i] = l
	}

	topK := lim.DefaultTopK
	if p.TopK != nil {
		if *p.TopK <= 0 {
			return Request{}, fmt.Errorf("%w: top_k must be positive", domain.ErrValidation)
		}
		topK = *p.TopK
	}
	if lim.MaxTopK > 0 && topK > lim.MaxTopK {
		topK = lim.MaxTopK
	}

	minScore := lim.DefaultMinScore
	if p.MinScore != nil {
		minScore = *p.MinScore
	}
	if minScore < 0 || minScore > 1 {
		return Request{}, fmt.Errorf("%w: min_score must be between 0 and 1", domain.ErrValidation)
	}

	m := lim.DefaultMethod
	if strings.TrimSpace(p.SearchMethod) != "" {
		parsed, err := method.Parse(p.SearchMethod)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		m = parsed
	}
	if m == "" {
		m = method.Default
	}

	model := strings.TrimSpace(p.EmbeddingModel)
	if model == "" {
		model = lim.DefaultModel
	}

	return Request{labels: labels, topK: topK, minScore: minScore, method: m, model: model}, nil
}

// Labels returns the labels in input order.
func (r *Request) Labels() []string { return r.labels }

// TopK returns the maximum number of matches per label.
func (r *Request) TopK() int { return r.topK }

// MinScore returns the minimum backend score kept.
func (r *Request) MinScore() float64 { return r.minScore }

// Method returns the retrieval strategy.
func (r *Request) Method() method.Method { return r.method }

// EmbeddingModel returns the embedding model identifier.
func (r *Request) EmbeddingModel() string { return r.model }
