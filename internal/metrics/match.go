package metrics

import "github.com/prometheus/client_golang/prometheus"

// Match metrics.
var (
	MatchBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_batch_duration_seconds",
			Help:      "Wall time of a batch match call",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	MatchLabelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_labels_total",
			Help:      "Matched labels by search method and outcome",
		},
		[]string{"method", "outcome"}, // outcome: matched, empty, error
	)

	MatchLabelDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_label_duration_seconds",
			Help:      "Per-label match duration including embedding",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method"},
	)
)
