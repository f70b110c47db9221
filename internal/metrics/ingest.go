package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion metrics, exposed by cfimport when --metrics-addr is set.
var (
	IngestRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_total",
			Help:      "Source rows by normalization outcome",
		},
		[]string{"outcome"}, // accepted, skipped_empty, skipped_no_text, duplicate
	)

	IngestChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Uploaded chunks by status",
		},
		[]string{"status"},
	)

	IngestDocErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_doc_errors_total",
			Help:      "Documents rejected by the backend, by error type",
		},
		[]string{"type"},
	)

	IngestChunkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_chunk_duration_seconds",
			Help:      "Embed plus bulk upload time of one chunk",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
)
