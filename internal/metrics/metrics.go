// Package metrics holds the Prometheus collectors of carbonmatch.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carbonmatch"

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			httpRequestsInFlight,
			httpResponseBytes,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			EmbeddingRateLimitWait,
			MatchBatchDuration,
			MatchLabelsTotal,
			MatchLabelDuration,
			IngestRowsTotal,
			IngestChunksTotal,
			IngestDocErrorsTotal,
			IngestChunkDuration,
		)
	})
}
