// Package health aggregates dependency probes for the /health endpoint.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/climateseal/carbonmatch/internal/logger"
)

// Status is the aggregated health status.
type Status string

const (
	// Healthy means every probe passed.
	Healthy Status = "ok"
	// Degraded means at least one probe failed.
	Degraded Status = "degraded"
)

// CheckResult is the outcome of one probe.
type CheckResult string

// Probe outcomes.
const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Probe names as reported under checks.
const (
	CheckElasticsearch = "elasticsearch"
	CheckCache         = "cache"
	CheckEmbedding     = "embedding"
)

// DefaultTimeout bounds each probe.
const DefaultTimeout = 3 * time.Second

// Report aggregates probe results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service runs the probes concurrently.
type Service struct {
	backend   BackendPinger
	cache     CachePinger
	embedding EmbeddingChecker
	timeout   time.Duration
}

// New creates a Service. embedding can be nil, in which case it is not reported.
func New(backend BackendPinger, embedding EmbeddingChecker, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{backend: backend, embedding: embedding, timeout: timeout}
}

// WithCache adds the embedding cache to the probes.
func (s *Service) WithCache(c CachePinger) *Service {
	s.cache = c
	return s
}

// Check probes every dependency, each under its own timeout.
func (s *Service) Check(ctx context.Context) Report {
	probes := map[string]func(context.Context) error{
		CheckElasticsearch: s.backend.Ping,
	}
	if s.cache != nil {
		probes[CheckCache] = s.cache.Ping
	}
	if s.embedding != nil {
		probes[CheckEmbedding] = s.embedding.HealthCheck
	}

	var mu sync.Mutex
	report := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(probes))}
	var g errgroup.Group
	for name, probe := range probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := probe(pctx); err != nil {
				logger.FromContext(ctx).Warn("Health probe failed", zap.String("check", name), zap.Error(err))
				res = CheckError
			}

			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = res
			if res == CheckError {
				report.Status = Degraded
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}
