// Package ingest builds the catalog from a tabular source: rows are normalized,
// grouped into chunks, embedded and bulk-uploaded by a worker pool.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/batch"
	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/row"
	"github.com/climateseal/carbonmatch/internal/metrics"
	"github.com/climateseal/carbonmatch/internal/normalize"
)

// Config controls one import run.
type Config struct {
	BatchSize  int
	Workers    int
	Dims       int
	IDStrategy record.IDStrategy
	DataSource string
	Version    string
}

// Stats counts source rows by normalization outcome.
type Stats struct {
	Rows          int
	Accepted      int
	SkippedEmpty  int
	SkippedNoText int
	// Duplicates are rows whose content ID repeats an earlier row of the same run.
	Duplicates    int
}

// Result summarizes a finished run.
type Result struct {
	RunID   string
	Report  *batch.Report
	Stats   Stats
	Elapsed time.Duration
}

// Service runs imports into one catalog.
type Service struct {
	catalog    Catalog
	embedder   domain.Embedder
	normalizer *normalize.Normalizer
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
	onChunk    func(batch.ChunkResult)
}

// New creates an ingest service. embedder is the document-side embedder.
func New(c Catalog, e domain.Embedder, n *normalize.Normalizer, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.IDStrategy == "" {
		cfg.IDStrategy = record.IDByRow
	}
	return &Service{
		catalog:    c,
		embedder:   e,
		normalizer: n,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// WithProgress registers a callback invoked once per finished chunk, from worker goroutines.
func (s *Service) WithProgress(fn func(batch.ChunkResult)) *Service {
	s.onChunk = fn
	return s
}

type job struct {
	index   int
	records []record.Record
}

// Run imports every row of src. Chunk failures are reported, not returned;
// the error is non-nil only when the run itself could not complete (schema,
// source read, configuration such as a vector dimension mismatch, cancellation).
func (s *Service) Run(ctx context.Context, src Source) (*Result, error) {
	start := time.Now()
	if err := s.catalog.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	res := &Result{RunID: uuid.NewString()}
	prov := record.Provenance{
		DataSource: s.cfg.DataSource,
		Version:    s.cfg.Version,
		ImportedAt: s.now().UTC(),
		ImportRun:  res.RunID,
	}
	log := s.logger.With(zap.String("import_run", res.RunID), zap.String("index", s.catalog.Index()))
	log.Info("Import started",
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Int("workers", s.cfg.Workers),
		zap.String("id_strategy", string(s.cfg.IDStrategy)),
	)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)

	var mu sync.Mutex
	var chunks []batch.ChunkResult

	g.Go(func() error {
		defer close(jobs)
		return s.produce(gctx, src, prov, &res.Stats, jobs)
	})

	for range s.cfg.Workers {
		g.Go(func() error {
			for j := range jobs {
				cr, err := s.process(gctx, j)
				if err != nil {
					return err
				}
				mu.Lock()
				chunks = append(chunks, cr)
				mu.Unlock()
				s.observe(log, cr)
			}
			return nil
		})
	}

	err := g.Wait()
	sort.Slice(chunks, func(i, k int) bool { return chunks[i].Index() < chunks[k].Index() })
	res.Report = &batch.Report{Chunks: chunks}
	res.Elapsed = time.Since(start)

	if err != nil {
		log.Error("Import aborted", zap.Error(err), zap.Int("chunks_done", len(chunks)))
		return res, err
	}

	log.Info("Import finished",
		zap.Int("rows", res.Stats.Rows),
		zap.Int("accepted", res.Stats.Accepted),
		zap.Int("skipped_empty", res.Stats.SkippedEmpty),
		zap.Int("skipped_no_text", res.Stats.SkippedNoText),
		zap.Int("duplicates", res.Stats.Duplicates),
		zap.Int("chunks_ok", res.Report.Succeeded()),
		zap.Int("chunks_failed", res.Report.Failed()),
		zap.Int("indexed", res.Report.Indexed()),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// produce reads, normalizes and chunks rows. Stats are written only here.
func (s *Service) produce(ctx context.Context, src Source, prov record.Provenance, stats *Stats, jobs chan<- job) error {
	headers := normalize.CleanHeaders(src.Headers())
	index := s.catalog.Index()
	seen := make(map[string]int)

	chunkIndex := 0
	pending := make([]record.Record, 0, s.cfg.BatchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		select {
		case jobs <- job{index: chunkIndex, records: pending}:
		case <-ctx.Done():
			return fmt.Errorf("import cancelled: %w", ctx.Err())
		}
		chunkIndex++
		pending = make([]record.Record, 0, s.cfg.BatchSize)
		return nil
	}

	for position := 0; ; position++ {
		values, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read source row %d: %w", position, err)
		}
		stats.Rows++

		rec, outcome := s.normalizer.Normalize(row.New(position, headers, values))
		switch outcome {
		case normalize.SkippedEmpty:
			stats.SkippedEmpty++
			metrics.IngestRowsTotal.WithLabelValues("skipped_empty").Inc()
			continue
		case normalize.SkippedNoText:
			stats.SkippedNoText++
			metrics.IngestRowsTotal.WithLabelValues("skipped_no_text").Inc()
			continue
		}

		id, err := s.cfg.IDStrategy.DocumentID(index, position, &rec)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
		}
		if first, dup := seen[id]; dup {
			stats.Duplicates++
			metrics.IngestRowsTotal.WithLabelValues("duplicate").Inc()
			s.logger.Debug("Duplicate row skipped",
				zap.Int("row", position), zap.Int("first_row", first), zap.String("id", id))
			continue
		}
		seen[id] = position
		stats.Accepted++
		metrics.IngestRowsTotal.WithLabelValues("accepted").Inc()
		rec.ID = id
		rec.Provenance = prov
		pending = append(pending, rec)

		if len(pending) == s.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// process embeds and uploads one chunk. Only run-fatal errors are returned.
func (s *Service) process(ctx context.Context, j job) (batch.ChunkResult, error) {
	start := time.Now()
	defer func() { metrics.IngestChunkDuration.Observe(time.Since(start).Seconds()) }()

	texts := make([]string, len(j.records))
	for i := range j.records {
		texts[i] = j.records[i].EmbeddingText()
	}

	emb, err := domain.BatchEmbed(ctx, s.embedder, texts)
	if err == nil && len(emb.Embeddings) != len(texts) {
		err = fmt.Errorf("got %d vectors for %d texts: %w", len(emb.Embeddings), len(texts), domain.ErrEmbeddingProviderError)
	}
	if err != nil {
		if fatal(ctx, err) {
			return batch.ChunkResult{}, fmt.Errorf("chunk %d: %w", j.index, err)
		}
		return batch.NewChunkError(j.index, len(j.records), fmt.Errorf("embed: %w", err)), nil
	}

	for i := range j.records {
		if s.cfg.Dims > 0 {
			if err := domain.CheckDimension(emb.Embeddings[i], s.cfg.Dims); err != nil {
				return batch.ChunkResult{}, fmt.Errorf("chunk %d record %s: %w", j.index, j.records[i].ID, err)
			}
		}
		j.records[i].Vector = emb.Embeddings[i]
	}

	cr := s.catalog.UpsertChunk(ctx, j.index, j.records)
	if cr.Err() != nil && fatal(ctx, cr.Err()) {
		return batch.ChunkResult{}, fmt.Errorf("chunk %d: %w", j.index, cr.Err())
	}
	return cr, nil
}

// fatal reports errors that would fail every remaining chunk the same way.
func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, domain.ErrConfiguration) || ctx.Err() != nil
}

func (s *Service) observe(log *zap.Logger, cr batch.ChunkResult) {
	metrics.IngestChunksTotal.WithLabelValues(string(cr.Status())).Inc()
	for _, de := range cr.DocErrors() {
		metrics.IngestDocErrorsTotal.WithLabelValues(de.Type).Inc()
	}

	fields := []zap.Field{
		zap.Int("chunk", cr.Index()),
		zap.Int("attempted", cr.Attempted()),
		zap.Int("indexed", cr.Indexed()),
		zap.String("status", string(cr.Status())),
	}
	switch cr.Status() {
	case batch.StatusError:
		log.Warn("Chunk failed", append(fields, zap.Error(cr.Err()))...)
	case batch.StatusPartial:
		first := cr.DocErrors()[0]
		log.Warn("Chunk partially indexed", append(fields,
			zap.Int("rejected", len(cr.DocErrors())),
			zap.String("first_id", first.ID),
			zap.String("first_type", first.Type),
			zap.String("first_reason", first.Reason),
		)...)
	default:
		log.Debug("Chunk indexed", fields...)
	}

	if s.onChunk != nil {
		s.onChunk(cr)
	}
}
