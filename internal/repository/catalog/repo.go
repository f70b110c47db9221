// Package catalog stores carbon-factor records in the search backend.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/batch"
	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/search/result"
)

// store is the consumer interface for the catalog (ISP).
type store interface {
	Info(ctx context.Context) (db.ClusterInfo, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	VectorDims(ctx context.Context, index, field string) (int, error)
	Refresh(ctx context.Context, index string) error
	Count(ctx context.Context, index string) (int, error)
	Bulk(ctx context.Context, index string, docs []db.BulkDoc) (*db.BulkResult, error)
	Search(ctx context.Context, q *db.SearchQuery) (*db.SearchResult, error)
}

// Config describes the catalog index.
type Config struct {
	Index    string
	Dims     int
	Shards   int
	Replicas int
	Analyzer string
}

// Repo reads and writes one catalog index.
type Repo struct {
	store store
	cfg   Config
}

// New creates a catalog repository.
func New(s store, cfg Config) *Repo {
	if cfg.Shards <= 0 {
		cfg.Shards = 1
	}
	if cfg.Analyzer == "" {
		cfg.Analyzer = "standard"
	}
	return &Repo{store: s, cfg: cfg}
}

// Index returns the index name.
func (r *Repo) Index() string { return r.cfg.Index }

// Definition returns the catalog mapping.
func (r *Repo) Definition() (*db.IndexDefinition, error) {
	def, err := db.NewIndex(r.cfg.Index).
		Shards(r.cfg.Shards).
		Replicas(r.cfg.Replicas).
		DenseVector(record.FieldVector, r.cfg.Dims, db.SimilarityCosine).
		Text(record.FieldContentZH, r.cfg.Analyzer).
		Text(record.FieldContentEN, r.cfg.Analyzer).
		Date(record.FieldTimestamp, record.FieldImportDate).
		Keyword(record.FieldDataSource, record.FieldVersion, record.FieldImportRun).
		Keyword(record.FieldActivityName, record.FieldGeography, record.FieldUnit).
		Float(record.FieldKgCO2eq).
		Text("ipcc_2021", "").
		Keyword("ipcc_2021_keyword").
		StringsAsKeywords().
		Build()
	if err != nil {
		return nil, fmt.Errorf("%w: catalog mapping: %w", domain.ErrConfiguration, err)
	}
	return def, nil
}

// EnsureSchema creates the index when absent and otherwise checks that its
// vector field matches the configured dimension.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.cfg.Index)
	if err != nil {
		return mapError(ctx, "check index", err)
	}
	if exists {
		return r.checkDims(ctx)
	}

	def, err := r.Definition()
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			// created concurrently by another import
			return r.checkDims(ctx)
		}
		return mapError(ctx, "create index", err)
	}
	return nil
}

func (r *Repo) checkDims(ctx context.Context) error {
	dims, err := r.store.VectorDims(ctx, r.cfg.Index, record.FieldVector)
	if err != nil {
		return mapError(ctx, "read mapping", err)
	}
	if dims == 0 {
		return fmt.Errorf("index %s has no %s field: %w", r.cfg.Index, record.FieldVector, domain.ErrConfiguration)
	}
	if dims != r.cfg.Dims {
		return fmt.Errorf("index %s: %w", r.cfg.Index, &domain.DimensionError{Want: dims, Got: r.cfg.Dims})
	}
	return nil
}

// Upsert writes records in chunks of at most chunkSize. Chunks succeed or fail
// independently; the report lists them in chunk order.
func (r *Repo) Upsert(ctx context.Context, records []record.Record, chunkSize int) *batch.Report {
	if chunkSize <= 0 {
		chunkSize = len(records)
	}
	report := &batch.Report{}
	for i, start := 0, 0; start < len(records); i, start = i+1, start+chunkSize {
		end := min(start+chunkSize, len(records))
		report.Chunks = append(report.Chunks, r.UpsertChunk(ctx, i, records[start:end]))
	}
	return report
}

// UpsertChunk sends one bulk request overwriting records by ID.
func (r *Repo) UpsertChunk(ctx context.Context, chunkIndex int, records []record.Record) batch.ChunkResult {
	docs := make([]db.BulkDoc, 0, len(records))
	for i := range records {
		rec := &records[i]
		if err := rec.Validate(r.cfg.Dims); err != nil {
			return batch.NewChunkError(chunkIndex, len(records), err)
		}
		docs = append(docs, db.BulkDoc{ID: rec.ID, Source: rec.Document()})
	}

	res, err := r.store.Bulk(ctx, r.cfg.Index, docs)
	if err != nil {
		return batch.NewChunkError(chunkIndex, len(records), mapError(ctx, "bulk", err))
	}

	var docErrs []batch.DocError
	for _, item := range res.Errors {
		docErrs = append(docErrs, batch.DocError{
			ID:     item.ID,
			Type:   item.Type,
			Reason: item.Reason,
			Err:    classifyItem(item),
		})
	}
	return batch.NewChunkOK(chunkIndex, len(records), docErrs)
}

func classifyItem(item db.BulkItemError) error {
	switch {
	case db.SchemaConflictTypes[item.Type]:
		return domain.ErrSchemaConflict
	case item.Status == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return domain.ErrBackendQuery
	}
}

// Search runs q against the catalog and decodes hits in backend order.
func (r *Repo) Search(ctx context.Context, q *db.SearchQuery) ([]result.Match, error) {
	if q.Index == "" {
		q.Index = r.cfg.Index
	}
	res, err := r.store.Search(ctx, q)
	if err != nil {
		return nil, mapError(ctx, "search", err)
	}
	matches := make([]result.Match, 0, len(res.Hits))
	for _, h := range res.Hits {
		matches = append(matches, result.New(record.FromSource(h.ID, h.Source), h.Score))
	}
	return matches, nil
}

// Refresh makes recent writes searchable.
func (r *Repo) Refresh(ctx context.Context) error {
	if err := r.store.Refresh(ctx, r.cfg.Index); err != nil {
		return mapError(ctx, "refresh", err)
	}
	return nil
}

// Count returns the number of documents in the index.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.Count(ctx, r.cfg.Index)
	if err != nil {
		return 0, mapError(ctx, "count", err)
	}
	return n, nil
}

// Delete drops the index. A missing index counts as deleted; existed reports which case applied.
func (r *Repo) Delete(ctx context.Context) (existed bool, err error) {
	if err := r.store.DeleteIndex(ctx, r.cfg.Index); err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return false, nil
		}
		return false, mapError(ctx, "delete index", err)
	}
	return true, nil
}

// Ping returns cluster identity, proving connectivity and credentials.
func (r *Repo) Ping(ctx context.Context) (db.ClusterInfo, error) {
	info, err := r.store.Info(ctx)
	if err != nil {
		return db.ClusterInfo{}, mapError(ctx, "ping", err)
	}
	return info, nil
}
