package ingest

import (
	"context"

	"github.com/climateseal/carbonmatch/internal/domain/batch"
	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/row"
)

// Catalog is the write side of the catalog repository.
type Catalog interface {
	Index() string
	EnsureSchema(ctx context.Context) error
	UpsertChunk(ctx context.Context, chunkIndex int, records []record.Record) batch.ChunkResult
}

// Source streams raw rows; source.Reader satisfies it.
type Source interface {
	Headers() []string
	Next() ([]row.Value, error)
}
