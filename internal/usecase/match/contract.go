package match

import (
	"context"

	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/search/result"
)

// Searcher runs planned queries against the catalog.
type Searcher interface {
	Search(ctx context.Context, q *db.SearchQuery) ([]result.Match, error)
}

// Models resolves an embedding model identifier to its query-side embedder.
// Unknown identifiers resolve to the default model; the resolved name is returned.
type Models interface {
	Query(name string) (domain.Embedder, string, error)
}
