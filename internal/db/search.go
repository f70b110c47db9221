package db

// SearchQuery is the input for a query DSL search.
type SearchQuery struct {
	Index string
	// Query is the body of the "query" key.
	Query map[string]any
	Size  int
	// SourceExcludes lists fields dropped from returned documents.
	SourceExcludes []string
}

// Body renders the full request body.
func (q *SearchQuery) Body() map[string]any {
	body := map[string]any{
		"query": q.Query,
		"size":  q.Size,
	}
	if len(q.SourceExcludes) > 0 {
		body["_source"] = map[string]any{"excludes": q.SourceExcludes}
	}
	return body
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total int
	Hits  []Hit
}

// Hit is a single document returned by a search, in backend score order.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]any
}

// BulkDoc is one document of a bulk index request.
type BulkDoc struct {
	ID     string
	Source map[string]any
}

// BulkItemError is a per-document rejection from a bulk request.
type BulkItemError struct {
	ID     string
	Status int
	Type   string
	Reason string
}

// BulkResult is the outcome of a bulk request that reached the backend.
type BulkResult struct {
	Took   int
	Items  int
	Errors []BulkItemError
}

// SchemaConflictTypes lists backend error types caused by a document not fitting the mapping.
var SchemaConflictTypes = map[string]bool{
	"mapper_parsing_exception":         true,
	"document_parsing_exception":       true,
	"illegal_argument_exception":       true,
	"strict_dynamic_mapping_exception": true,
}
