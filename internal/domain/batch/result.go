package batch

// ChunkStatus is the upload outcome of one ingestion chunk.
type ChunkStatus string

// Chunk status values.
const (
	StatusOK ChunkStatus = "ok"
	// StatusPartial means the bulk call succeeded but some documents were rejected.
	StatusPartial ChunkStatus = "partial"
	StatusError   ChunkStatus = "error"
)

// DocError is a per-document rejection reported by the backend.
type DocError struct {
	ID     string
	Type   string
	Reason string
	// Err is the classified sentinel (e.g. domain.ErrSchemaConflict), may be nil.
	Err error
}

// ChunkResult is the outcome of uploading one chunk of records.
type ChunkResult struct {
	index     int
	attempted int
	docErrors []DocError
	err       error
}

// NewChunkOK creates a chunk result for a bulk call that returned.
// Rejected documents are carried in docErrors.
func NewChunkOK(index, attempted int, docErrors []DocError) ChunkResult {
	return ChunkResult{index: index, attempted: attempted, docErrors: docErrors}
}

// NewChunkError creates a result for a chunk whose request failed as a whole.
func NewChunkError(index, attempted int, err error) ChunkResult {
	return ChunkResult{index: index, attempted: attempted, err: err}
}

// Index returns the 0-based chunk position within the run.
func (r ChunkResult) Index() int { return r.index }

// Attempted returns the number of records sent.
func (r ChunkResult) Attempted() int { return r.attempted }

// Indexed returns the number of records the backend accepted.
func (r ChunkResult) Indexed() int {
	if r.err != nil {
		return 0
	}
	return r.attempted - len(r.docErrors)
}

// DocErrors returns the per-document rejections.
func (r ChunkResult) DocErrors() []DocError { return r.docErrors }

// Err returns the chunk-level error, if any.
func (r ChunkResult) Err() error { return r.err }

// Status returns the processing outcome.
func (r ChunkResult) Status() ChunkStatus {
	switch {
	case r.err != nil:
		return StatusError
	case len(r.docErrors) > 0:
		return StatusPartial
	default:
		return StatusOK
	}
}

// Report aggregates chunk results ordered by chunk index.
type Report struct {
	Chunks []ChunkResult
}

// Succeeded counts chunks whose bulk call returned (fully or partially accepted).
func (r *Report) Succeeded() int {
	n := 0
	for _, c := range r.Chunks {
		if c.err == nil {
			n++
		}
	}
	return n
}

// Failed counts chunks whose bulk call failed.
func (r *Report) Failed() int { return len(r.Chunks) - r.Succeeded() }

// Indexed sums accepted documents across chunks.
func (r *Report) Indexed() int {
	n := 0
	for _, c := range r.Chunks {
		n += c.Indexed()
	}
	return n
}

// DocFailures sums rejected documents across chunks.
func (r *Report) DocFailures() int {
	n := 0
	for _, c := range r.Chunks {
		n += len(c.docErrors)
	}
	return n
}

// Clean reports whether every chunk and document succeeded.
func (r *Report) Clean() bool { return r.Failed() == 0 && r.DocFailures() == 0 }
