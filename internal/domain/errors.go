package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a malformed or incomplete match request.
	ErrValidation = errors.New("validation failed")
	// ErrMissingLabels signals an empty or absent label list.
	ErrMissingLabels = fmt.Errorf("%w: Missing required parameter: labels", ErrValidation)

	// ErrBackendQuery signals a failed search call for a single label.
	ErrBackendQuery = errors.New("backend query failed")
	// ErrBackendUnavailable signals that the search backend could not be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrTimeout signals that a backend or embedding call ran past its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrIndexNotFound signals a missing catalog index.
	ErrIndexNotFound = errors.New("index not found")

	// ErrSchemaConflict signals a document whose fields conflict with the index mapping.
	ErrSchemaConflict = errors.New("schema conflict")
	// ErrConfiguration signals unusable credentials, endpoints or settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrVectorDimMismatch signals a vector whose length differs from the index dimension.
	ErrVectorDimMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrConfiguration)

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// DimensionError reports the offending vector length against the configured one.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: want %d, got %d", ErrVectorDimMismatch.Error(), e.Want, e.Got)
}

func (e *DimensionError) Unwrap() error { return ErrVectorDimMismatch }

// CheckDimension returns a *DimensionError when len(vec) != want.
func CheckDimension(vec []float32, want int) error {
	if len(vec) != want {
		return &DimensionError{Want: want, Got: len(vec)}
	}
	return nil
}
