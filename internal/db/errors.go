package db

import (
	"errors"
	"strconv"
)

// Sentinel errors for backend operations.
var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
	// ErrUnavailable marks transport failures: refused connections, DNS, TLS, 502-504.
	ErrUnavailable = errors.New("db: backend unavailable")
)

// Op constants name backend API calls for error context.
const (
	OpInfo        = "info"
	OpCreateIndex = "indices.create"
	OpDeleteIndex = "indices.delete"
	OpIndexExists = "indices.exists"
	OpGetMapping  = "indices.get_mapping"
	OpRefresh     = "indices.refresh"
	OpCount       = "count"
	OpBulk        = "bulk"
	OpSearch      = "search"
	OpGet         = "GET"
	OpSet         = "SET"
)

// Error wraps an underlying error with the operation name and HTTP status for diagnostics.
// Status is 0 when no response was received.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " [" + strconv.Itoa(e.Status) + "]: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// StatusOf returns the first non-zero HTTP status carried in err's chain, or 0.
func StatusOf(err error) int {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return 0
		}
		if e.Status != 0 {
			return e.Status
		}
		err = e.Err
	}
	return 0
}
