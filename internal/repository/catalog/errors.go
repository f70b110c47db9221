package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/domain"
)

// mapError translates driver errors into domain sentinels, keeping the driver
// error in the chain for diagnostics.
func mapError(ctx context.Context, op string, err error) error {
	var sentinel error
	switch status := db.StatusOf(err); {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		sentinel = domain.ErrTimeout
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, db.ErrUnavailable):
		sentinel = domain.ErrBackendUnavailable
	case errors.Is(err, db.ErrIndexNotFound):
		sentinel = domain.ErrIndexNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = domain.ErrConfiguration
	case status == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimited
	default:
		sentinel = domain.ErrBackendQuery
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}
