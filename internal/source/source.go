// Package source reads tabular catalog exports (CSV/TSV, XLSX, Parquet) as tagged rows.
package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/climateseal/carbonmatch/internal/domain/row"
)

// ErrUnsupportedFormat is returned for file extensions without a reader.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// Reader streams rows from a tabular source.
type Reader interface {
	// Headers returns the raw header row.
	Headers() []string
	// Next returns the next data row, or io.EOF after the last one.
	Next() ([]row.Value, error)
	Close() error
}

// Options selects the part of the file holding the table.
type Options struct {
	// Sheet is a sheet name or 0-based index; empty means the first sheet. XLSX only.
	Sheet string
	// HeaderRow is the 1-based row holding column names; rows above it are skipped.
	HeaderRow int
}

func (o Options) headerRow() int {
	if o.HeaderRow < 1 {
		return 1
	}
	return o.HeaderRow
}

// Open picks a reader by file extension.
func Open(path string, opts Options) (Reader, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		return openXLSX(path, opts)
	case ".csv":
		return openDelimited(path, ',', opts)
	case ".tsv", ".txt":
		return openDelimited(path, '\t', opts)
	case ".parquet":
		return openParquet(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCells(raw []string) []row.Value {
	values := make([]row.Value, len(raw))
	for i, s := range raw {
		values[i] = row.ParseCell(s)
	}
	return values
}
