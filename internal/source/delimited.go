package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/climateseal/carbonmatch/internal/domain/row"
)

const utf8BOM = "\ufeff"

type delimitedReader struct {
	file    *os.File
	r       *csv.Reader
	headers []string
}

func openDelimited(path string, comma rune, opts Options) (*delimitedReader, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	var headers []string
	for i := 1; i <= opts.headerRow(); i++ {
		headers, err = r.Read()
		if err != nil {
			_ = f.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("header row %d not found", opts.headerRow())
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	}

	return &delimitedReader{file: f, r: r, headers: headers}, nil
}

func (d *delimitedReader) Headers() []string { return d.headers }

func (d *delimitedReader) Next() ([]row.Value, error) {
	rec, err := d.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read row: %w", err)
	}
	return parseCells(rec), nil
}

func (d *delimitedReader) Close() error { return d.file.Close() }
