package source

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/climateseal/carbonmatch/internal/domain/row"
)

type xlsxReader struct {
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
}

func openXLSX(path string, opts Options) (*xlsxReader, error) {
	f, err := excelize.OpenFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheet, err := resolveSheet(f.GetSheetList(), opts.Sheet)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheet, err)
	}

	x := &xlsxReader{file: f, rows: rows}
	for i := 1; i <= opts.headerRow(); i++ {
		if !rows.Next() {
			_ = x.Close()
			return nil, fmt.Errorf("sheet %q: header row %d not found", sheet, opts.headerRow())
		}
		if i == opts.headerRow() {
			x.headers, err = rows.Columns()
			if err != nil {
				_ = x.Close()
				return nil, fmt.Errorf("read header: %w", err)
			}
		}
	}
	return x, nil
}

// resolveSheet accepts a sheet name or a 0-based index.
func resolveSheet(sheets []string, want string) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if want == "" {
		return sheets[0], nil
	}
	for _, s := range sheets {
		if s == want {
			return s, nil
		}
	}
	if idx, err := strconv.Atoi(want); err == nil {
		if idx < 0 || idx >= len(sheets) {
			return "", fmt.Errorf("workbook has %d sheets, index %d out of range", len(sheets), idx)
		}
		return sheets[idx], nil
	}
	return "", fmt.Errorf("sheet %q not found (have %v)", want, sheets)
}

func (x *xlsxReader) Headers() []string { return x.headers }

func (x *xlsxReader) Next() ([]row.Value, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		return nil, io.EOF
	}
	cols, err := x.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read row: %w", err)
	}
	return parseCells(cols), nil
}

func (x *xlsxReader) Close() error {
	if x.rows != nil {
		_ = x.rows.Close()
	}
	return x.file.Close()
}
