package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/climateseal/carbonmatch/internal/domain/row"
)

const parquetBatch = 1000

// parquetReader reads generic rows and maps leaf columns by index.
type parquetReader struct {
	file    *os.File
	pf      *parquet.File
	headers []string

	groups []parquet.RowGroup
	group  int
	rows   parquet.Rows
	buf    []parquet.Row
	pos    int
	n      int
}

func openParquet(path string) (*parquetReader, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	cols := pf.Schema().Columns()
	headers := make([]string, len(cols))
	for i, path := range cols {
		headers[i] = strings.Join(path, ".")
	}

	return &parquetReader{
		file:    f,
		pf:      pf,
		headers: headers,
		groups:  pf.RowGroups(),
		buf:     make([]parquet.Row, parquetBatch),
	}, nil
}

func (p *parquetReader) Headers() []string { return p.headers }

func (p *parquetReader) Next() ([]row.Value, error) {
	for p.pos >= p.n {
		if err := p.fill(); err != nil {
			return nil, err
		}
	}
	r := p.buf[p.pos]
	p.pos++
	return p.toValues(r), nil
}

// fill loads the next batch, advancing through row groups. Returns io.EOF at the end.
func (p *parquetReader) fill() error {
	for {
		if p.rows == nil {
			if p.group >= len(p.groups) {
				return io.EOF
			}
			p.rows = p.groups[p.group].Rows()
			p.group++
		}

		n, err := p.rows.ReadRows(p.buf)
		p.pos, p.n = 0, n
		if err != nil {
			_ = p.rows.Close()
			p.rows = nil
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("read rows: %w", err)
			}
		}
		if n > 0 {
			return nil
		}
	}
}

func (p *parquetReader) toValues(r parquet.Row) []row.Value {
	values := make([]row.Value, len(p.headers))
	var repeated map[int][]string
	for _, v := range r {
		col := v.Column()
		if col < 0 || col >= len(values) || v.IsNull() {
			continue
		}
		cell := parquetValue(v)
		if values[col].IsAbsent() {
			values[col] = cell
			continue
		}
		// repeated leaf: join list elements into one string cell
		if repeated == nil {
			repeated = make(map[int][]string)
		}
		if len(repeated[col]) == 0 {
			repeated[col] = append(repeated[col], values[col].Display())
		}
		repeated[col] = append(repeated[col], cell.Display())
	}
	for col, parts := range repeated {
		values[col] = row.String(strings.Join(parts, ", "))
	}
	return values
}

func parquetValue(v parquet.Value) row.Value {
	switch v.Kind() {
	case parquet.Boolean:
		if v.Boolean() {
			return row.String("true")
		}
		return row.String("false")
	case parquet.Int32:
		return row.Number(float64(v.Int32()))
	case parquet.Int64:
		return row.Number(float64(v.Int64()))
	case parquet.Float:
		return row.Number(float64(v.Float()))
	case parquet.Double:
		return row.Number(v.Double())
	default:
		return row.String(v.String())
	}
}

func (p *parquetReader) Close() error {
	if p.rows != nil {
		_ = p.rows.Close()
	}
	return p.file.Close()
}
