package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"

	"github.com/climateseal/carbonmatch/internal/domain/row"
)

func readAll(t *testing.T, r Reader) [][]row.Value {
	t.Helper()
	var out [][]row.Value
	for {
		vals, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next(): %v", err)
		}
		out = append(out, vals)
	}
}

func TestOpen_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factors.csv")
	data := "\ufeffActivity Name,kg CO2-eq,Geography\n" +
		"steel production,1.9,CN\n" +
		"\"cement, portland\",0.83,\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if h := r.Headers(); len(h) != 3 || h[0] != "Activity Name" {
		t.Errorf("Headers() = %q", h)
	}
	rows := readAll(t, r)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if s, _ := rows[1][0].Text(); s != "cement, portland" {
		t.Errorf("quoted cell = %q", s)
	}
	if f, ok := rows[0][1].Float(); !ok || f != 1.9 {
		t.Errorf("numeric cell = %v, %v", f, ok)
	}
	if !rows[1][2].IsAbsent() {
		t.Error("empty cell should be absent")
	}
}

func TestOpen_TSVWithHeaderRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factors.tsv")
	data := "exported by tool\nactivity_name\tunit\nsteel\tkg\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path, Options{HeaderRow: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if h := r.Headers(); len(h) != 2 || h[1] != "unit" {
		t.Errorf("Headers() = %q", h)
	}
	if rows := readAll(t, r); len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}
}

func TestOpen_Unsupported(t *testing.T) {
	_, err := Open("factors.json", Options{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func writeWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet("Factors"); err != nil {
		t.Fatal(err)
	}
	rows := [][]any{
		{"ecoinvent export"},
		{"Activity Name", "Geography", "kg CO2-eq", "Reference Product Unit"},
		{"steel production", "CN", 1.9, "kg"},
		{"electricity, high voltage", "GLO", 0.5, "kWh"},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := r
		if err := f.SetSheetRow("Factors", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "factors.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpen_XLSX(t *testing.T) {
	path := writeWorkbook(t)

	for _, sheet := range []string{"Factors", "1"} {
		r, err := Open(path, Options{Sheet: sheet, HeaderRow: 2})
		if err != nil {
			t.Fatalf("Open(sheet=%s): %v", sheet, err)
		}
		if h := r.Headers(); len(h) != 4 || h[3] != "Reference Product Unit" {
			t.Errorf("Headers() = %q", h)
		}
		rows := readAll(t, r)
		_ = r.Close()
		if len(rows) != 2 {
			t.Fatalf("got %d rows, want 2", len(rows))
		}
		if f, ok := rows[1][2].Float(); !ok || f != 0.5 {
			t.Errorf("factor = %v, %v", f, ok)
		}
	}
}

func TestOpen_XLSXBadSheet(t *testing.T) {
	path := writeWorkbook(t)
	if _, err := Open(path, Options{Sheet: "7"}); err == nil {
		t.Error("expected out of range error")
	}
	if _, err := Open(path, Options{Sheet: "Missing"}); err == nil {
		t.Error("expected not found error")
	}
}

type parquetFactor struct {
	ActivityName string   `parquet:"activity_name"`
	KgCO2eq      float64  `parquet:"kg_co2eq"`
	Geography    *string  `parquet:"geography,optional"`
	Tags         []string `parquet:"tags,list"`
}

func TestOpen_Parquet(t *testing.T) {
	cn := "CN"
	path := filepath.Join(t.TempDir(), "factors.parquet")
	err := parquet.WriteFile(path, []parquetFactor{
		{ActivityName: "steel production", KgCO2eq: 1.9, Geography: &cn, Tags: []string{"metal", "primary"}},
		{ActivityName: "cement", KgCO2eq: 0.83},
	})
	if err != nil {
		t.Fatalf("write parquet: %v", err)
	}

	r, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	col := map[string]int{}
	for i, h := range r.Headers() {
		col[h] = i
	}
	for _, name := range []string{"activity_name", "kg_co2eq", "geography"} {
		if _, ok := col[name]; !ok {
			t.Fatalf("column %s missing from %v", name, r.Headers())
		}
	}

	rows := readAll(t, r)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if s, _ := rows[0][col["activity_name"]].Text(); s != "steel production" {
		t.Errorf("activity_name = %q", s)
	}
	if f, ok := rows[0][col["kg_co2eq"]].Float(); !ok || f != 1.9 {
		t.Errorf("kg_co2eq = %v, %v", f, ok)
	}
	if !rows[1][col["geography"]].IsAbsent() {
		t.Error("null geography should be absent")
	}
}
