package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/db/fake"
	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/batch"
	"github.com/climateseal/carbonmatch/internal/domain/record"
)

const testDims = 3

func newTestRepo(t *testing.T) (*Repo, *fake.Store) {
	t.Helper()
	s := fake.New()
	return New(s, Config{Index: "carbon_factor", Dims: testDims}), s
}

func testRecord(i int) record.Record {
	kg := float64(i) + 0.5
	return record.Record{
		ID:           fmt.Sprintf("carbon_factor_%d", i),
		ActivityName: fmt.Sprintf("activity %d", i),
		Geography:    "GLO",
		KgCO2eq:      &kg,
		Unit:         "kg",
		ContentEN:    fmt.Sprintf("activity %d GLO", i),
		Vector:       []float32{1, 0, float32(i)},
		Provenance: record.Provenance{
			DataSource: "ecoinvent",
			Version:    "1.0",
			ImportedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		},
	}
}

func TestDefinition(t *testing.T) {
	r, _ := newTestRepo(t)
	def, err := r.Definition()
	if err != nil {
		t.Fatal(err)
	}
	types := map[string]db.FieldType{}
	for _, f := range def.Fields {
		types[f.Name] = f.Type
		if f.Name == record.FieldVector && (f.VectorDims != testDims || f.VectorSimilarity != db.SimilarityCosine) {
			t.Errorf("vector field = %+v", f)
		}
		if f.Name == record.FieldContentZH && f.Analyzer != "standard" {
			t.Errorf("content_zh analyzer = %q", f.Analyzer)
		}
	}
	want := map[string]db.FieldType{
		record.FieldVector:       db.FieldDenseVector,
		record.FieldContentEN:    db.FieldText,
		record.FieldTimestamp:    db.FieldDate,
		record.FieldImportDate:   db.FieldDate,
		record.FieldDataSource:   db.FieldKeyword,
		record.FieldKgCO2eq:      db.FieldFloat,
		record.FieldActivityName: db.FieldKeyword,
	}
	for name, typ := range want {
		if types[name] != typ {
			t.Errorf("field %s = %q, want %q", name, types[name], typ)
		}
	}
	if !def.StringsAsKeywords || def.Shards != 1 || def.Replicas != 0 {
		t.Errorf("definition = %+v", def)
	}
}

func TestEnsureSchema_CreatesOnce(t *testing.T) {
	r, s := newTestRepo(t)
	ctx := context.Background()

	if err := r.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
	if got := s.Calls(db.OpCreateIndex); got != 1 {
		t.Errorf("CreateIndex called %d times", got)
	}
}

func TestEnsureSchema_DimensionMismatch(t *testing.T) {
	s := fake.New()
	ctx := context.Background()
	if err := New(s, Config{Index: "carbon_factor", Dims: 384}).EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}

	err := New(s, Config{Index: "carbon_factor", Dims: 512}).EnsureSchema(ctx)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Error("dimension mismatch should be a configuration error")
	}
}

func TestEnsureSchema_Unavailable(t *testing.T) {
	r, s := newTestRepo(t)
	s.Fail(db.OpIndexExists, db.ErrUnavailable)

	if err := r.EnsureSchema(context.Background()); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestUpsert_ChunksAndOverwrites(t *testing.T) {
	r, s := newTestRepo(t)
	ctx := context.Background()
	if err := r.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}

	recs := make([]record.Record, 5)
	for i := range recs {
		recs[i] = testRecord(i)
	}

	report := r.Upsert(ctx, recs, 2)
	if len(report.Chunks) != 3 {
		t.Fatalf("chunks = %d", len(report.Chunks))
	}
	for i, c := range report.Chunks {
		if c.Index() != i || c.Status() != batch.StatusOK {
			t.Errorf("chunk %d = index %d status %s", i, c.Index(), c.Status())
		}
	}
	if report.Indexed() != 5 || !report.Clean() {
		t.Errorf("indexed %d clean %v", report.Indexed(), report.Clean())
	}

	// re-running the same records keeps the document count
	r.Upsert(ctx, recs, 2)
	if n, _ := r.Count(ctx); n != 5 {
		t.Errorf("count after re-run = %d", n)
	}
	doc := s.Docs("carbon_factor")["carbon_factor_2"]
	if doc[record.FieldImportDate] != "2026-03-01" || doc[record.FieldKgCO2eq] != 2.5 {
		t.Errorf("stored doc = %v", doc)
	}
}

func TestUpsertChunk_SchemaConflict(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	if err := r.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}

	bad := testRecord(1)
	bad.KgCO2eq = nil
	bad.Extra = map[string]any{record.FieldKgCO2eq: "n/a"}

	res := r.UpsertChunk(ctx, 7, []record.Record{testRecord(0), bad})
	if res.Status() != batch.StatusPartial {
		t.Fatalf("status = %s", res.Status())
	}
	if res.Index() != 7 || res.Indexed() != 1 {
		t.Errorf("index %d indexed %d", res.Index(), res.Indexed())
	}
	de := res.DocErrors()[0]
	if de.ID != bad.ID || !errors.Is(de.Err, domain.ErrSchemaConflict) || de.Type != "mapper_parsing_exception" {
		t.Errorf("doc error = %+v", de)
	}
}

func TestUpsertChunk_DimensionMismatchFailsChunk(t *testing.T) {
	r, s := newTestRepo(t)
	ctx := context.Background()
	if err := r.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	rec := testRecord(0)
	rec.Vector = []float32{1, 2}

	res := r.UpsertChunk(ctx, 0, []record.Record{rec})
	if res.Status() != batch.StatusError || !errors.Is(res.Err(), domain.ErrVectorDimMismatch) {
		t.Fatalf("result = %s %v", res.Status(), res.Err())
	}
	if s.Calls(db.OpBulk) != 0 {
		t.Error("no bulk request expected for invalid vectors")
	}
}

func TestUpsert_ChunkFailureIsIndependent(t *testing.T) {
	r, s := newTestRepo(t)
	ctx := context.Background()

	// index never created: every bulk call fails with 404
	report := r.Upsert(ctx, []record.Record{testRecord(0), testRecord(1)}, 1)
	if report.Failed() != 2 {
		t.Fatalf("failed = %d", report.Failed())
	}
	if !errors.Is(report.Chunks[0].Err(), domain.ErrIndexNotFound) {
		t.Errorf("chunk error = %v", report.Chunks[0].Err())
	}
	if s.Calls(db.OpBulk) != 2 {
		t.Errorf("bulk calls = %d", s.Calls(db.OpBulk))
	}
}

func TestSearch_DecodesRecords(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	if err := r.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	r.Upsert(ctx, []record.Record{testRecord(0), testRecord(1)}, 10)

	matches, err := r.Search(ctx, &db.SearchQuery{
		Query:          map[string]any{"term": map[string]any{record.FieldActivityName: map[string]any{"value": "activity 1"}}},
		Size:           3,
		SourceExcludes: []string{record.FieldVector},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d", len(matches))
	}
	rec := matches[0].Record()
	if rec.ID != "carbon_factor_1" || rec.Unit != "kg" || rec.KgCO2eq == nil || *rec.KgCO2eq != 1.5 {
		t.Errorf("record = %+v", rec)
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	r, s := newTestRepo(t)
	ctx := context.Background()

	if _, err := r.Search(ctx, &db.SearchQuery{Query: map[string]any{"match_all": map[string]any{}}}); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("missing index: %v", err)
	}

	s.Fail(db.OpSearch, db.ErrUnavailable)
	if _, err := r.Search(ctx, &db.SearchQuery{}); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("unavailable: %v", err)
	}

	s.Fail(db.OpSearch, context.DeadlineExceeded)
	if _, err := r.Search(ctx, &db.SearchQuery{}); !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("deadline: %v", err)
	}

	s.Fail(db.OpSearch, errors.New("parsing_exception"))
	if _, err := r.Search(ctx, &db.SearchQuery{}); !errors.Is(err, domain.ErrBackendQuery) {
		t.Errorf("query error: %v", err)
	}
}

func TestDelete(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	if err := r.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}

	existed, err := r.Delete(ctx)
	if err != nil || !existed {
		t.Fatalf("Delete() = %v, %v", existed, err)
	}
	existed, err = r.Delete(ctx)
	if err != nil || existed {
		t.Fatalf("second Delete() = %v, %v; want already absent", existed, err)
	}
}

func TestPing(t *testing.T) {
	r, s := newTestRepo(t)
	info, err := r.Ping(context.Background())
	if err != nil || info.ClusterName == "" {
		t.Fatalf("Ping() = %+v, %v", info, err)
	}

	s.Fail(db.OpInfo, &db.Error{Op: db.OpInfo, Status: 401, Err: errors.New("unauthorized")})
	if _, err := r.Ping(context.Background()); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("401 should map to configuration error, got %v", err)
	}
}
