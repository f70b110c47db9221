package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/climateseal/carbonmatch/internal/config"
	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/db/fake"
)

const testConfig = `elasticsearch:
  driver: fake
  index: carbon_factor
embedding:
  default_model: test
  dimensions: 3
  providers:
    stub:
      base_url: http://127.0.0.1:1
  models:
    test:
      provider: stub
      model: test-embedding
      dimensions: 3
`

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// setup writes a config file and routes every command to one shared fake store.
func setup(t *testing.T) (string, *fake.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	store := fake.New()
	prev := openStore
	openStore = func(config.ElasticsearchConfig) (db.Store, error) { return store, nil }
	t.Cleanup(func() { openStore = prev })
	return path, store
}

func execute(stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestPing(t *testing.T) {
	cfg, _ := setup(t)
	out, _, err := execute("", "ping", "-c", cfg)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !strings.Contains(out, "cluster fake, version 8.0.0-fake") {
		t.Errorf("out = %q", out)
	}
}

func TestPing_Unavailable(t *testing.T) {
	cfg, store := setup(t)
	store.Fail(db.OpInfo, errors.New("connection refused"))
	if _, _, err := execute("", "ping", "-c", cfg); err == nil {
		t.Error("expected an error")
	}
}

func TestEnsureThenCount(t *testing.T) {
	cfg, store := setup(t)

	out, _, err := execute("", "ensure", "-c", cfg)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !strings.Contains(out, "index carbon_factor ready (3-dim content_vector)") {
		t.Errorf("ensure out = %q", out)
	}
	dims, err := store.VectorDims(context.Background(), "carbon_factor", "content_vector")
	if err != nil || dims != 3 {
		t.Errorf("VectorDims = %d, %v", dims, err)
	}

	if _, _, err := execute("", "ensure", "-c", cfg); err != nil {
		t.Errorf("second ensure: %v", err)
	}

	out, _, err = execute("", "count", "-c", cfg)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if !strings.Contains(out, "index carbon_factor holds 0 documents") {
		t.Errorf("count out = %q", out)
	}
}

func TestEnsure_NamedIndex(t *testing.T) {
	cfg, store := setup(t)
	if _, _, err := execute("", "ensure", "carbon_factor_v2", "-c", cfg); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	ok, _ := store.IndexExists(context.Background(), "carbon_factor_v2")
	if !ok {
		t.Error("carbon_factor_v2 was not created")
	}
}

func TestCount_MissingIndex(t *testing.T) {
	cfg, _ := setup(t)
	if _, _, err := execute("", "count", "nope", "-c", cfg); err == nil {
		t.Error("expected an error for a missing index")
	}
}

func TestDelete_Forced(t *testing.T) {
	cfg, store := setup(t)
	if _, _, err := execute("", "ensure", "-c", cfg); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute("", "delete", "carbon_factor", "-f", "-c", cfg)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "index carbon_factor deleted") {
		t.Errorf("out = %q", out)
	}
	if ok, _ := store.IndexExists(context.Background(), "carbon_factor"); ok {
		t.Error("index still exists")
	}
}

func TestDelete_AlreadyAbsentSucceeds(t *testing.T) {
	cfg, _ := setup(t)
	out, _, err := execute("", "delete", "carbon_factor", "--force", "-c", cfg)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "index carbon_factor already absent") {
		t.Errorf("out = %q", out)
	}
}

func TestDelete_Prompt(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		deleted bool
	}{
		{"confirmed", "y\n", true},
		{"declined", "n\n", false},
		{"no answer", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, store := setup(t)
			if _, _, err := execute("", "ensure", "-c", cfg); err != nil {
				t.Fatal(err)
			}

			out, _, err := execute(tt.answer, "delete", "carbon_factor", "-c", cfg)
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if !strings.Contains(out, "Delete index carbon_factor and every document in it? [y/N]: ") {
				t.Errorf("prompt missing: %q", out)
			}
			exists, _ := store.IndexExists(context.Background(), "carbon_factor")
			if exists == tt.deleted {
				t.Errorf("exists = %v, want deleted = %v", exists, tt.deleted)
			}
		})
	}
}

func TestDelete_BackendErrorFails(t *testing.T) {
	cfg, store := setup(t)
	store.Fail(db.OpDeleteIndex, errors.New("cluster_block_exception"))
	if _, _, err := execute("", "delete", "carbon_factor", "-f", "-c", cfg); err == nil {
		t.Error("expected an error")
	}
}

func TestDelete_InvalidName(t *testing.T) {
	cfg, store := setup(t)
	if _, _, err := execute("", "delete", "logs-*", "-f", "-c", cfg); err == nil {
		t.Error("expected an error for a wildcard index name")
	}
	if n := store.Calls(db.OpDeleteIndex); n != 0 {
		t.Errorf("DeleteIndex called %d times", n)
	}
}
