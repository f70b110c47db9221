package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// embeddingServer answers OpenAI-style embedding calls with 3-dim vectors,
// or with status when it is non-zero.
func embeddingServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(text)), 1, 0},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embedding",
			"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()
	cfg := fmt.Sprintf(`elasticsearch:
  driver: fake
  index: carbon_factor
embedding:
  default_model: test
  dimensions: 3
  providers:
    stub:
      api_key: sk-test
      base_url: %s
  models:
    test:
      provider: stub
      model: test-embedding
      dimensions: 3
ingest:
  batch_size: 2
  workers: 2
  lock_dir: %s
`, baseURL, dir)
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeCSV(t *testing.T, dir string) string {
	t.Helper()
	data := "Activity Name,Geography,kg CO2-eq,Reference Product Unit\n" +
		"cement production,CN,0.82,kg\n" +
		",,,\n" +
		"steel production,GLO,1.9,kg\n" +
		"electricity high voltage,CN,0.6,kWh\n"
	path := filepath.Join(dir, "factors.csv")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestImport_Succeeds(t *testing.T) {
	dir := t.TempDir()
	srv := embeddingServer(t, 0)
	cfg := writeConfig(t, dir, srv.URL)

	stdout, stderr, err := execute(t, "--config", cfg, "--data-source", "unit-test", writeCSV(t, dir))
	if err != nil {
		t.Fatalf("import: %v\nstderr: %s", err, stderr)
	}
	for _, want := range []string{
		"importing",
		"4 rows, 3 accepted, 1 empty, 0 without text, 0 duplicates",
		"2 chunks: 2 succeeded, 0 failed; 3 documents indexed, 0 rejected",
		"index carbon_factor holds 3 documents",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestImport_IndexFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	srv := embeddingServer(t, 0)
	cfg := writeConfig(t, dir, srv.URL)

	stdout, _, err := execute(t, "-c", cfg, "--index", "carbon_factor_v2", writeCSV(t, dir))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(stdout, "index carbon_factor_v2 holds 3 documents") {
		t.Errorf("stdout:\n%s", stdout)
	}
}

func TestImport_FailedChunksExitNonZero(t *testing.T) {
	dir := t.TempDir()
	srv := embeddingServer(t, http.StatusInternalServerError)
	cfg := writeConfig(t, dir, srv.URL)

	_, stderr, err := execute(t, "-c", cfg, writeCSV(t, dir))
	if err == nil {
		t.Fatal("expected an error when every chunk failed")
	}
	if !strings.Contains(err.Error(), "2 of 2 chunks failed") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(stderr, "failed chunks: [0 1]") {
		t.Errorf("stderr:\n%s", stderr)
	}
}

func TestImport_InvalidOptions(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "http://127.0.0.1:1")

	_, _, err := execute(t, "-c", cfg, "--id-strategy", "random", writeCSV(t, dir))
	if err == nil || !strings.Contains(err.Error(), "ingest.id_strategy") {
		t.Errorf("error = %v", err)
	}
}

func TestImport_UnsupportedSource(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "http://127.0.0.1:1")
	path := filepath.Join(dir, "factors.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := execute(t, "-c", cfg, path)
	if err == nil || !strings.Contains(err.Error(), "open source") {
		t.Errorf("error = %v", err)
	}
}

func TestImport_RequiresPath(t *testing.T) {
	if _, _, err := execute(t); err == nil {
		t.Error("expected an argument error")
	}
}
