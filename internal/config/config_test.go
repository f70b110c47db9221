package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/climateseal/carbonmatch/internal/domain"
)

func validConfig() Config {
	cfg := Config{
		Elasticsearch: ElasticsearchConfig{Addrs: []string{"http://localhost:9200"}},
		Embedding: EmbeddingConfig{
			Providers: map[string]ProviderConfig{
				"dashscope": {APIKey: "test-key", BaseURL: "https://dashscope.example.com/compatible-mode/v1"},
			},
			Models: map[string]ModelConfig{
				"dashscope_v3": {Provider: "dashscope", Model: "text-embedding-v3"},
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("http.port = %d", cfg.HTTP.Port)
	}
	if cfg.Elasticsearch.Index != "carbon_factor" || cfg.Elasticsearch.Driver != DriverElasticsearch {
		t.Errorf("elasticsearch = %+v", cfg.Elasticsearch)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("embedding.dimensions = %d", cfg.Embedding.Dimensions)
	}
	m := cfg.Embedding.Models["dashscope_v3"]
	if m.Kind != KindOpenAI || m.Dimensions != 384 {
		t.Errorf("model defaults = %+v", m)
	}
	if cfg.Match.DefaultTopK != 3 || *cfg.Match.DefaultMinScore != 0.3 || cfg.Match.DefaultMethod != "script_score" {
		t.Errorf("match = %+v", cfg.Match)
	}
	tn := cfg.Tuning
	if tn.ContentZHBoost != 3 || tn.ContentENBoost != 2 || tn.ActivityNameBoost != 2 {
		t.Errorf("boosts = %v/%v/%v", tn.ContentZHBoost, tn.ContentENBoost, tn.ActivityNameBoost)
	}
	if *tn.TieBreaker != 0.3 || tn.MinimumShouldMatch != "30%" || *tn.Fuzziness != 2 || tn.MaxExpansions != 50 {
		t.Errorf("tuning = %+v", tn)
	}
	if tn.LexicalField != "activity_name" || tn.VectorOffset != 1.0 {
		t.Errorf("tuning = %+v", tn)
	}
	if cfg.Ingest.BatchSize != 1000 || cfg.Ingest.IDStrategy != "row" || cfg.Ingest.DataSource != "ecoinvent" {
		t.Errorf("ingest = %+v", cfg.Ingest)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_KeepsExplicitZeros(t *testing.T) {
	zero := 0.0
	exact := 0
	cfg := validConfig()
	cfg.Match.DefaultMinScore = &zero
	cfg.Tuning.TieBreaker = &zero
	cfg.Tuning.Fuzziness = &exact
	cfg.ApplyDefaults()

	if *cfg.Match.DefaultMinScore != 0 || *cfg.Tuning.TieBreaker != 0 || *cfg.Tuning.Fuzziness != 0 {
		t.Error("explicit zero values must survive defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("fuzziness 0 should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing addrs", func(c *Config) { c.Elasticsearch.Addrs = []string{""} }, "elasticsearch.addrs is required"},
		{"bad driver", func(c *Config) { c.Elasticsearch.Driver = "solr" }, "elasticsearch.driver"},
		{"bad index", func(c *Config) { c.Elasticsearch.Index = "Carbon Factor" }, "not a valid index name"},
		{"unknown default model", func(c *Config) { c.Embedding.DefaultModel = "nope" }, "embedding.default_model"},
		{"unknown provider", func(c *Config) {
			c.Embedding.Models["dashscope_v3"] = ModelConfig{Kind: KindOpenAI, Provider: "x", Model: "m", Dimensions: 384}
		}, "provider \"x\""},
		{"dims mismatch", func(c *Config) {
			c.Embedding.Models["bge"] = ModelConfig{Kind: KindFastEmbed, Model: "bge-small", Dimensions: 512}
		}, "must equal embedding.dimensions"},
		{"bad kind", func(c *Config) {
			c.Embedding.Models["x"] = ModelConfig{Kind: "onnx", Model: "m", Dimensions: 384}
		}, "kind must be"},
		{"cache without addrs", func(c *Config) { c.Cache.Enabled = true }, "cache.addrs"},
		{"top_k", func(c *Config) { c.Match.DefaultTopK = 500 }, "exceeds match.max_top_k"},
		{"method", func(c *Config) { c.Match.DefaultMethod = "knn" }, "match.default_method"},
		{"offset", func(c *Config) { c.Tuning.VectorOffset = 0.5 }, "vector_offset"},
		{"fuzziness", func(c *Config) { f := 3; c.Tuning.Fuzziness = &f }, "fuzziness"},
		{"negative fuzziness", func(c *Config) { f := -1; c.Tuning.Fuzziness = &f }, "fuzziness"},
		{"id strategy", func(c *Config) { c.Ingest.IDStrategy = "uuid" }, "ingest.id_strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestValidate_FakeDriverNeedsNoAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Elasticsearch.Driver = DriverFake
	cfg.Elasticsearch.Addrs = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFile_ExpandsEnv(t *testing.T) {
	t.Setenv("CM_TEST_ES", "https://es.internal:9200")
	t.Setenv("CM_TEST_KEY", "sk-test")

	yml := `
elasticsearch:
  addrs: ["${CM_TEST_ES}"]
  username: ${CM_TEST_USER:-elastic}
embedding:
  providers:
    dashscope:
      api_key: ${CM_TEST_KEY}
      base_url: https://dashscope.example.com/compatible-mode/v1
  models:
    dashscope_v3:
      provider: dashscope
      model: text-embedding-v3
match:
  default_min_score: 0
`
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Elasticsearch.Addrs[0] != "https://es.internal:9200" {
		t.Errorf("addrs = %v", cfg.Elasticsearch.Addrs)
	}
	if cfg.Elasticsearch.Username != "elastic" {
		t.Errorf("username = %q, want default", cfg.Elasticsearch.Username)
	}
	if cfg.Embedding.Providers["dashscope"].APIKey != "sk-test" {
		t.Error("api key not expanded")
	}
	if *cfg.Match.DefaultMinScore != 0 {
		t.Errorf("default_min_score = %v, want explicit 0", *cfg.Match.DefaultMinScore)
	}
}

func TestLoadFile_InvalidIsConfigurationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("elasticsearch:\n  addrs: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(path)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CM_SET", "value")
	got := string(expandEnvVars([]byte("a=${CM_SET} b=${CM_UNSET_VAR:-fallback} c=${CM_UNSET_VAR}")))
	if got != "a=value b=fallback c=" {
		t.Errorf("expandEnvVars() = %q", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if GetEnv() != "local" {
		t.Errorf("GetEnv() = %q", GetEnv())
	}
	t.Setenv("ENV", "prod")
	if GetEnv() != "prod" {
		t.Errorf("GetEnv() = %q", GetEnv())
	}
}
