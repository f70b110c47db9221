package bootstrap

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/climateseal/carbonmatch/internal/config"
	"github.com/climateseal/carbonmatch/internal/db/fake"
	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/search/method"
)

func testConfig() *config.Config {
	cfg := config.Config{
		Elasticsearch: config.ElasticsearchConfig{Driver: config.DriverFake, Index: "factors"},
		Embedding: config.EmbeddingConfig{
			Providers: map[string]config.ProviderConfig{
				"dashscope": {APIKey: "k", BaseURL: "http://127.0.0.1:1/v1", RateLimitRPS: 5},
			},
			Models: map[string]config.ModelConfig{
				"dashscope_v3": {Provider: "dashscope", Model: "text-embedding-v3", QueryInstruction: "query: "},
				"dashscope_v2": {Provider: "dashscope", Model: "text-embedding-v2"},
			},
		},
	}
	cfg.ApplyDefaults()
	return &cfg
}

func TestOpenStore(t *testing.T) {
	s, err := OpenStore(config.ElasticsearchConfig{Driver: config.DriverFake})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*fake.Store); !ok {
		t.Errorf("store = %T", s)
	}

	if _, err := OpenStore(config.ElasticsearchConfig{Driver: "solr"}); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("unknown driver: %v", err)
	}
	if _, err := OpenStore(config.ElasticsearchConfig{Driver: config.DriverElasticsearch}); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("missing addrs: %v", err)
	}
	if _, err := OpenStore(config.ElasticsearchConfig{
		Driver: config.DriverElasticsearch, Addrs: []string{"http://localhost:9200"}, RequestTimeoutSec: 5,
	}); err != nil {
		t.Errorf("elasticsearch: %v", err)
	}
}

func TestCatalog_IndexOverride(t *testing.T) {
	cfg := testConfig()
	if got := Catalog(fake.New(), cfg, "").Index(); got != "factors" {
		t.Errorf("index = %q", got)
	}
	if got := Catalog(fake.New(), cfg, "other").Index(); got != "other" {
		t.Errorf("index = %q", got)
	}
}

func TestOpenCache_Disabled(t *testing.T) {
	s, err := OpenCache(config.CacheConfig{})
	if err != nil || s != nil {
		t.Errorf("disabled cache = %v, %v", s, err)
	}
}

func TestEmbeddings_RegistersModels(t *testing.T) {
	reg, err := Embeddings(testConfig(), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reg.Close() }()

	names := reg.Names()
	if len(names) != 2 || names[0] != "dashscope_v2" || names[1] != "dashscope_v3" {
		t.Errorf("names = %v", names)
	}

	q, name, err := reg.Query("dashscope_v3")
	if err != nil || name != "dashscope_v3" {
		t.Fatalf("query = %v %q", err, name)
	}
	if _, ok := q.(*domain.InstructionEmbedder); !ok {
		t.Errorf("query embedder = %T, want instruction prefix", q)
	}
	d, _, _ := reg.Document("dashscope_v3")
	if _, ok := d.(*domain.InstructionEmbedder); ok {
		t.Error("document embedder has no instruction configured")
	}

	if _, name, _ := reg.Query("unknown"); name != "dashscope_v3" {
		t.Errorf("fallback = %q", name)
	}
}

func TestEmbeddings_DimensionMismatch(t *testing.T) {
	cfg := testConfig()
	m := cfg.Embedding.Models["dashscope_v2"]
	m.Dimensions = 1024
	cfg.Embedding.Models["dashscope_v2"] = m

	if _, err := Embeddings(cfg, nil, zaptest.NewLogger(t)); !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestMatchConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Match.DefaultMethod = "hybrid"
	cfg.Match.LabelTimeoutSec = 7
	mc := MatchConfig(cfg)

	if mc.Index != "factors" || mc.LabelTimeout != 7*time.Second {
		t.Errorf("config = %+v", mc)
	}
	if mc.Limits.DefaultMethod != method.Hybrid || mc.Limits.DefaultTopK != 3 || mc.Limits.DefaultMinScore != 0.3 {
		t.Errorf("limits = %+v", mc.Limits)
	}
	if mc.Limits.DefaultModel != cfg.Embedding.DefaultModel {
		t.Errorf("default model = %q", mc.Limits.DefaultModel)
	}
	if mc.Tuning.TieBreaker != 0.3 || mc.Tuning.VectorOffset != 1.0 || mc.Tuning.LexicalField != record.FieldActivityName {
		t.Errorf("tuning = %+v", mc.Tuning)
	}
}

func TestMatchConfig_ExactFuzziness(t *testing.T) {
	cfg := testConfig()
	exact := 0
	cfg.Tuning.Fuzziness = &exact
	if mc := MatchConfig(cfg); mc.Tuning.Fuzziness != 0 {
		t.Errorf("fuzziness = %d, want 0", mc.Tuning.Fuzziness)
	}
	if mc := MatchConfig(testConfig()); mc.Tuning.Fuzziness != 2 {
		t.Errorf("default fuzziness = %d, want 2", mc.Tuning.Fuzziness)
	}
}

func TestIngestConfig(t *testing.T) {
	ic := IngestConfig(testConfig())
	if ic.BatchSize != 1000 || ic.Dims != 384 || ic.IDStrategy != record.IDByRow || ic.DataSource != "ecoinvent" {
		t.Errorf("ingest = %+v", ic)
	}
}
