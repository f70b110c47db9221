package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/search/method"
)

// Backend drivers.
const (
	DriverElasticsearch = "elasticsearch"
	DriverFake          = "fake"
)

// Embedding model kinds.
const (
	KindOpenAI    = "openai"
	KindFastEmbed = "fastembed"
)

// Config holds the carbonmatch configuration shared by the server and the CLIs.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Cache         CacheConfig         `yaml:"cache"`
	Match         MatchConfig         `yaml:"match"`
	Tuning        TuningConfig        `yaml:"tuning"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ElasticsearchConfig holds search backend settings.
type ElasticsearchConfig struct {
	Driver              string   `yaml:"driver"` // elasticsearch, fake (default: elasticsearch)
	Addrs               []string `yaml:"addrs"`
	Username            string   `yaml:"username"`
	Password            string   `yaml:"password"`
	Index               string   `yaml:"index"`
	InsecureSkipVerify  bool     `yaml:"insecure_skip_verify"`
	MaxRetries          int      `yaml:"max_retries"`
	RequestTimeoutSec   int      `yaml:"request_timeout_sec"`
	ReadinessTimeoutSec int      `yaml:"readiness_timeout_sec"`
	Shards              int      `yaml:"shards"`
	Replicas            int      `yaml:"replicas"`
	Analyzer            string   `yaml:"analyzer"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	DefaultModel string                    `yaml:"default_model"`
	Dimensions   int                       `yaml:"dimensions"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Models       map[string]ModelConfig    `yaml:"models"`
}

// ProviderConfig holds OpenAI-compatible provider settings.
type ProviderConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // 0 = unlimited
	Burst        int     `yaml:"burst"`
	MaxBatchSize int     `yaml:"max_batch_size"` // texts per embeddings call
}

// ModelConfig binds a model identifier (as sent in embedding_model) to a provider.
type ModelConfig struct {
	Kind                string `yaml:"kind"`     // openai, fastembed (default: openai)
	Provider            string `yaml:"provider"` // key into embedding.providers (openai kind)
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	CacheDir            string `yaml:"cache_dir"` // fastembed model files
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// CacheConfig holds the embedding cache settings.
type CacheConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Addrs     []string `yaml:"addrs"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
	TTLHours  int      `yaml:"ttl_hours"`

	DialTimeoutSec  int `yaml:"dial_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
}

// MatchConfig holds batch match limits and defaults.
type MatchConfig struct {
	Workers         int      `yaml:"workers"`
	LabelTimeoutSec int      `yaml:"label_timeout_sec"`
	DefaultTopK     int      `yaml:"default_top_k"`
	MaxTopK         int      `yaml:"max_top_k"`
	DefaultMinScore *float64 `yaml:"default_min_score"`
	DefaultMethod   string   `yaml:"default_method"`
	MaxLabels       int      `yaml:"max_labels"`
}

// TuningConfig holds the query planner constants.
type TuningConfig struct {
	ContentZHBoost     float64  `yaml:"content_zh_boost"`
	ContentENBoost     float64  `yaml:"content_en_boost"`
	ActivityNameBoost  float64  `yaml:"activity_name_boost"`
	TieBreaker         *float64 `yaml:"tie_breaker"`
	MinimumShouldMatch string   `yaml:"minimum_should_match"`
	Fuzziness          *int     `yaml:"fuzziness"`
	MaxExpansions      int      `yaml:"max_expansions"`
	LexicalField       string   `yaml:"lexical_field"`
	VectorOffset       float64  `yaml:"vector_offset"`
}

// IngestConfig holds catalog import settings.
type IngestConfig struct {
	BatchSize   int    `yaml:"batch_size"`
	Workers     int    `yaml:"workers"`
	DataSource  string `yaml:"data_source"`
	Version     string `yaml:"version"`
	Sheet       string `yaml:"sheet"`
	HeaderRow   int    `yaml:"header_row"`
	IDStrategy  string `yaml:"id_strategy"`
	ZHNameField string `yaml:"zh_name_field"`
	LockDir     string `yaml:"lock_dir"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: invalid config: %w", domain.ErrConfiguration, err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	es := &c.Elasticsearch
	if es.Driver == "" {
		es.Driver = DriverElasticsearch
	}
	if es.Index == "" {
		es.Index = "carbon_factor"
	}
	if es.RequestTimeoutSec <= 0 {
		es.RequestTimeoutSec = 30
	}
	if es.ReadinessTimeoutSec <= 0 {
		es.ReadinessTimeoutSec = 10
	}
	if es.Shards <= 0 {
		es.Shards = 1
	}
	if es.Analyzer == "" {
		es.Analyzer = "standard"
	}

	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 384
	}
	if c.Embedding.DefaultModel == "" {
		c.Embedding.DefaultModel = "dashscope_v3"
	}
	for name, p := range c.Embedding.Providers {
		if p.MaxBatchSize <= 0 {
			p.MaxBatchSize = 10
		}
		if p.RateLimitRPS > 0 && p.Burst <= 0 {
			p.Burst = 1
		}
		c.Embedding.Providers[name] = p
	}
	for name, m := range c.Embedding.Models {
		if m.Kind == "" {
			m.Kind = KindOpenAI
		}
		if m.Dimensions <= 0 {
			m.Dimensions = c.Embedding.Dimensions
		}
		c.Embedding.Models[name] = m
	}

	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "carbonmatch:emb:"
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 24 * 30
	}
	if c.Cache.DialTimeoutSec <= 0 {
		c.Cache.DialTimeoutSec = 2
	}
	if c.Cache.WriteTimeoutSec <= 0 {
		c.Cache.WriteTimeoutSec = 5
	}

	m := &c.Match
	if m.Workers <= 0 {
		m.Workers = 8
	}
	if m.LabelTimeoutSec <= 0 {
		m.LabelTimeoutSec = 30
	}
	if m.DefaultTopK <= 0 {
		m.DefaultTopK = 3
	}
	if m.MaxTopK <= 0 {
		m.MaxTopK = 100
	}
	if m.DefaultMinScore == nil {
		v := 0.3
		m.DefaultMinScore = &v
	}
	if m.DefaultMethod == "" {
		m.DefaultMethod = string(method.Default)
	}
	if m.MaxLabels <= 0 {
		m.MaxLabels = 200
	}

	t := &c.Tuning
	if t.ContentZHBoost <= 0 {
		t.ContentZHBoost = 3
	}
	if t.ContentENBoost <= 0 {
		t.ContentENBoost = 2
	}
	if t.ActivityNameBoost <= 0 {
		t.ActivityNameBoost = 2
	}
	if t.TieBreaker == nil {
		v := 0.3
		t.TieBreaker = &v
	}
	if t.MinimumShouldMatch == "" {
		t.MinimumShouldMatch = "30%"
	}
	if t.Fuzziness == nil {
		v := 2
		t.Fuzziness = &v
	}
	if t.MaxExpansions <= 0 {
		t.MaxExpansions = 50
	}
	if t.LexicalField == "" {
		t.LexicalField = record.FieldActivityName
	}
	if t.VectorOffset == 0 {
		t.VectorOffset = 1.0
	}

	in := &c.Ingest
	if in.BatchSize <= 0 {
		in.BatchSize = 1000
	}
	if in.Workers <= 0 {
		in.Workers = 2
	}
	if in.DataSource == "" {
		in.DataSource = "ecoinvent"
	}
	if in.Version == "" {
		in.Version = "1.0"
	}
	if in.HeaderRow <= 0 {
		in.HeaderRow = 1
	}
	if in.IDStrategy == "" {
		in.IDStrategy = string(record.IDByRow)
	}
	if in.ZHNameField == "" {
		in.ZHNameField = "activity_name_zh"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	es := &c.Elasticsearch
	switch es.Driver {
	case DriverElasticsearch:
		if len(es.Addrs) == 0 || es.Addrs[0] == "" {
			return fmt.Errorf("elasticsearch.addrs is required")
		}
	case DriverFake:
	default:
		return fmt.Errorf("elasticsearch.driver must be %q or %q, got %q", DriverElasticsearch, DriverFake, es.Driver)
	}
	if !db.IsValidIndexName(es.Index) {
		return fmt.Errorf("elasticsearch.index %q is not a valid index name", es.Index)
	}

	if err := c.validateEmbedding(); err != nil {
		return err
	}

	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled")
	}

	if c.Match.DefaultTopK > c.Match.MaxTopK {
		return fmt.Errorf("match.default_top_k (%d) exceeds match.max_top_k (%d)", c.Match.DefaultTopK, c.Match.MaxTopK)
	}
	if ms := *c.Match.DefaultMinScore; ms < 0 || ms > 1 {
		return fmt.Errorf("match.default_min_score must be between 0 and 1, got %v", ms)
	}
	if _, err := method.Parse(c.Match.DefaultMethod); err != nil {
		return fmt.Errorf("match.default_method: %w", err)
	}

	if tb := *c.Tuning.TieBreaker; tb < 0 || tb > 1 {
		return fmt.Errorf("tuning.tie_breaker must be between 0 and 1, got %v", tb)
	}
	if f := *c.Tuning.Fuzziness; f < 0 || f > 2 {
		return fmt.Errorf("tuning.fuzziness must be between 0 and 2, got %d", f)
	}
	if c.Tuning.VectorOffset < 1 {
		return fmt.Errorf("tuning.vector_offset must be >= 1 to keep scores non-negative, got %v", c.Tuning.VectorOffset)
	}

	if !record.IDStrategy(c.Ingest.IDStrategy).IsValid() {
		return fmt.Errorf("ingest.id_strategy must be %q or %q, got %q", record.IDByRow, record.IDByContent, c.Ingest.IDStrategy)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	e := &c.Embedding
	if _, ok := e.Models[e.DefaultModel]; !ok {
		return fmt.Errorf("embedding.default_model %q is not defined in embedding.models", e.DefaultModel)
	}
	for name, m := range e.Models {
		switch m.Kind {
		case KindOpenAI:
			if _, ok := e.Providers[m.Provider]; !ok {
				return fmt.Errorf("embedding.models.%s.provider %q is not defined in embedding.providers", name, m.Provider)
			}
		case KindFastEmbed:
		default:
			return fmt.Errorf("embedding.models.%s.kind must be %q or %q, got %q", name, KindOpenAI, KindFastEmbed, m.Kind)
		}
		if m.Model == "" {
			return fmt.Errorf("embedding.models.%s.model is required", name)
		}
		if m.Dimensions != e.Dimensions {
			return fmt.Errorf("embedding.models.%s.dimensions (%d) must equal embedding.dimensions (%d)",
				name, m.Dimensions, e.Dimensions)
		}
	}
	for name, p := range e.Providers {
		if p.RateLimitRPS < 0 {
			return fmt.Errorf("embedding.providers.%s.rate_limit_rps must not be negative", name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
