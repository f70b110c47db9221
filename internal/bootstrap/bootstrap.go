// Package bootstrap assembles the service graph shared by the server and the CLIs.
package bootstrap

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/climateseal/carbonmatch/internal/config"
	"github.com/climateseal/carbonmatch/internal/db"
	"github.com/climateseal/carbonmatch/internal/db/elastic"
	"github.com/climateseal/carbonmatch/internal/db/fake"
	dbRedis "github.com/climateseal/carbonmatch/internal/db/redis"
	"github.com/climateseal/carbonmatch/internal/domain"
	"github.com/climateseal/carbonmatch/internal/domain/record"
	"github.com/climateseal/carbonmatch/internal/domain/search/method"
	"github.com/climateseal/carbonmatch/internal/domain/search/request"
	"github.com/climateseal/carbonmatch/internal/repository/catalog"
	"github.com/climateseal/carbonmatch/internal/repository/embcache"
	"github.com/climateseal/carbonmatch/internal/transport/fastembed"
	openaiEmb "github.com/climateseal/carbonmatch/internal/transport/openai"
	embeddinguc "github.com/climateseal/carbonmatch/internal/usecase/embedding"
	"github.com/climateseal/carbonmatch/internal/usecase/ingest"
	matchuc "github.com/climateseal/carbonmatch/internal/usecase/match"
)

// OpenStore creates the search backend selected by elasticsearch.driver.
func OpenStore(cfg config.ElasticsearchConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverFake:
		return fake.New(), nil
	case config.DriverElasticsearch, "":
		store, err := elastic.NewStore(elastic.Config{
			Addrs:              cfg.Addrs,
			Username:           cfg.Username,
			Password:           cfg.Password,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			MaxRetries:         cfg.MaxRetries,
			RequestTimeout:     time.Duration(cfg.RequestTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: elasticsearch: %w", domain.ErrConfiguration, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown elasticsearch driver %q", domain.ErrConfiguration, cfg.Driver)
	}
}

// Catalog creates the catalog repository for index (the configured index when empty).
func Catalog(store db.Store, cfg *config.Config, index string) *catalog.Repo {
	if index == "" {
		index = cfg.Elasticsearch.Index
	}
	return catalog.New(store, catalog.Config{
		Index:    index,
		Dims:     cfg.Embedding.Dimensions,
		Shards:   cfg.Elasticsearch.Shards,
		Replicas: cfg.Elasticsearch.Replicas,
		Analyzer: cfg.Elasticsearch.Analyzer,
	})
}

// OpenCache connects the embedding cache. It returns nil when the cache is disabled.
func OpenCache(cfg config.CacheConfig) (*dbRedis.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,

		DialTimeout:  time.Duration(cfg.DialTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return store, nil
}

// Embeddings registers every configured model. Each model's chain is
// provider -> cache (optional) -> rate limit and batching -> instruction prefix;
// models of one provider share its rate limiter. cache may be nil.
func Embeddings(cfg *config.Config, cache *dbRedis.Store, logger *zap.Logger) (*embeddinguc.Registry, error) {
	ec := cfg.Embedding
	reg := embeddinguc.NewRegistry(ec.DefaultModel, ec.Dimensions, logger)
	limiters := make(map[string]*rate.Limiter)

	names := make([]string, 0, len(ec.Models))
	for name := range ec.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mc := ec.Models[name]
		model, err := buildModel(name, mc, cfg, cache, limiters, logger)
		if errors.Is(err, fastembed.ErrUnavailable) && name != ec.DefaultModel {
			logger.Warn("Local embedding model skipped", zap.String("name", name), zap.Error(err))
			continue
		}
		if err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("embedding model %s: %w", name, err)
		}
		if err := reg.Register(model); err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("embedding model %s: %w", name, err)
		}
		logger.Info("Embedding model registered",
			zap.String("name", name),
			zap.String("kind", mc.Kind),
			zap.String("model", mc.Model),
			zap.Int("dimensions", model.Dims),
		)
	}
	return reg, nil
}

func buildModel(
	name string,
	mc config.ModelConfig,
	cfg *config.Config,
	cache *dbRedis.Store,
	limiters map[string]*rate.Limiter,
	logger *zap.Logger,
) (embeddinguc.Model, error) {
	model := embeddinguc.Model{Name: name, Dims: mc.Dimensions}

	var base domain.Embedder
	instrumented := embeddinguc.InstrumentedConfig{Model: mc.Model}
	switch mc.Kind {
	case config.KindFastEmbed:
		fe, err := fastembed.New(fastembed.Config{Model: mc.Model, CacheDir: mc.CacheDir})
		if err != nil {
			return model, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
		}
		base, model.Closer, model.Provider = fe, fe, config.KindFastEmbed
		model.Dims = fe.Dimensions()
		instrumented.Provider = config.KindFastEmbed
		instrumented.MaxBatchSize = 256
	default:
		pc := cfg.Embedding.Providers[mc.Provider]
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      mc.Model,
			Dimensions: mc.Dimensions,
			Provider:   mc.Provider,
			Logger:     logger,
		})
		model.Provider = mc.Provider
		if _, ok := limiters[mc.Provider]; !ok {
			limiters[mc.Provider] = embeddinguc.NewLimiter(pc.RateLimitRPS, pc.Burst)
		}
		instrumented.Provider = mc.Provider
		instrumented.Limiter = limiters[mc.Provider]
		instrumented.MaxBatchSize = pc.MaxBatchSize
	}

	if cache != nil {
		base = embcache.New(base, cache, embcache.Config{
			KeyPrefix: cfg.Cache.KeyPrefix,
			Model:     mc.Model,
			Dims:      model.Dims,
			TTL:       time.Duration(cfg.Cache.TTLHours) * time.Hour,
		}, logger)
	}
	base = embeddinguc.NewInstrumentedEmbedder(base, instrumented, logger)

	model.Query = withInstruction(base, mc.QueryInstruction)
	model.Document = withInstruction(base, mc.DocumentInstruction)
	return model, nil
}

func withInstruction(e domain.Embedder, instruction string) domain.Embedder {
	if instruction == "" {
		return e
	}
	return domain.NewInstructionEmbedder(e, instruction)
}

// MatchConfig maps the match and tuning sections to the match service config.
func MatchConfig(cfg *config.Config) matchuc.Config {
	m, t := cfg.Match, cfg.Tuning

	limits := request.DefaultLimits()
	limits.DefaultTopK = m.DefaultTopK
	limits.MaxTopK = m.MaxTopK
	limits.MaxLabels = m.MaxLabels
	limits.DefaultModel = cfg.Embedding.DefaultModel
	if m.DefaultMinScore != nil {
		limits.DefaultMinScore = *m.DefaultMinScore
	}
	if parsed, err := method.Parse(m.DefaultMethod); err == nil {
		limits.DefaultMethod = parsed
	}

	tuning := matchuc.Tuning{
		ContentZHBoost:     t.ContentZHBoost,
		ContentENBoost:     t.ContentENBoost,
		ActivityNameBoost:  t.ActivityNameBoost,
		MinimumShouldMatch: t.MinimumShouldMatch,
		MaxExpansions:      t.MaxExpansions,
		LexicalField:       t.LexicalField,
		VectorOffset:       t.VectorOffset,
	}
	if t.TieBreaker != nil {
		tuning.TieBreaker = *t.TieBreaker
	}
	if t.Fuzziness != nil {
		tuning.Fuzziness = *t.Fuzziness
	}

	return matchuc.Config{
		Index:        cfg.Elasticsearch.Index,
		Workers:      m.Workers,
		LabelTimeout: time.Duration(m.LabelTimeoutSec) * time.Second,
		Limits:       limits,
		Tuning:       tuning,
	}
}

// IngestConfig maps the ingest section to the ingest service config.
func IngestConfig(cfg *config.Config) ingest.Config {
	in := cfg.Ingest
	return ingest.Config{
		BatchSize:  in.BatchSize,
		Workers:    in.Workers,
		Dims:       cfg.Embedding.Dimensions,
		IDStrategy: record.IDStrategy(in.IDStrategy),
		DataSource: in.DataSource,
		Version:    in.Version,
	}
}
