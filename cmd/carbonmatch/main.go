package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/climateseal/carbonmatch/internal/bootstrap"
	"github.com/climateseal/carbonmatch/internal/config"
	logpkg "github.com/climateseal/carbonmatch/internal/logger"
	"github.com/climateseal/carbonmatch/internal/metrics"
	chiTransport "github.com/climateseal/carbonmatch/internal/transport/chi"
	healthuc "github.com/climateseal/carbonmatch/internal/usecase/health"
	matchuc "github.com/climateseal/carbonmatch/internal/usecase/match"
	"github.com/climateseal/carbonmatch/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting carbonmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("es_driver", cfg.Elasticsearch.Driver),
		zap.Strings("es_addrs", cfg.Elasticsearch.Addrs),
		zap.String("index", cfg.Elasticsearch.Index),
	)

	metrics.Register()

	store, err := bootstrap.OpenStore(cfg.Elasticsearch)
	if err != nil {
		logger.Fatal("Failed to create search backend", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	readiness := time.Duration(cfg.Elasticsearch.ReadinessTimeoutSec) * time.Second
	if err := store.WaitForReady(ctx, readiness); err != nil {
		// Labels fail individually until the backend comes back; /health reports it.
		logger.Warn("Search backend not ready", zap.Error(err))
	} else {
		logger.Info("Connected to search backend")
	}

	cache, err := bootstrap.OpenCache(cfg.Cache)
	if err != nil {
		logger.Fatal("Failed to create embedding cache", zap.Error(err))
	}
	if cache != nil {
		defer cache.Close()
	}

	models, err := bootstrap.Embeddings(&cfg, cache, logger)
	if err != nil {
		logger.Fatal("Failed to build embedding models", zap.Error(err))
	}
	defer func() { _ = models.Close() }()

	catalog := bootstrap.Catalog(store, &cfg, "")
	matchSvc := matchuc.New(catalog, models, bootstrap.MatchConfig(&cfg))
	healthSvc := healthuc.New(store, models, healthuc.DefaultTimeout)
	if cache != nil {
		healthSvc.WithCache(cache)
	}

	server := chiTransport.NewServer(matchSvc, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
