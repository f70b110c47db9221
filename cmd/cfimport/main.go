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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/climateseal/carbonmatch/internal/bootstrap"
	"github.com/climateseal/carbonmatch/internal/cli"
	"github.com/climateseal/carbonmatch/internal/config"
	logpkg "github.com/climateseal/carbonmatch/internal/logger"
	"github.com/climateseal/carbonmatch/internal/metrics"
	"github.com/climateseal/carbonmatch/internal/normalize"
	"github.com/climateseal/carbonmatch/internal/source"
	"github.com/climateseal/carbonmatch/internal/usecase/ingest"
)

type importFlags struct {
	configPath  string
	verbose     bool
	sheet       string
	headerRow   int
	batchSize   int
	workers     int
	index       string
	idStrategy  string
	dataSource  string
	version     string
	metricsAddr string
	lockTimeout time.Duration
}

func newRootCmd() *cobra.Command {
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:          "cfimport <path>",
		Short:        "Import an emission factor table into the catalog index",
		SilenceUsage: true,
		Args:         cobra.ExactArgs(1),
		Long: `cfimport reads an emission factor export, embeds every row and bulk-uploads
the documents into the catalog index, creating the index when it is absent.

Supported formats: .xlsx, .csv, .tsv, .txt (tab-separated), .parquet.
Elasticsearch and provider credentials come from the config file and its
${VAR} references (ES_ENDPOINT, ES_USERNAME, ES_PASSWORD, ...).

Examples:
  cfimport ecoinvent.xlsx --sheet "Activity Overview" --header-row 2
  cfimport factors.csv --index carbon_factor_v2 --id-strategy content
  ENV=prod cfimport factors.parquet --workers 8 --metrics-addr :9091`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "config file (default: config/$ENV.yaml)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fl.StringVar(&f.sheet, "sheet", "", "XLSX sheet name or 0-based index")
	fl.IntVar(&f.headerRow, "header-row", 0, "1-based row holding column names")
	fl.IntVar(&f.batchSize, "batch-size", 0, "records per bulk request")
	fl.IntVar(&f.workers, "workers", 0, "concurrent embed+upload workers")
	fl.StringVar(&f.index, "index", "", "target index")
	fl.StringVar(&f.idStrategy, "id-strategy", "", "document ids: row or content")
	fl.StringVar(&f.dataSource, "data-source", "", "provenance data source label")
	fl.StringVar(&f.version, "version", "", "provenance dataset version")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	fl.DurationVar(&f.lockTimeout, "lock-timeout", 5*time.Second, "wait this long for a concurrent import of the same index")

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// applyFlags overrides config values with explicitly set flags.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f *importFlags) {
	fl := cmd.Flags()
	in := &cfg.Ingest
	if fl.Changed("sheet") {
		in.Sheet = f.sheet
	}
	if fl.Changed("header-row") {
		in.HeaderRow = f.headerRow
	}
	if fl.Changed("batch-size") {
		in.BatchSize = f.batchSize
	}
	if fl.Changed("workers") {
		in.Workers = f.workers
	}
	if fl.Changed("id-strategy") {
		in.IDStrategy = f.idStrategy
	}
	if fl.Changed("data-source") {
		in.DataSource = f.dataSource
	}
	if fl.Changed("version") {
		in.Version = f.version
	}
	if fl.Changed("index") {
		cfg.Elasticsearch.Index = f.index
	}
}

func runImport(cmd *cobra.Command, path string, f *importFlags) error {
	cfg, err := cli.LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg, f)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	logger := logpkg.NewCLI(f.verbose)
	defer func() { _ = logger.Sync() }()
	p := cli.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	metrics.Register()
	if f.metricsAddr != "" {
		srv := serveMetrics(f.metricsAddr, logger)
		defer func() { _ = srv.Close() }()
	}

	unlock, err := cli.AcquireLock(cli.LockPath(cfg.Ingest.LockDir, cfg.Elasticsearch.Index), f.lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	src, err := source.Open(path, source.Options{Sheet: cfg.Ingest.Sheet, HeaderRow: cfg.Ingest.HeaderRow})
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = src.Close() }()

	store, err := bootstrap.OpenStore(cfg.Elasticsearch)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Elasticsearch.ReadinessTimeoutSec)*time.Second); err != nil {
		return fmt.Errorf("search backend not ready: %w", err)
	}

	cache, err := bootstrap.OpenCache(cfg.Cache)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	models, err := bootstrap.Embeddings(&cfg, cache, logger)
	if err != nil {
		return err
	}
	defer func() { _ = models.Close() }()
	embedder, model, err := models.Document("")
	if err != nil {
		return err
	}

	catalog := bootstrap.Catalog(store, &cfg, "")
	p.Info("importing %s into %s (model %s)", path, catalog.Index(), model)

	svc := ingest.New(catalog, embedder, normalize.New(cfg.Ingest.ZHNameField), bootstrap.IngestConfig(&cfg), logger).
		WithProgress(p.Chunk)
	res, err := svc.Run(ctx, src)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	st := res.Stats
	p.Info("run %s: %d rows, %d accepted, %d empty, %d without text, %d duplicates, %s",
		res.RunID, st.Rows, st.Accepted, st.SkippedEmpty, st.SkippedNoText, st.Duplicates, res.Elapsed.Round(time.Millisecond))
	p.Summary(res.Report)

	if err := catalog.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	n, err := catalog.Count(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	p.OK("index %s holds %d documents", catalog.Index(), n)

	if failed := res.Report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d chunks failed", failed, len(res.Report.Chunks))
	}
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))
	return srv
}
