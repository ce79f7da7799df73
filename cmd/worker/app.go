package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"djeworker/internal/config"
	"djeworker/internal/crawler"
	"djeworker/internal/logger"
	"djeworker/internal/models"
	"djeworker/internal/normalizer"
	"djeworker/internal/parser"
	"djeworker/internal/pipeline"
	"djeworker/internal/scheduler"
	"djeworker/internal/storage"
	"djeworker/internal/telemetry"
	"djeworker/internal/validator"
)

// app holds what every subcommand shares: configuration, logging, telemetry
// and, once opened, the store.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *telemetry.Metrics
	tracing *telemetry.Tracing
	db      *storage.DB
	repo    *storage.Repository
	store   *storage.RetryingStore
}

// loadConfig reads the config file. A missing default file is not an error:
// defaults plus environment overrides are used instead.
func loadConfig(path string) (*config.Config, error) {
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) && path == config.DefaultConfigPath {
		cfg := config.Default()
		config.ApplyEnv(cfg)

		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}

		return cfg, nil
	}

	return config.LoadConfig(path)
}

func newApp(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}

	log := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	tracing, err := telemetry.SetupTracing(ctx, &cfg.Telemetry)
	if err != nil {
		log.Warn("Tracing disabled", "error", err)

		tracing = telemetry.NoopTracing()
	}

	return &app{
		cfg:     cfg,
		log:     log,
		metrics: telemetry.NewMetrics(),
		tracing: tracing,
	}, nil
}

// openStore connects to the configured database and wraps it for retries.
func (a *app) openStore(ctx context.Context) error {
	db, err := storage.Open(ctx, &a.cfg.Storage, a.log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	a.db = db
	a.repo = storage.NewRepository(db, a.cfg.Pipeline.MaxTextLength, a.log)
	a.store = storage.NewRetryingStore(a.repo, a.cfg.Storage.RetryAttempts, a.cfg.Storage.GetRetryDelay(), a.log)

	return nil
}

func (a *app) close(ctx context.Context) {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := a.tracing.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("Failed to flush traces", "error", err)
	}
}

// newOrchestrator wires the pipeline over the client's page source.
func (a *app) newOrchestrator(client *crawler.Client, sink pipeline.Sink, w scheduler.Window) (*pipeline.Orchestrator, error) {
	anchors, err := parser.NewAnchors(a.cfg.Pipeline.StartAnchor, a.cfg.Pipeline.EndAnchor)
	if err != nil {
		return nil, err
	}

	keywords, err := validator.NewKeywordValidator(a.cfg.Pipeline.Keywords)
	if err != nil {
		return nil, err
	}

	processor := normalizer.NewProcessorWithOptions(
		parser.NewExtractor(a.log),
		a.cfg.Pipeline.Defendant,
		a.cfg.Pipeline.MaxTextLength,
	)

	return pipeline.NewOrchestrator(pipeline.Components{
		Source:    client.Source(),
		Anchors:   anchors,
		Processor: processor,
		Keywords:  keywords,
		Sink:      sink,
	}, a.cfg.Pipeline.MaxContinuationPages, a.log,
		pipeline.WithMetrics(a.metrics),
		pipeline.WithTracer(a.tracing.Tracer()),
		pipeline.WithFilingDate(windowFilingDate(w)),
	), nil
}

// job returns the scheduler job: search the window on the DJE and run the
// pipeline over the hits, or walk every page of a file source.
func (a *app) job() scheduler.Job {
	return func(ctx context.Context, w scheduler.Window) error {
		report, err := a.runWindow(ctx, w)
		if report != nil {
			a.log.Info("📊 " + report.String())
		}

		return err
	}
}

func (a *app) runWindow(ctx context.Context, w scheduler.Window) (*pipeline.Report, error) {
	client, err := crawler.NewClient(&a.cfg.Source, a.log)
	if err != nil {
		return nil, fmt.Errorf("crawler: %w", err)
	}
	defer client.Close()

	orch, err := a.newOrchestrator(client, a.store, w)
	if err != nil {
		return nil, err
	}

	if files := client.Files(); files != nil {
		a.log.Info("🚀 Processing local pages", "directory", a.cfg.Source.Directory, "pages", files.Len())

		return orch.Run(ctx, files.First())
	}

	if err := client.Open(ctx); err != nil {
		return nil, err
	}

	a.log.Info("🚀 Searching DJE", "window", w.String())

	hits, err := client.Search(ctx, w.From, w.To)
	client.LogAttemptSummary(a.log)

	if err != nil {
		return nil, fmt.Errorf("search %s: %w", w, err)
	}

	a.log.Info("Search finished", "hits", len(hits))

	locs := make([]models.Locator, 0, len(hits))
	for _, h := range hits {
		locs = append(locs, h.Locator)
	}

	return orch.RunHits(ctx, locs)
}

// windowFilingDate dates the records of a single-day window with that day, so
// running the same window again later finds them by natural key. Wider
// windows fall back to the current day and rely on the content hash.
func windowFilingDate(w scheduler.Window) func() time.Time {
	if w.From.IsZero() || w.Days() != 1 {
		return time.Now
	}

	day := time.Date(w.From.Year(), w.From.Month(), w.From.Day(), 0, 0, 0, 0, w.From.Location())

	return func() time.Time { return day }
}

// newScheduler builds the scheduler, locking through Redis when configured.
func (a *app) newScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	var locker scheduler.Locker

	if a.cfg.Schedule.Redis.Address != "" {
		client, err := scheduler.Connect(ctx, &a.cfg.Schedule.Redis)
		if err != nil {
			return nil, err
		}

		locker = scheduler.NewRedisLocker(client)
	}

	return scheduler.New(
		&a.cfg.Schedule,
		a.cfg.Pipeline.FirstRunLookbackDays,
		a.store,
		locker,
		a.job(),
		a.log,
		scheduler.WithIdleTimeout(a.cfg.Storage.GetIdleTxTimeout()),
	)
}

// serveMetrics exposes /metrics on the telemetry address until ctx ends. An
// empty address disables it.
func (a *app) serveMetrics(ctx context.Context) error {
	addr := a.cfg.Telemetry.MetricsAddress
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	a.log.Info("Metrics listening", "address", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
