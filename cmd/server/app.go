package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/docforge/docforge-api/internal/config"
	"github.com/docforge/docforge-api/internal/platform/docx"
	"github.com/docforge/docforge-api/internal/platform/gemini"
	"github.com/docforge/docforge-api/internal/platform/objectstore"
	"github.com/docforge/docforge-api/internal/platform/postgres"
	"github.com/docforge/docforge-api/internal/scheduler"
	"github.com/docforge/docforge-api/internal/service"
)

// application holds the wired dependencies of the running server.
type application struct {
	config *config.Config
	logger *slog.Logger

	db        *sql.DB
	artifacts *objectstore.Store

	pipeline *scheduler.Pipeline
	runner   *scheduler.BatchRunner
	sweeper  *scheduler.Sweeper

	documents service.DocumentService
	batches   service.BatchService
}

// newApplication wires every layer of the server: database and migrations,
// the generation and artifact platforms, the orchestration core, and the
// services the HTTP handlers sit on. Startup recovery runs here, before any
// new work can be accepted.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	generator, err := gemini.NewGenerator(ctx, logger, cfg.LLM)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create content generator: %w", err)
	}

	artifacts, err := objectstore.New(ctx, cfg.ObjectStore, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	taskStore := postgres.NewDocumentTaskStore(db)
	batchStore := postgres.NewBatchStore(db)

	executors := service.NewExecutors(generator, docx.NewRenderer(), artifacts, logger)

	pipeline := scheduler.NewPipeline(taskStore, executors.Stage(),
		cfg.Scheduler.StageConcurrency, logger)

	registry := scheduler.NewRegistry()
	runner := scheduler.NewBatchRunner(batchStore, executors.Item(), registry,
		scheduler.BatchRunnerConfig{
			ItemConcurrency:   cfg.Scheduler.BatchConcurrency,
			MaxRunningBatches: cfg.Scheduler.MaxRunningBatches,
		}, logger)

	sweeper := scheduler.NewSweeper(taskStore, batchStore,
		scheduler.SweeperConfig{
			DocumentStaleAge: cfg.Scheduler.DocumentStaleAge,
			BatchStaleAge:    cfg.Scheduler.BatchStaleAge,
			Retention:        cfg.Scheduler.Retention,
			Interval:         cfg.Scheduler.SweepInterval,
		}, logger)

	// Rows left behind by a crash must be settled before the server starts
	// accepting work, so that clients never observe a stuck non-terminal
	// row from a previous process.
	if err := sweeper.RecoverAtStartup(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("startup recovery failed: %w", err)
	}

	return &application{
		config:    cfg,
		logger:    logger,
		db:        db,
		artifacts: artifacts,
		pipeline:  pipeline,
		runner:    runner,
		sweeper:   sweeper,
		documents: service.NewDocumentService(db, taskStore, pipeline, logger),
		batches:   service.NewBatchService(db, batchStore, runner, logger),
	}, nil
}

// run starts the periodic sweep and serves HTTP until ctx is canceled or
// the server fails.
func (app *application) run(ctx context.Context) error {
	app.sweeper.Start()
	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup drains in-flight work and releases resources. Dispatched
// pipelines and batches are waited out so their final statuses reach the
// database before the connection pool closes.
func (app *application) cleanup() {
	app.sweeper.Stop()
	app.pipeline.Wait()
	app.runner.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}
