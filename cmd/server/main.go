// Package main implements the entry point for the DocForge API server,
// which generates multi-part DOCX document bundles and batch document runs
// through an LLM-backed task orchestration core.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/docforge/docforge-api/internal/config"
	"github.com/docforge/docforge-api/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.Setup(cfg.Server.LogLevel)
	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"model", cfg.LLM.ModelName,
		"bucket", cfg.ObjectStore.Bucket)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := app.run(ctx); err != nil {
		appLogger.Error("server exited with error", "error", err)
		app.cleanup()
		os.Exit(1)
	}

	app.cleanup()
	appLogger.Info("server shutdown completed")
}
