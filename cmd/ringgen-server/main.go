// Package main provides the HTTP server for ring generation.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nemoooooooooo/ring-generator-service-tools/internal/artifact"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/blender"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/config"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/jobs"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/llm"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/metrics"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/pipeline"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/prompts"
	"github.com/nemoooooooooo/ring-generator-service-tools/internal/server"
)

func main() {
	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := closeLog(); err != nil {
			logger.Error("failed to close log file", "error", err)
		}
	}()

	logger.Info("starting ringgen-server",
		"host", cfg.Host, "port", cfg.Port,
		"workers", cfg.MaxConcurrentJobs, "queue_size", cfg.MaxQueueSize)

	systemPrompt, err := prompts.LoadMaster(cfg.MasterPromptPath)
	if err != nil {
		logger.Error("failed to load master prompt", "path", cfg.MasterPromptPath, "error", err)
		os.Exit(1)
	}

	pricing, err := llm.LoadPricing(cfg.PricingPath)
	if err != nil {
		logger.Error("failed to load pricing table", "path", cfg.PricingPath, "error", err)
		os.Exit(1)
	}

	runner := blender.NewRunner(cfg.BlenderExecutable, cfg.BlenderTimeout, logger)
	if !runner.Available() {
		logger.Warn("blender executable not found, generation jobs will fail",
			"executable", cfg.BlenderExecutable)
	}

	collector := metrics.NewCollector()
	pool := llm.NewPool(cfg, pricing, logger)
	store := artifact.NewStore(cfg.ArtifactsDir, logger)
	pipe := pipeline.New(cfg, pool, runner, store, collector, systemPrompt, logger)

	manager := jobs.NewManager(pipe, jobs.Options{
		Workers:         cfg.MaxConcurrentJobs,
		QueueSize:       cfg.MaxQueueSize,
		FinishedTTL:     cfg.FinishedJobTTL,
		CleanupInterval: cfg.CleanupInterval,
		MaxJobRecords:   cfg.MaxJobRecords,
	}, logger)
	manager.Start()

	srv := server.New(cfg, manager, collector, runner.Available(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("job manager shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
