package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fintel/internal/amqp"
	"fintel/internal/cache"
	"fintel/internal/config"
	"fintel/internal/llm"
	applog "fintel/internal/log"
	"fintel/internal/services"
	"fintel/internal/storage"
	"fintel/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: slog.LevelInfo, Component: "fintel-worker"})
	applog.SetDefault(logger)

	logger.Info("Starting fintel-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	var narrator llm.Narrator
	if cfg.LLMEnabled {
		narrator = llm.NewGeminiNarrator(llm.Options{Model: cfg.LLMModel, MaxRPM: cfg.LLMMaxRPM})
		logger.Info("LLM narration enabled", "model", cfg.LLMModel, "max_rpm", cfg.LLMMaxRPM)
	} else {
		// Without a narrator the worker still prunes, and messages ack
		// cleanly instead of requeueing forever.
		logger.Info("LLM narration disabled, worker will only prune")
	}

	narrationCache := cache.New[*llm.Narration](cfg.NarrationCacheSize, cfg.NarrationCacheTTL)
	reports := services.NewReportService(repo, logger)
	narrations := services.NewNarrationService(repo, narrator, narrationCache, logger)
	narrationWorker := worker.NewNarrationWorker(reports, narrations, repo, cfg.NarrationMaxAge, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeReportGenerated(gctx, func(msg *amqp.ReportGeneratedMessage) error {
			return narrationWorker.HandleReportMessage(gctx, msg)
		})
	})

	g.Go(func() error {
		narrationWorker.RunPruneLoop(gctx, cfg.PruneInterval)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete")
}
