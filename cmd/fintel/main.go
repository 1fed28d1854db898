package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintel/internal/amqp"
	"fintel/internal/cache"
	"fintel/internal/config"
	apphttp "fintel/internal/http"
	"fintel/internal/llm"
	applog "fintel/internal/log"
	"fintel/internal/services"
	"fintel/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Level: slog.LevelInfo, Component: "fintel"})
	applog.SetDefault(logger)

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

	// The broker is optional: without it reports still work, narrations
	// are just not pre-warmed.
	var publisher apphttp.ReportPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without report events", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	var narrator llm.Narrator
	if cfg.LLMEnabled {
		narrator = llm.NewGeminiNarrator(llm.Options{Model: cfg.LLMModel, MaxRPM: cfg.LLMMaxRPM})
		logger.Info("LLM narration enabled", "model", cfg.LLMModel, "max_rpm", cfg.LLMMaxRPM)
	} else {
		logger.Info("LLM narration disabled")
	}

	narrationCache := cache.New[*llm.Narration](cfg.NarrationCacheSize, cfg.NarrationCacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(narrationCache)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	reports := services.NewReportService(repo, logger)
	narrations := services.NewNarrationService(repo, narrator, narrationCache, logger)

	srv := apphttp.NewServer(":"+cfg.Port, cfg.AgentAPIKey, reports, narrations, publisher)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting fintel server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
