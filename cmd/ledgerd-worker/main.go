package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dailyledger/internal/amqp"
	"dailyledger/internal/config"
	"dailyledger/internal/log"
	"dailyledger/internal/services"
	"dailyledger/internal/storage"
	"dailyledger/internal/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting ledgerd-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	stats := services.NewStatsService(repo, cfg.FreshnessWindow, cfg.RecomputeTimeout)
	recomputeWorker := worker.NewRecomputeWorker(stats, repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Refresh every tenant once at startup to recover from missed messages
	// during downtime.
	if err := recomputeWorker.SweepStaleMonthly(ctx); err != nil {
		logger.Error("Startup sweep failed", log.FieldError, err)
	}

	go func() {
		err := amqpClient.ConsumeInvalidations(ctx, func(msg *amqp.InvalidationMessage) error {
			handleCtx, handleCancel := context.WithTimeout(ctx, cfg.RecomputeTimeout)
			defer handleCancel()
			return recomputeWorker.HandleInvalidation(handleCtx, msg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
		cancel()
	}()

	go func() {
		if err := recomputeWorker.RunSweepLoop(ctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Sweep loop failed", log.FieldError, err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()
	time.Sleep(2 * time.Second) // let in-flight recomputes finish
	logger.Info("Worker shutdown complete")
}
