// Package main provides the snapshot worker entry point.
// The worker snapshots every active wallet once per interval, then evaluates alerts.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardano-portfolio/internal/app"
	"github.com/cardano-portfolio/internal/config"
	apperrors "github.com/cardano-portfolio/internal/errors"
	"github.com/cardano-portfolio/internal/logging"
	"github.com/cardano-portfolio/internal/retry"
	"github.com/cardano-portfolio/internal/worker"
)

func main() {
	fmt.Println("Portfolio Snapshot Worker")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)
	logger := logging.GetGlobalLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer a.Close()

	retryCfg := retry.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Snapshot.MaxRetries + 1
	retryCfg.InitialDelay = cfg.Snapshot.RetryDelay
	retryCfg.Retryable = apperrors.IsRetryable

	w, err := worker.NewSnapshotWorker(a.Snapshots, a.Alerts, worker.SnapshotWorkerConfig{
		PageSize:  cfg.Snapshot.PageSize,
		PageDelay: cfg.Snapshot.PageDelay,
		Interval:  cfg.Snapshot.Interval,
		Retry:     retryCfg,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create snapshot worker")
	}

	// Check for one-time run mode
	if len(os.Args) > 1 && os.Args[1] == "run" {
		logger.Info("Running snapshot immediately...")
		result, err := w.RunOnce(ctx)
		if err != nil {
			logger.WithError(err).Fatal("Snapshot cycle failed")
		}
		logger.WithFields(map[string]interface{}{
			"bucket":      result.Bucket.Format(time.RFC3339),
			"processed":   result.Processed,
			"alerts_sent": result.AlertsSent,
			"errors":      len(result.Errors),
		}).Info("Snapshot complete")
		return
	}

	// Start scheduler
	go w.Start(ctx)

	logger.WithField("interval", cfg.Snapshot.Interval.String()).Info("Snapshot worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down snapshot worker...")
	cancel()
}
