// Package main provides the API server entry point for the portfolio service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cardano-portfolio/internal/api"
	"github.com/cardano-portfolio/internal/app"
	"github.com/cardano-portfolio/internal/config"
	"github.com/cardano-portfolio/internal/logging"
)

func main() {
	fmt.Println("Cardano Portfolio API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer a.Close()

	if cfg.Server.APIToken == "" {
		logger.Warn("API_TOKEN is empty; pipeline endpoints are unauthenticated")
	}

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
		APIToken:          cfg.Server.APIToken,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		DefaultPageSize:   cfg.Snapshot.PageSize,
	}

	server := api.NewServer(serverConfig, a.Wallets, a.Portfolio, a.Snapshots, a.Alerts)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
