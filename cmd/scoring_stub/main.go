package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fraud-scoring-pipeline/internal/config"
	"github.com/fraud-scoring-pipeline/internal/logger"
	"github.com/fraud-scoring-pipeline/internal/scoringstub"
)

func main() {
	cfg, err := config.LoadConfig("scoring_stub")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	server := scoringstub.NewServer(log, cfg)

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting scoring stub", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("Server error", "error", err)
		os.Exit(1)
	case sig := <-quit:
		log.Info("Shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop server gracefully", "error", err)
		os.Exit(1)
	}

	log.Info("Scoring stub stopped")
}
