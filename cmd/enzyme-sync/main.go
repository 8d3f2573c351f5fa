package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enzyme/client/internal/app"
	"github.com/enzyme/client/internal/config"
	"github.com/enzyme/client/internal/logging"
)

var version = "dev"

func main() {
	// Setup CLI flags
	flags := config.SetupFlags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	configPath, _ := flags.GetString("config")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logging.Setup(cfg.Log, cfg.Telemetry.Enabled)

	if err := run(cfg); err != nil {
		slog.Error("sync stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("sync stopped")
}

func run(cfg *config.Config) error {
	application, err := app.New(cfg, version)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := application.Start(ctx)
	if runErr == nil {
		slog.Info("received shutdown signal")
	}

	// Give the stream and status server time to close gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
	return runErr
}
