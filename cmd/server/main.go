package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"kycverify/internal/platform/config"
	"kycverify/internal/platform/logger"
)

// main loads configuration, wires the application and runs it until SIGINT
// or SIGTERM. Business logic lives in internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment, cfg.LogLevel)
	if cfg.LoadedDotenv {
		log.Info("loaded .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := app.run(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}
