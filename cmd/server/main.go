package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"invoice-agent/internal/bootstrap"
	"invoice-agent/internal/config"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger(cfg, os.Stdout, true)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Serve(ctx, cfg, logger); err != nil {
		logger.Error("server", "error", err)
		os.Exit(1)
	}
}
