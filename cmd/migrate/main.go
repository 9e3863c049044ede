// migrate applies the embedded schema migrations to DATABASE_URL. The server
// runs the same step at start; this is for deploy pipelines.
//
// Usage: go run ./cmd/migrate
package main

import (
	"context"
	"log/slog"
	"os"

	"invoice-agent/internal/config"
	"invoice-agent/internal/db"
	"invoice-agent/migrations"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		logger.Error("DATABASE_URL is not set")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Error("connect", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS, logger); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}
	logger.Info("all migrations processed")
}
