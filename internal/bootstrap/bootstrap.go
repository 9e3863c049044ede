// Package bootstrap assembles the application service and its collaborators
// from configuration. Both binaries share it.
package bootstrap

import (
	"context"
	"io"
	"log/slog"

	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/config"
	"invoice-agent/internal/core"
	"invoice-agent/internal/credentials"
	"invoice-agent/internal/db"
	"invoice-agent/internal/quickbooks"
	"invoice-agent/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewLogger returns a slog logger at cfg's level. JSON output is used for
// the server; the terminal commands log as text.
func NewLogger(cfg *config.Config, w io.Writer, json bool) *slog.Logger {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Gateways returns a factory building one QuickBooks client per credential set.
func Gateways(cfg *config.Config, logger *slog.Logger) app.GatewayFactory {
	baseURL := cfg.QuickBooks.BaseURL
	if baseURL == "" {
		baseURL = quickbooks.BaseURLFor(cfg.QuickBooks.Environment)
	}
	return func(creds *credentials.Credentials) (core.Gateway, error) {
		c, err := quickbooks.New(creds,
			quickbooks.WithBaseURL(baseURL),
			quickbooks.WithMinorVersion(cfg.QuickBooks.MinorVersion),
			quickbooks.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Service wires the model, driver and gateway factory into an
// ApplicationService. The model is built even without an API key so that
// tool-only commands work; model calls then fail at request time.
func Service(cfg *config.Config, logger *slog.Logger) app.ApplicationService {
	model := ai.NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	driver := ai.NewDriver(model, "", logger)
	return app.NewAppService(driver, Gateways(cfg, logger), app.Options{
		TurnTimeout: cfg.Server.TurnTimeout,
		Logger:      logger,
	})
}

// OAuth returns the connect flow, or nil when client credentials are absent.
func OAuth(cfg *config.Config) *credentials.OAuth {
	if !cfg.OAuthConfigured() {
		return nil
	}
	o, err := credentials.NewOAuth(cfg.QuickBooks.ClientID, cfg.QuickBooks.ClientSecret, cfg.QuickBooks.RedirectURI, nil)
	if err != nil {
		return nil
	}
	return o
}

// Store opens the database, applies the embedded migrations and returns the
// token store. It returns nils when no database is configured.
func Store(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*credentials.Store, *pgxpool.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, nil, nil
	}
	pool, err := db.NewPool(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return credentials.NewStore(pool), pool, nil
}
