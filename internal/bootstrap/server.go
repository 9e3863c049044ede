package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	webAdapter "invoice-agent/internal/adapters/web"
	"invoice-agent/internal/config"
	"invoice-agent/internal/credentials"
)

// Serve runs the HTTP server until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireOpenAI(); err != nil {
		logger.Warn("chat turns will fail", "error", err)
	}

	store, pool, err := Store(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	} else {
		logger.Info("DATABASE_URL not set, tokens are kept in cookies only")
	}

	oauth := OAuth(cfg)
	if oauth == nil {
		logger.Warn("QuickBooks OAuth not configured, connect flow disabled")
	}
	if cfg.Server.JWTSecret == "" {
		logger.Info("JWT_SECRET not set, sessions are anonymous")
	}

	handler := webAdapter.NewHandler(Service(cfg, logger), WebConfig(cfg, oauth, store, logger))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// a turn may run for the full turn timeout before responding
		WriteTimeout: cfg.Server.TurnTimeout + 15*time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "model", cfg.OpenAI.Model, "environment", cfg.QuickBooks.Environment)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// WebConfig maps configuration onto the web adapter. Environment tokens are
// offered to anonymous requests only when EnvCredentials is set.
func WebConfig(cfg *config.Config, oauth *credentials.OAuth, store *credentials.Store, logger *slog.Logger) webAdapter.Config {
	wc := webAdapter.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		JWTSecret:      cfg.Server.JWTSecret,
		SecureCookies:  cfg.Server.SecureCookies,
		OAuth:          oauth,
		Store:          store,
		Logger:         logger,
	}
	if cfg.Server.EnvCredentials {
		logger.Warn("ALLOW_ENV_CREDENTIALS set, anonymous requests use the environment QuickBooks tokens")
		wc.Fallback = credentials.FromEnv()
	}
	return wc
}
