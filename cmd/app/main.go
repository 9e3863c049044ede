package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"invoice-agent/internal/adapters/cli"
	"invoice-agent/internal/bootstrap"
	"invoice-agent/internal/config"
	"invoice-agent/internal/credentials"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(load)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// load reads configuration and resolves terminal credentials: the stored
// tokens of --user when a database is configured, then the environment.
func load(ctx context.Context, cmd *cobra.Command) (*cli.Env, func(), error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	// stdout belongs to the command output (and to MCP framing)
	logger := bootstrap.NewLogger(cfg, os.Stderr, false)

	chain := credentials.Chain{}
	release := func() {}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		store, pool, err := bootstrap.Store(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if store == nil {
			return nil, nil, fmt.Errorf("--user requires DATABASE_URL")
		}
		release = pool.Close
		chain = append(chain, store.ForUser(user))
	}
	chain = append(chain, credentials.FromEnv())

	var provider credentials.Provider = chain
	if oauth := bootstrap.OAuth(cfg); oauth != nil {
		provider = credentials.Refreshing(chain, oauth, nil, nil)
	}

	return &cli.Env{
		Service:     bootstrap.Service(cfg, logger),
		Credentials: provider,
		Logger:      logger,
		Serve: func(ctx context.Context) error {
			return bootstrap.Serve(ctx, cfg, bootstrap.NewLogger(cfg, os.Stdout, true))
		},
	}, release, nil
}
