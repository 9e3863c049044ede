// Package cli is the cobra command tree for the terminal binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"invoice-agent/internal/adapters/mcpserver"
	"invoice-agent/internal/adapters/repl"
	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/core"
	"invoice-agent/internal/credentials"

	"github.com/spf13/cobra"
)

// Env is what commands need at run time.
type Env struct {
	Service     app.ApplicationService
	Credentials credentials.Provider
	Logger      *slog.Logger
	// Serve runs the HTTP server until ctx is done.
	Serve func(ctx context.Context) error
}

// Loader builds the Env once flags are parsed. The returned func releases
// any resources it opened.
type Loader func(ctx context.Context, cmd *cobra.Command) (*Env, func(), error)

// NewRootCommand returns the command tree. Without a subcommand it starts
// the interactive session.
func NewRootCommand(load Loader) *cobra.Command {
	root := &cobra.Command{
		Use:           "invoice-agent",
		Short:         "Manage QuickBooks invoices by chatting",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          withEnv(load, runSession),
	}
	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file (default: $CONFIG_FILE)")
	root.PersistentFlags().String("user", "", "load QuickBooks tokens stored for this user id")

	root.AddCommand(&cobra.Command{
		Use:   "repl",
		Short: "Start the interactive session",
		RunE:  withEnv(load, runSession),
	})
	root.AddCommand(serveCmd(load))
	root.AddCommand(chatCmd(load))
	root.AddCommand(classifyCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(callCmd(load))
	root.AddCommand(companyCmd(load))
	root.AddCommand(mcpCmd(load))
	return root
}

func withEnv(load Loader, run func(cmd *cobra.Command, env *Env, creds *credentials.Credentials, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, release, err := load(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		if release != nil {
			defer release()
		}
		var creds *credentials.Credentials
		if env.Credentials != nil {
			if creds, err = env.Credentials.Credentials(cmd.Context()); err != nil {
				return fmt.Errorf("load credentials: %w", err)
			}
		}
		return run(cmd, env, creds, args)
	}
}

func runSession(cmd *cobra.Command, env *Env, creds *credentials.Credentials, _ []string) error {
	return repl.NewSession(env.Service, creds, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
}

func serveCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and chat page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, release, err := load(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			if release != nil {
				defer release()
			}
			if env.Serve == nil {
				return errors.New("serve is not available in this build")
			}
			return env.Serve(cmd.Context())
		},
	}
}

func chatCmd(load Loader) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Run one chat turn and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: withEnv(load, func(cmd *cobra.Command, env *Env, creds *credentials.Credentials, args []string) error {
			res, err := env.Service.ProcessTurn(cmd.Context(), app.TurnRequest{
				Message:     strings.Join(args, " "),
				Credentials: creds,
			})
			if err != nil {
				if errors.Is(err, core.ErrNotAuthenticated) {
					return fmt.Errorf("%w: set %s and %s", err, credentials.EnvAccessToken, credentials.EnvRealmID)
				}
				return err
			}
			if asJSON {
				return encode(cmd.OutOrStdout(), res.Result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Result.Text)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full normalized result")
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <message>",
		Short: "Show how a message would be routed, without calling the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return encode(cmd.OutOrStdout(), ai.Classify(strings.Join(args, " ")))
		},
	}
}

func toolsCmd() *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the invoice tools offered to the model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs := ai.NewInvoiceTools(nil).All()
			if schema {
				return encode(cmd.OutOrStdout(), defs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDESCRIPTION")
			for _, d := range defs {
				fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "print names, descriptions and input schemas as JSON")
	return cmd
}

func callCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Execute one tool directly and print its structured result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withEnv(load, func(cmd *cobra.Command, env *Env, creds *credentials.Credentials, args []string) error {
			tools, err := env.Service.ToolsFor(creds)
			if err != nil {
				return err
			}
			raw := json.RawMessage(`{}`)
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
			}
			result := tools.Execute(cmd.Context(), args[0], raw)
			if err := encode(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if result.Failed() {
				return fmt.Errorf("%s failed: %s", args[0], result.Error)
			}
			return nil
		}),
	}
}

func companyCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "company",
		Short: "Show the connected QuickBooks company",
		RunE: withEnv(load, func(cmd *cobra.Command, env *Env, creds *credentials.Credentials, _ []string) error {
			info, err := env.Service.CompanyInfo(cmd.Context(), creds)
			if err != nil {
				return err
			}
			return encode(cmd.OutOrStdout(), info)
		}),
	}
}

func mcpCmd(load Loader) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the invoice tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, release, err := load(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			if release != nil {
				defer release()
			}
			env.Logger.Info("starting MCP server")
			return mcpserver.Serve(cmd.Context(), toolSource(env), env.Logger)
		},
	}
}

// toolSource resolves credentials on every call, so a refreshing provider
// keeps a long-running server authorized.
func toolSource(env *Env) mcpserver.ToolSource {
	return func(ctx context.Context) (*ai.ToolRegistry, error) {
		var creds *credentials.Credentials
		if env.Credentials != nil {
			var err error
			if creds, err = env.Credentials.Credentials(ctx); err != nil {
				return nil, fmt.Errorf("load credentials: %w", err)
			}
		}
		return env.Service.ToolsFor(creds)
	}
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
