package main

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	URL    string
	Token  string
	DBType string
	DSN    string
}

// NewRootCommand creates the root command of the srmgate admin CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "srmgate-cli",
		Short: "srmgate identity administration",
		Long: `Inspect persisted identities, trigger garbage collection and manage the
accounts principals are mapped to.

Identity commands talk to a running srmgate over its admin API; account
commands open the database directly.`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.URL, "url", getEnv("SRMGATE_URL", "http://localhost:8080"), "admin API base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", getEnv("SRMGATE_TOKEN", ""), "admin API bearer token")
	cmd.PersistentFlags().StringVar(&opts.DBType, "db-type", getEnv("DB_TYPE", "sqlite"), "database type (sqlite|postgres|mysql)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", getEnv("DSN", "srmgate.db"), "database connection string")

	// Add subcommands
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewGCCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewAccountCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func (o *RootOptions) client(cmd *cobra.Command) *CLI {
	return &CLI{
		BaseURL: o.URL,
		Token:   o.Token,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Out:     cmd.OutOrStdout(),
	}
}
