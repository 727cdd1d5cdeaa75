package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// ---- Identity Commands ----

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var origin string
	cmd := &cobra.Command{
		Use:   "show <record-id>",
		Short: "Restore and print a persisted identity",
		Long: `Restore the identity stored under a record id and print it.

The login is re-run as it would be for a resumed request, so a record whose
owner lost access is shown degraded: not logged in and read-only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}
			path := "/api/v1/identities/" + args[0]
			if origin != "" {
				path += "?origin=" + url.QueryEscape(origin)
			}
			c := rootOpts.client(cmd)
			resp, err := c.get(cmd.Context(), path)
			if err != nil {
				return err
			}
			return c.prettyPrint(resp)
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "client address to restore the identity for")
	return cmd
}

// NewGCCommand creates the gc command.
func NewGCCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Delete identity records nothing references any more",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := rootOpts.client(cmd)
			resp, err := c.post(cmd.Context(), "/api/v1/gc", nil)
			if err != nil {
				return err
			}
			return c.prettyPrint(resp)
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print record cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := rootOpts.client(cmd)
			resp, err := c.get(cmd.Context(), "/api/v1/stats")
			if err != nil {
				return err
			}
			return c.prettyPrint(resp)
		},
	}
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the service and its backends are up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := rootOpts.client(cmd)
			if _, err := c.get(cmd.Context(), "/health"); err != nil {
				return err
			}
			resp, err := c.get(cmd.Context(), "/ready")
			if err != nil {
				return err
			}
			return c.prettyPrint(resp)
		},
	}
}
