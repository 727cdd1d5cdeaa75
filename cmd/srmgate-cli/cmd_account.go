package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srmgate/srmgate/core/login"
	"github.com/srmgate/srmgate/core/principal"
	"github.com/srmgate/srmgate/kgorm"
)

// ---- Account Commands ----

// NewAccountCommand creates the account command group.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage local accounts and principal mappings",
	}
	cmd.AddCommand(newAccountAddCommand(rootOpts))
	cmd.AddCommand(newAccountMapCommand(rootOpts))
	cmd.AddCommand(newAccountUnmapCommand(rootOpts))
	cmd.AddCommand(newAccountListCommand(rootOpts))
	return cmd
}

// withAccounts opens the database for the duration of fn.
func (o *RootOptions) withAccounts(fn func(*kgorm.AccountRepository) error) error {
	repo, err := kgorm.Open(o.DBType, o.DSN, nil, false)
	if err != nil {
		return err
	}
	if sqlDB, err := repo.DB().DB(); err == nil {
		defer sqlDB.Close()
	}
	return fn(repo.Accounts())
}

func newAccountAddCommand(rootOpts *RootOptions) *cobra.Command {
	a := &login.Account{}
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create or replace an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Username = args[0]
			return rootOpts.withAccounts(func(r *kgorm.AccountRepository) error {
				if err := r.SaveAccount(cmd.Context(), a); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account %s saved\n", a.Username)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&a.UID, "uid", 0, "numeric user id")
	cmd.Flags().Int64Var(&a.GID, "gid", 0, "primary group id")
	cmd.Flags().Int64SliceVar(&a.GIDs, "gids", nil, "additional group ids")
	cmd.Flags().StringVar(&a.Root, "root", "/", "root directory")
	cmd.Flags().StringVar(&a.Home, "home", "", "home directory")
	cmd.Flags().BoolVar(&a.ReadOnly, "read-only", false, "grant read access only")
	cmd.Flags().BoolVar(&a.Disabled, "disabled", false, "reject logins")
	return cmd
}

func newAccountMapCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "map <username> <kind:name>",
		Short: "Map a principal such as dn:/C=DE/O=GridKa/CN=Alice to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePrincipal(args[1])
			if err != nil {
				return err
			}
			return rootOpts.withAccounts(func(r *kgorm.AccountRepository) error {
				if err := r.MapPrincipal(cmd.Context(), p, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s mapped to %s\n", p, args[0])
				return nil
			})
		},
	}
}

func newAccountUnmapCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unmap <kind:name>",
		Short: "Remove a principal mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePrincipal(args[0])
			if err != nil {
				return err
			}
			return rootOpts.withAccounts(func(r *kgorm.AccountRepository) error {
				return r.UnmapPrincipal(cmd.Context(), p)
			})
		},
	}
}

func newAccountListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withAccounts(func(r *kgorm.AccountRepository) error {
				accounts, err := r.ListAccounts(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "USERNAME\tUID\tGID\tROOT\tFLAGS")
				for _, a := range accounts {
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", a.Username, a.UID, a.GID, a.Root, accountFlags(a))
				}
				return w.Flush()
			})
		},
	}
}

func accountFlags(a *login.Account) string {
	var flags []string
	if a.ReadOnly {
		flags = append(flags, "read-only")
	}
	if a.Disabled {
		flags = append(flags, "disabled")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func parsePrincipal(s string) (principal.Principal, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return principal.Principal{}, fmt.Errorf("invalid principal %q, want kind:name", s)
	}
	switch principal.Kind(kind) {
	case principal.KindDN, principal.KindFQAN:
		return principal.Principal{Kind: principal.Kind(kind), Name: name}, nil
	case principal.KindUID, principal.KindGID:
		if _, err := strconv.ParseInt(name, 10, 64); err != nil {
			return principal.Principal{}, fmt.Errorf("invalid %s %q", kind, name)
		}
		return principal.Principal{Kind: principal.Kind(kind), Name: name}, nil
	default:
		return principal.Principal{}, fmt.Errorf("principal kind %q cannot be mapped", kind)
	}
}
