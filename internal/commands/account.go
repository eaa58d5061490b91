package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/finscan/internal/accounts"
	"github.com/cleared-dev/finscan/internal/model"
)

func newAccountCommand(opts *globalOptions) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage bank accounts",
	}
	accountCmd.AddCommand(
		newAccountAddCommand(opts),
		newAccountListCommand(opts),
		newAccountDeleteCommand(opts),
		newAccountImportCommand(opts),
		newAccountExportCommand(opts),
	)
	return accountCmd
}

func newAccountAddCommand(opts *globalOptions) *cobra.Command {
	var a model.Account
	var accountType string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Name = args[0]
			a.Type = model.AccountType(accountType)
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				created, err := accounts.NewService(p.store).Create(ctx, a)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created account %d (%s)\n", created.ID, created.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&accountType, "type", string(model.AccountTypeChecking), "account type")
	cmd.Flags().StringVar(&a.Institution, "institution", "", "bank or issuer name")
	cmd.Flags().StringVar(&a.LastFour, "last-four", "", "last four digits of the account number")
	return cmd
}

func newAccountListCommand(opts *globalOptions) *cobra.Command {
	var accountType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				svc := accounts.NewService(p.store)
				var (
					accts []model.Account
					err   error
				)
				if accountType != "" {
					accts, err = svc.ByType(ctx, model.AccountType(accountType))
				} else {
					accts, err = svc.All(ctx)
				}
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTYPE\tINSTITUTION\tBALANCE")
				for _, a := range accts {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Type, a.Institution, a.Balance.StringFixed(2))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&accountType, "type", "", "only list accounts of this type")
	return cmd
}

func newAccountDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account and its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				if err := accounts.NewService(p.store).Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted account %d\n", id)
				return nil
			})
		},
	}
}

func newAccountImportCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Create accounts from an accounts CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening accounts file: %w", err)
			}
			defer f.Close()

			accts, err := accounts.ReadAccounts(f)
			if err != nil {
				return err
			}
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				created, err := accounts.NewService(p.store).CreateAll(ctx, accts)
				fmt.Fprintf(cmd.OutOrStdout(), "Created %d accounts\n", len(created))
				return err
			})
		},
	}
}

func newAccountExportCommand(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all accounts as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				accts, err := accounts.NewService(p.store).All(ctx)
				if err != nil {
					return err
				}
				if output == "" {
					return accounts.WriteAccounts(cmd.OutOrStdout(), accts)
				}

				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				if err := accounts.WriteAccounts(f, accts); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
