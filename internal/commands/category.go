package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/finscan/internal/categories"
	"github.com/cleared-dev/finscan/internal/model"
)

func newCategoryCommand(opts *globalOptions) *cobra.Command {
	categoryCmd := &cobra.Command{
		Use:   "category",
		Short: "Manage the category tree",
	}
	categoryCmd.AddCommand(
		newCategoryAddCommand(opts),
		newCategoryListCommand(opts),
		newCategorySetParentCommand(opts),
		newCategoryDeleteCommand(opts),
	)
	return categoryCmd
}

func newCategoryAddCommand(opts *globalOptions) *cobra.Command {
	var parent string
	var income bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				svc := categories.NewService(p.store)
				c := model.Category{Name: args[0], IsExpense: !income}
				if parent != "" {
					pc, err := svc.Lookup(ctx, parent)
					if err != nil {
						return err
					}
					c.ParentID = pc.ID
				}
				created, err := svc.Create(ctx, c)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created category %d (%s)\n", created.ID, created.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "parent category name")
	cmd.Flags().BoolVar(&income, "income", false, "category holds inflows")
	return cmd
}

func newCategoryListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the category tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				nodes, err := categories.NewService(p.store).Tree(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, n := range nodes {
					marker := ""
					if n.IsSystem {
						marker = " *"
					}
					fmt.Fprintf(out, "%s%s [%d]%s\n", strings.Repeat("  ", n.Depth), n.Name, n.ID, marker)
				}
				return nil
			})
		},
	}
}

func newCategorySetParentCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-parent <category> [parent]",
		Short: "Move a category under a parent (omit parent to make it top-level)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				svc := categories.NewService(p.store)
				child, err := svc.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				var parentID int64
				if len(args) == 2 {
					parent, err := svc.Lookup(ctx, args[1])
					if err != nil {
						return err
					}
					parentID = parent.ID
				}
				return svc.SetParent(ctx, child.ID, parentID)
			})
		},
	}
}

func newCategoryDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a user category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				svc := categories.NewService(p.store)
				c, err := svc.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				if err := svc.Delete(ctx, c.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %s\n", c.Name)
				return nil
			})
		},
	}
}
