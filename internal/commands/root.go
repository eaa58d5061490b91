package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cleared-dev/finscan/internal/buildinfo"
	"github.com/cleared-dev/finscan/internal/config"
	"github.com/cleared-dev/finscan/internal/logging"
	"github.com/cleared-dev/finscan/internal/store/sqlite"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	dir string
	db  string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "finscan",
		Short:   "Bank CSV import and recurring expense detection",
		Version: buildinfo.Summary(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.dir, "dir", ".", "project directory")
	rootCmd.PersistentFlags().StringVar(&opts.db, "db", "", "database path (overrides config)")

	rootCmd.AddCommand(
		newInitCommand(),
		newAccountCommand(opts),
		newCategoryCommand(opts),
		newMappingCommand(opts),
		newImportCommand(opts),
		newDetectCommand(opts),
		newRecurringCommand(opts),
		newWatchCommand(opts),
	)

	return rootCmd
}

// project is an opened finscan project: its config, logger and store.
type project struct {
	root  string
	cfg   *config.Config
	log   zerolog.Logger
	store *sqlite.Store
}

func openProject(ctx context.Context, cmd *cobra.Command, opts *globalOptions) (*project, error) {
	root, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	cfg, err := config.LoadProject(root)
	if err != nil {
		return nil, err
	}
	if opts.db != "" {
		cfg.Database.Path, err = filepath.Abs(opts.db)
		if err != nil {
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
	}

	log := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Out:    cmd.ErrOrStderr(),
	})
	st, err := sqlite.Open(ctx, sqlite.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
		MaxRetries:  cfg.Database.MaxRetries,
	}, log)
	if err != nil {
		return nil, err
	}
	return &project{root: root, cfg: cfg, log: log, store: st}, nil
}

func (p *project) Close() error {
	return p.store.Close()
}

// withProject opens the project for the duration of fn.
func withProject(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, p *project) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := openProject(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(ctx, p)
}
