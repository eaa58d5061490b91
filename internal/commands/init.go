package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/finscan/internal/categories"
	"github.com/cleared-dev/finscan/internal/categorize"
	"github.com/cleared-dev/finscan/internal/config"
	"github.com/cleared-dev/finscan/internal/gitops"
)

const rulesFileName = "rules.yaml"

// initOptions control optional git versioning of the project files.
type initOptions struct {
	git         bool
	authorName  string
	authorEmail string
}

func newInitCommand() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new finscan project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cmd.Flags().GetString("dir")
			if err != nil {
				return err
			}
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			return runInit(cmd, absDir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.git, "git", false, "version the config and rules files with git")
	cmd.Flags().StringVar(&opts.authorName, "author-name", "finscan", "git author name")
	cmd.Flags().StringVar(&opts.authorEmail, "author-email", "finscan@localhost", "git author email")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, opts initOptions) error {
	dirs := []string{
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Existing files are left alone so init can be re-run safely.
	cfgPath := filepath.Join(dir, config.FileName)
	if !exists(cfgPath) {
		cfg := config.Default()
		cfg.Import.RulesFile = rulesFileName
		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
	}

	rulesPath := filepath.Join(dir, rulesFileName)
	if !exists(rulesPath) {
		data, err := yaml.Marshal(categorize.DefaultRules())
		if err != nil {
			return fmt.Errorf("marshaling rules: %w", err)
		}
		if err := os.WriteFile(rulesPath, data, 0o644); err != nil {
			return fmt.Errorf("writing rules: %w", err)
		}
	}

	gitignore := "*.db\n*.db-wal\n*.db-shm\n.env\nimport/processed/\n"
	gitignorePath := filepath.Join(dir, ".gitignore")
	if !exists(gitignorePath) {
		if err := os.WriteFile(gitignorePath, []byte(gitignore), 0o644); err != nil {
			return fmt.Errorf("writing .gitignore: %w", err)
		}
	}

	var seeded int
	err := withProject(cmd, &globalOptions{dir: dir}, func(ctx context.Context, p *project) error {
		n, err := categories.NewService(p.store).SeedDefaults(ctx)
		seeded = n
		return err
	})
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized finscan project at %s (%d categories)\n", dir, seeded)

	if opts.git {
		repo := gitops.Repo{Dir: dir, AuthorName: opts.authorName, AuthorEmail: opts.authorEmail}
		if err := repo.Init(cmd.Context()); err != nil {
			return err
		}
		hash, err := repo.Commit(cmd.Context(), "init: finscan project", config.FileName, rulesFileName, ".gitignore")
		if err != nil {
			return fmt.Errorf("initial commit: %w", err)
		}
		if hash != "" {
			fmt.Fprintf(out, "Committed project files (%s)\n", hash)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
