package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cleared-dev/finscan/internal/categorize"
	"github.com/cleared-dev/finscan/internal/importer"
	"github.com/cleared-dev/finscan/internal/importlog"
	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/pipeline"
	"github.com/cleared-dev/finscan/internal/recurring"
)

// maxParallelFiles bounds concurrent file imports.
const maxParallelFiles = 4

type importOptions struct {
	accountID int64
	mappingID int64
	format    string
	dryRun    bool
	noDetect  bool
	scan      bool
	preview   int
}

func newImportCommand(opts *globalOptions) *cobra.Command {
	var iopts importOptions

	cmd := &cobra.Command{
		Use:   "import [file.csv...]",
		Short: "Import bank CSV files",
		Long: `Import one or more bank CSV exports into an account.

The mapping comes from --mapping (a stored mapping id), --format (a known bank
format) or, when neither is given, from the file headers. With --scan every
CSV in the import directory is imported and moved to import/processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !iopts.scan {
				return errors.New("no files given (pass files or --scan)")
			}
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				return runImport(ctx, cmd.OutOrStdout(), p, iopts, args)
			})
		},
	}

	fl := cmd.Flags()
	fl.Int64Var(&iopts.accountID, "account", 0, "account id (defaults to the mapping's account)")
	fl.Int64Var(&iopts.mappingID, "mapping", 0, "stored mapping id")
	fl.StringVar(&iopts.format, "format", "", "known bank format")
	fl.BoolVar(&iopts.dryRun, "dry-run", false, "map rows and report without writing")
	fl.IntVar(&iopts.preview, "preview", 10, "records to print with --dry-run")
	fl.BoolVar(&iopts.noDetect, "no-detect", false, "skip recurring detection after import")
	fl.BoolVar(&iopts.scan, "scan", false, "import every CSV in the import directory")
	cmd.MarkFlagsMutuallyExclusive("mapping", "format")
	return cmd
}

// fileImport is the outcome of one file.
type fileImport struct {
	path   string
	result pipeline.BatchResult
	err    error
}

func runImport(ctx context.Context, out io.Writer, p *project, opts importOptions, paths []string) error {
	var scanned map[string]bool
	if opts.scan {
		files, err := importer.Scan(p.cfg.Import.Dir)
		if err != nil {
			return err
		}
		scanned = make(map[string]bool, len(files))
		for _, f := range files {
			paths = append(paths, f.Path)
			scanned[f.Path] = true
		}
		if len(paths) == 0 {
			fmt.Fprintf(out, "No CSV files in %s\n", p.cfg.Import.Dir)
			return nil
		}
	}

	if opts.dryRun {
		var errs []error
		for _, path := range paths {
			if err := previewFile(ctx, out, p, opts, path); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			}
		}
		return errors.Join(errs...)
	}

	pl, err := p.pipeline()
	if err != nil {
		return err
	}

	results := make([]fileImport, len(paths))
	var g errgroup.Group
	g.SetLimit(maxParallelFiles)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res, err := importFile(ctx, p, pl, opts, path)
			results[i] = fileImport{path: path, result: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		errs      []error
		entries   []importlog.Entry
		merchants = make(map[string]bool)
		now       = time.Now()
	)
	for _, fi := range results {
		name := filepath.Base(fi.path)
		res := fi.result
		fmt.Fprintf(out, "%s: %d imported, %d duplicates, %d errors\n", name, res.Imported, res.Duplicates, len(res.Errors))
		for _, re := range res.Errors {
			fmt.Fprintf(out, "  %s\n", re.Error())
		}
		for _, m := range res.Merchants {
			merchants[m] = true
		}
		if res.BatchID != "" {
			entries = append(entries, importlog.FromBatch(res, name, fi.err, now))
		}
		if fi.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, fi.err))
			continue
		}
		if scanned[fi.path] {
			if err := importer.MarkProcessed(filepath.Dir(fi.path), name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := importlog.Append(p.root, entries); err != nil {
		p.log.Warn().Err(err).Msg("failed to write import log")
	}

	if !opts.noDetect && p.cfg.Import.DetectAfterImport && len(merchants) > 0 {
		names := make([]string, 0, len(merchants))
		for m := range merchants {
			names = append(names, m)
		}
		sort.Strings(names)
		det := recurring.NewDetector(p.store, p.cfg.DetectorConfig(), p.log)
		ups, err := det.DetectMerchants(ctx, names)
		printUpserts(out, ups)
		if err != nil {
			errs = append(errs, fmt.Errorf("detecting recurring expenses: %w", err))
		}
	}

	return errors.Join(errs...)
}

// pipeline builds the import pipeline, with rule-based categorization when enabled.
func (p *project) pipeline() (*pipeline.Pipeline, error) {
	var plOpts []pipeline.Option
	if p.cfg.Import.Categorize {
		rules := categorize.DefaultRules()
		if path := p.cfg.Import.RulesFile; path != "" && exists(path) {
			var err error
			if rules, err = categorize.LoadRules(path); err != nil {
				return nil, err
			}
		}
		plOpts = append(plOpts, pipeline.WithCategorizer(categorize.New(rules, p.store)))
	}
	return pipeline.New(p.store, pipeline.Config{StoreTimeout: p.cfg.Import.StoreTimeout}, p.log, plOpts...), nil
}

func importFile(ctx context.Context, p *project, pl *pipeline.Pipeline, opts importOptions, path string) (pipeline.BatchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.BatchResult{}, fmt.Errorf("reading file: %w", err)
	}
	m, err := resolveMapping(ctx, p, opts, data)
	if err != nil {
		return pipeline.BatchResult{}, err
	}
	accountID, err := resolveAccount(opts, m)
	if err != nil {
		return pipeline.BatchResult{}, err
	}
	return pl.ImportMapping(ctx, accountID, m, bytes.NewReader(data))
}

func previewFile(ctx context.Context, out io.Writer, p *project, opts importOptions, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	m, err := resolveMapping(ctx, p, opts, data)
	if err != nil {
		return err
	}
	res, err := pipeline.Preview(ctx, m, bytes.NewReader(data), opts.preview)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s (%s): %d rows, %d errors\n", filepath.Base(path), m.Name, res.Total, len(res.Errors))
	for _, rec := range res.Records {
		fmt.Fprintf(out, "  %s  %12s  %-32s  %s\n", rec.Date.Format("2006-01-02"), rec.Amount.StringFixed(2), rec.Description, rec.MerchantHint)
	}
	for _, re := range res.Errors {
		fmt.Fprintf(out, "  %s\n", re.Error())
	}
	return nil
}

func resolveMapping(ctx context.Context, p *project, opts importOptions, data []byte) (model.CsvMapping, error) {
	switch {
	case opts.mappingID != 0:
		return p.store.GetCsvMapping(ctx, opts.mappingID)
	case opts.format != "":
		preset, ok := importer.DefaultRegistry().Get(opts.format)
		if !ok {
			return model.CsvMapping{}, fmt.Errorf("unknown format %q", opts.format)
		}
		return preset.NewMapping(""), nil
	}

	headers, err := importer.ReadHeaders(bytes.NewReader(data), 0)
	if err != nil {
		return model.CsvMapping{}, err
	}
	preset, ok := importer.DefaultRegistry().Detect(headers)
	if !ok {
		return model.CsvMapping{}, errors.New("could not detect the file format; pass --mapping or --format")
	}
	return preset.NewMapping(""), nil
}

func resolveAccount(opts importOptions, m model.CsvMapping) (int64, error) {
	if opts.accountID != 0 {
		return opts.accountID, nil
	}
	if m.AccountID != 0 {
		return m.AccountID, nil
	}
	return 0, errors.New("no account given and the mapping is not bound to one (pass --account)")
}
