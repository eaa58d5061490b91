package commands

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/finscan/internal/recurring"
	"github.com/cleared-dev/finscan/internal/scheduler"
)

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var schedule string
	var importOpts importOptions
	var scanImports bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run recurring detection on a schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				if schedule == "" {
					schedule = p.cfg.Recurring.Schedule
				}
				if err := scheduler.Validate(schedule); err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				importOpts.scan = scanImports
				return runWatch(ctx, cmd.OutOrStdout(), p, schedule, importOpts)
			})
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&schedule, "schedule", "", "cron schedule (defaults to recurring.schedule)")
	fl.BoolVar(&scanImports, "import", false, "import new CSVs from the import directory on each run")
	fl.Int64Var(&importOpts.accountID, "account", 0, "account id for scanned files")
	fl.Int64Var(&importOpts.mappingID, "mapping", 0, "stored mapping id for scanned files")
	fl.StringVar(&importOpts.format, "format", "", "known bank format for scanned files")
	return cmd
}

func runWatch(ctx context.Context, out io.Writer, p *project, schedule string, opts importOptions) error {
	sched := scheduler.New(p.log)
	if err := sched.Add(ctx, schedule, watchJob(out, p, opts)); err != nil {
		return err
	}
	sched.Run(ctx)
	return nil
}

// watchJob optionally drains the import directory, then re-scans every merchant.
func watchJob(out io.Writer, p *project, opts importOptions) scheduler.Job {
	return scheduler.JobFunc{
		JobName: "detect-recurring",
		Fn: func(ctx context.Context) error {
			if opts.scan {
				// Detection below covers every merchant.
				opts.noDetect = true
				if err := runImport(ctx, out, p, opts, nil); err != nil {
					p.log.Error().Err(err).Msg("scheduled import failed")
				}
			}
			det := recurring.NewDetector(p.store, p.cfg.DetectorConfig(), p.log)
			ups, err := det.DetectRecurring(ctx, recurring.AllMerchants)
			printUpserts(out, ups)
			return err
		},
	}
}
