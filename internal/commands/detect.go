package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/finscan/internal/recurring"
)

func newDetectCommand(opts *globalOptions) *cobra.Command {
	var minConfidence float64

	cmd := &cobra.Command{
		Use:   "detect [merchant|all]",
		Short: "Detect recurring expenses for one merchant or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			merchant := recurring.AllMerchants
			if len(args) == 1 {
				merchant = args[0]
			}
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				cfg := p.cfg.DetectorConfig()
				if cmd.Flags().Changed("min-confidence") {
					cfg.MinConfidence = minConfidence
				}
				ups, err := recurring.NewDetector(p.store, cfg, p.log).DetectRecurring(ctx, merchant)
				printUpserts(cmd.OutOrStdout(), ups)
				return err
			})
		},
	}

	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "override the configured confidence threshold")
	return cmd
}

func newRecurringCommand(opts *globalOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "List detected recurring expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				res, err := p.store.ListRecurringExpenses(ctx, !all)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MERCHANT\tFREQUENCY\tAVERAGE\tCONFIDENCE\tNEXT\tACTIVE")
				for _, re := range res {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%t\n",
						re.Merchant, re.FrequencyType, re.AverageAmount.StringFixed(2),
						re.Confidence, re.NextExpectedDate.Format("2006-01-02"), re.IsActive)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include deactivated entries")
	return cmd
}

func printUpserts(out io.Writer, ups []recurring.Upsert) {
	for _, u := range ups {
		e := u.Expense
		fmt.Fprintf(out, "%-11s %s: %s every %d days (%s), confidence %.2f\n",
			u.Action, e.Merchant, e.AverageAmount.StringFixed(2), e.FrequencyDays, e.FrequencyType, e.Confidence)
	}
}
