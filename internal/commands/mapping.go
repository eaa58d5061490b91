package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/finscan/internal/importer"
	"github.com/cleared-dev/finscan/internal/model"
)

func newMappingCommand(opts *globalOptions) *cobra.Command {
	mappingCmd := &cobra.Command{
		Use:   "mapping",
		Short: "Manage CSV column mappings",
	}
	mappingCmd.AddCommand(
		newMappingAddCommand(opts),
		newMappingListCommand(opts),
		newMappingShowCommand(opts),
		newMappingFormatsCommand(),
		newMappingDetectCommand(),
	)
	return mappingCmd
}

// mappingFlags builds a mapping by hand when no preset or file is given.
type mappingFlags struct {
	format       string
	file         string
	accountID    int64
	date         string
	description  string
	amount       string
	original     string
	dateFormat   string
	amountMode   string
	debit        string
	credit       string
	typeColumn   string
	keywords     []string
	skipRows     int
	decimalComma bool
}

func (f *mappingFlags) build(name string) (model.CsvMapping, error) {
	var m model.CsvMapping
	switch {
	case f.format != "":
		p, ok := importer.DefaultRegistry().Get(f.format)
		if !ok {
			return model.CsvMapping{}, fmt.Errorf("unknown format %q (see `finscan mapping formats`)", f.format)
		}
		m = p.NewMapping(name)
	case f.file != "":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return model.CsvMapping{}, fmt.Errorf("reading mapping file: %w", err)
		}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return model.CsvMapping{}, fmt.Errorf("parsing mapping file: %w", err)
		}
		if name != "" {
			m.Name = name
		}
	default:
		m = model.CsvMapping{
			Name:          name,
			DateFormat:    f.dateFormat,
			AmountMode:    model.AmountMode(f.amountMode),
			DebitColumn:   f.debit,
			CreditColumn:  f.credit,
			TypeColumn:    f.typeColumn,
			DebitKeywords: f.keywords,
			SkipRows:      f.skipRows,
			DecimalComma:  f.decimalComma,
		}
		for _, b := range []model.ColumnBinding{
			{Field: model.FieldDate, Header: f.date},
			{Field: model.FieldDescription, Header: f.description},
			{Field: model.FieldAmount, Header: f.amount},
			{Field: model.FieldOriginalDescription, Header: f.original},
		} {
			if b.Header != "" {
				m.Columns = append(m.Columns, b)
			}
		}
	}
	if f.accountID != 0 {
		m.AccountID = f.accountID
	}
	return m, nil
}

func newMappingAddCommand(opts *globalOptions) *cobra.Command {
	var f mappingFlags

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Store a mapping from a known format, a YAML file or flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := f.build(args[0])
			if err != nil {
				return err
			}
			if errs := m.Validate(); len(errs) > 0 {
				return errs
			}
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				id, err := p.store.CreateCsvMapping(ctx, m)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created mapping %d (%s)\n", id, m.Name)
				return nil
			})
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", "", "known bank format (see `mapping formats`)")
	fl.StringVar(&f.file, "file", "", "YAML mapping file")
	fl.Int64Var(&f.accountID, "account", 0, "bind the mapping to an account id")
	fl.StringVar(&f.date, "date-col", "", "date column header")
	fl.StringVar(&f.description, "description-col", "", "description column header")
	fl.StringVar(&f.amount, "amount-col", "", "amount column header")
	fl.StringVar(&f.original, "original-description-col", "", "untouched description column header")
	fl.StringVar(&f.dateFormat, "date-format", "auto", "strftime pattern, Go layout or auto")
	fl.StringVar(&f.amountMode, "amount-mode", string(model.AmountSigned), "signed, debit_credit or type_column")
	fl.StringVar(&f.debit, "debit-col", "", "debit column header (debit_credit)")
	fl.StringVar(&f.credit, "credit-col", "", "credit column header (debit_credit)")
	fl.StringVar(&f.typeColumn, "type-col", "", "type column header (type_column)")
	fl.StringSliceVar(&f.keywords, "debit-keywords", nil, "type values that mark an outflow")
	fl.IntVar(&f.skipRows, "skip-rows", 0, "lines to skip before the header")
	fl.BoolVar(&f.decimalComma, "decimal-comma", false, "amounts use 1.234,56 notation")
	cmd.MarkFlagsMutuallyExclusive("format", "file")
	return cmd
}

func newMappingListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				ms, err := p.store.ListCsvMappings(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tACCOUNT\tAMOUNT MODE\tDATE FORMAT")
				for _, m := range ms {
					acct := "-"
					if m.AccountID != 0 {
						acct = fmt.Sprint(m.AccountID)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.Name, acct, m.AmountMode, m.DateFormat)
				}
				return tw.Flush()
			})
		},
	}
}

func newMappingShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored mapping as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withProject(cmd, opts, func(ctx context.Context, p *project) error {
				m, err := p.store.GetCsvMapping(ctx, id)
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(m); err != nil {
					return fmt.Errorf("encoding mapping: %w", err)
				}
				return enc.Close()
			})
		},
	}
}

func newMappingFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List known bank formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := importer.DefaultRegistry()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tINSTITUTION\tAMOUNT MODE")
			for _, name := range reg.Names() {
				p, _ := reg.Get(name)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Institution, p.Mapping.AmountMode)
			}
			return tw.Flush()
		},
	}
}

func newMappingDetectCommand() *cobra.Command {
	var skipRows int

	cmd := &cobra.Command{
		Use:   "detect <file.csv>",
		Short: "Guess the bank format of a CSV file from its headers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			headers, err := importer.ReadHeaders(f, skipRows)
			if err != nil {
				return err
			}
			p, ok := importer.DefaultRegistry().Detect(headers)
			if !ok {
				return fmt.Errorf("no known format matches headers: %s", strings.Join(headers, ", "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.Name)
			return nil
		},
	}

	cmd.Flags().IntVar(&skipRows, "skip-rows", 0, "lines to skip before the header")
	return cmd
}
