package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gulkily/thywill-sub001/internal/reconcile"
)

// NewImportCommand creates the import-all command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import-all",
		Short: "Import every archive record into the database index",
		Long: `Scans the archive tree domain by domain and imports each record,
skipping records the index already holds and correcting rows that have
drifted from their archive block. Safe to run repeatedly.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, dryRun, cmd)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be imported without writing")
	return cmd
}

func runImport(opts *RootOptions, dryRun bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	app, err := newApp(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer app.Close()

	rec := reconcile.New(app.store, app.scanner, app.cfg, app.log)
	rec.DryRun = dryRun
	results, err := rec.ReconcileAll(cmd.Context())
	if err != nil {
		formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "import failed", err)
	}

	failed := 0
	for _, res := range results {
		failed += res.Failed
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(results); err != nil {
			return err
		}
	} else {
		printImportResults(formatter, results, dryRun)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed to import", failed))
	}
	return nil
}

func printImportResults(formatter *OutputFormatter, results []*reconcile.Result, dryRun bool) {
	if dryRun {
		fmt.Fprintln(formatter.Writer, "Dry run: no database writes performed")
	}
	imported, corrected, failed := 0, 0, 0
	for _, res := range results {
		fmt.Fprintf(formatter.Writer, "%-10s imported=%d corrected=%d duplicate=%d invalid=%d failed=%d\n",
			res.Domain, res.Imported, res.Corrected, res.SkippedDuplicate, res.SkippedInvalid, res.Failed)
		for _, f := range res.Findings {
			formatter.VerboseLog("  drift corrected: %s", f)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
		}
		imported += res.Imported
		corrected += res.Corrected
		failed += res.Failed
	}
	if failed > 0 {
		fmt.Fprintf(formatter.Writer, "%s %d record(s) failed\n", color.RedString("✗"), failed)
		return
	}
	fmt.Fprintf(formatter.Writer, "%s imported %d record(s), corrected %d\n",
		color.GreenString("✓"), imported, corrected)
}
