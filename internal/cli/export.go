package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gulkily/thywill-sub001/internal/export"
)

// NewExportCommand creates the export-all command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-all <dir>",
		Short: "Write a complete archive snapshot of the database",
		Long: `Exports every database row as archive blocks under the given
directory, in dependency order so the snapshot imports cleanly into an
empty database. The directory should be empty or new.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, args[0], cmd)
		},
	}
}

func runExport(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	app, err := newApp(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer app.Close()

	results, err := export.New(app.store, app.cfg, app.log).Export(cmd.Context(), dir)
	if err != nil {
		formatter.Error(ErrCodeArchive, err.Error(), nil)
		return WrapExitError(ExitCommandError, "export failed", err)
	}

	exported, failed := 0, 0
	for _, res := range results {
		exported += res.Exported
		failed += res.Failed
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			fmt.Fprintf(formatter.Writer, "%-10s exported=%d failed=%d\n", res.Domain, res.Exported, res.Failed)
			for _, msg := range res.Errors {
				fmt.Fprintf(formatter.Writer, "  %s\n", msg)
			}
		}
		if failed > 0 {
			fmt.Fprintf(formatter.Writer, "%s %d record(s) failed to export\n", color.RedString("✗"), failed)
		} else {
			fmt.Fprintf(formatter.Writer, "%s exported %d record(s) to %s\n", color.GreenString("✓"), exported, dir)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) failed to export", failed))
	}
	return nil
}
