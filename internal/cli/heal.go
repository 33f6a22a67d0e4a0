package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gulkily/thywill-sub001/internal/heal"
)

// NewHealCommand creates the heal-archives command.
func NewHealCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "heal-archives",
		Short: "Synthesize archive blocks for rows the archive is missing",
		Long: `Walks every database row and appends a fresh archive block for any
row with no recorded location or whose location no longer points at a
readable block. After healing, every row is anchored in the archive.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeal(rootOpts, cmd)
		},
	}
}

func runHeal(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	app, err := newApp(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer app.Close()

	healer := heal.New(app.store, app.writer, app.scanner, app.cfg, app.log)
	results, err := healer.HealAll(cmd.Context())
	if err != nil {
		formatter.Error(ErrCodeArchive, err.Error(), nil)
		return WrapExitError(ExitCommandError, "healing failed", err)
	}

	healed, failed := 0, 0
	for _, res := range results {
		healed += res.Healed
		failed += res.Failed
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			fmt.Fprintf(formatter.Writer, "%-10s healed=%d anchored=%d failed=%d\n",
				res.Domain, res.Healed, res.Anchored, res.Failed)
			for _, msg := range res.Errors {
				fmt.Fprintf(formatter.Writer, "  %s\n", msg)
			}
		}
		if failed > 0 {
			fmt.Fprintf(formatter.Writer, "%s %d row(s) could not be healed\n", color.RedString("✗"), failed)
		} else {
			fmt.Fprintf(formatter.Writer, "%s healed %d row(s)\n", color.GreenString("✓"), healed)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d row(s) could not be healed", failed))
	}
	return nil
}
