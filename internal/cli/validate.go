package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gulkily/thywill-sub001/internal/consistency"
)

// ValidationResult holds validation output for JSON format.
type ValidationResult struct {
	Clean    bool                  `json:"clean"`
	Findings []consistency.Finding `json:"findings,omitempty"`
}

// NewValidateCommand creates the validate-archives command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-archives",
		Short: "Check every database row against its archive block",
		Long: `Reads back the archive block each database row was imported from and
compares every tracked field. Reports rows that have drifted from the
archive, rows pointing at unreadable blocks, and rows with no recorded
location at all.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	app, err := newApp(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer app.Close()

	validator := consistency.NewValidator(app.store, app.scanner, app.log)
	findings, err := validator.ValidateAll(cmd.Context())
	if err != nil {
		formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "validation failed", err)
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(ValidationResult{Clean: len(findings) == 0, Findings: findings}); err != nil {
			return err
		}
	} else if len(findings) == 0 {
		fmt.Fprintf(formatter.Writer, "%s database matches archives\n", color.GreenString("✓"))
	} else {
		fmt.Fprintf(formatter.Writer, "%s %d finding(s)\n", color.RedString("✗"), len(findings))
		for _, f := range findings {
			fmt.Fprintf(formatter.Writer, "  %s\n", f)
		}
	}

	if len(findings) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d consistency finding(s)", len(findings)))
	}
	return nil
}
