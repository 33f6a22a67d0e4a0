package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gulkily/thywill-sub001/internal/reconcile"
	"github.com/gulkily/thywill-sub001/internal/seed"
)

// NewSeedCommand creates the seed-demo command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-demo",
		Short: "Write demo community archives and import them",
		Long: `Seeds the archives with a small demo community and imports it into
the database. Every seeded account uses the password "` + seed.DemoPassword + `".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, cmd)
		},
	}
}

type seedResult struct {
	Written  int `json:"written"`
	Imported int `json:"imported"`
}

func runSeed(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	app, err := newApp(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer app.Close()

	written, err := seed.New(app.writer, app.log).Seed(cmd.Context())
	if err != nil {
		formatter.Error(ErrCodeArchive, err.Error(), nil)
		return WrapExitError(ExitCommandError, "seeding failed", err)
	}

	results, err := reconcile.New(app.store, app.scanner, app.cfg, app.log).ReconcileAll(cmd.Context())
	if err != nil {
		formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "import after seeding failed", err)
	}
	imported := 0
	for _, res := range results {
		imported += res.Imported
	}

	if formatter.Format == "json" {
		return formatter.JSON(seedResult{Written: written, Imported: imported})
	}
	fmt.Fprintf(formatter.Writer, "%s seeded %d record(s), imported %d\n",
		color.GreenString("✓"), written, imported)
	return nil
}
