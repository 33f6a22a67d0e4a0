package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gulkily/thywill-sub001/internal/consistency"
	"github.com/gulkily/thywill-sub001/internal/reconcile"
	"github.com/gulkily/thywill-sub001/internal/record"
	"github.com/gulkily/thywill-sub001/internal/recovery"
	"github.com/gulkily/thywill-sub001/internal/store"
)

// recoveryReport is the JSON payload for the recovery commands. Diff is
// populated only by test-recovery, which compares the scratch rebuild
// against the live index.
type recoveryReport struct {
	Run  *recovery.Run `json:"run"`
	Diff []countDiff   `json:"diff,omitempty"`
}

// countDiff records a domain whose rebuilt rows differ from the live
// database's. Keys holds the natural keys present on exactly one side.
type countDiff struct {
	Domain  record.Domain `json:"domain"`
	Live    int           `json:"live"`
	Rebuilt int           `json:"rebuilt"`
	Keys    []string      `json:"keys,omitempty"`
}

// NewFullRecoveryCommand creates the full-recovery command.
func NewFullRecoveryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "full-recovery",
		Short: "Wipe the database and rebuild it from the archives",
		Long: `Deletes every derived row, reimports each domain from the archives in
dependency order, then validates the rebuilt index against the blocks
it was built from. The archives are never modified.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(rootOpts)
			if err != nil {
				newFormatter(rootOpts, cmd).Error(ErrCodeConfig, err.Error(), nil)
				return err
			}
			defer app.Close()
			return runRecovery(rootOpts, app, app.store, nil, cmd)
		},
	}
}

// NewTestRecoveryCommand creates the test-recovery command.
func NewTestRecoveryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test-recovery",
		Short: "Rehearse a full recovery against a scratch database",
		Long: `Runs the complete recovery sequence against a throwaway database
built from the live archives, proving the archives alone can rebuild
the index. The live database is not touched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			app, err := newApp(rootOpts)
			if err != nil {
				formatter.Error(ErrCodeConfig, err.Error(), nil)
				return err
			}
			defer app.Close()

			scratchDir, err := os.MkdirTemp("", "thywill-recovery-*")
			if err != nil {
				formatter.Error(ErrCodeGeneric, err.Error(), nil)
				return WrapExitError(ExitCommandError, "create scratch directory", err)
			}
			defer os.RemoveAll(scratchDir)

			scratch, err := store.Open(filepath.Join(scratchDir, "scratch.db"))
			if err != nil {
				formatter.Error(ErrCodeDatabase, err.Error(), nil)
				return WrapExitError(ExitCommandError, "open scratch database", err)
			}
			defer scratch.Close()

			return runRecovery(rootOpts, app, scratch, app.store, cmd)
		},
	}
}

// runRecovery drives the orchestrator against st, which is the live store
// for full-recovery and a scratch one for test-recovery. A non-nil live
// store requests the post-rebuild count diff against it.
func runRecovery(opts *RootOptions, app *app, st, live *store.Store, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	rec := reconcile.New(st, app.scanner, app.cfg, app.log)
	val := consistency.NewValidator(st, app.scanner, app.log)
	run, err := recovery.New(st, rec, val, app.log).Recover(cmd.Context())
	if err != nil {
		if formatter.Format == "json" {
			formatter.Error(ErrCodeDatabase, run.Err, run)
		} else {
			fmt.Fprintf(formatter.Writer, "%s recovery failed in state %s: %s\n",
				color.RedString("✗"), run.State, run.Err)
		}
		return WrapExitError(ExitCommandError, "recovery failed", err)
	}

	var diff []countDiff
	if live != nil {
		if diff, err = diffIndexes(cmd.Context(), live, st); err != nil {
			formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "compare rebuild", err)
		}
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(recoveryReport{Run: run, Diff: diff}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "recovery %s\n", run.Token)
		for _, res := range run.Results {
			fmt.Fprintf(formatter.Writer, "%-10s imported=%d invalid=%d failed=%d\n",
				res.Domain, res.Imported, res.SkippedInvalid, res.Failed)
		}
		if len(run.Findings) > 0 {
			fmt.Fprintf(formatter.Writer, "%s rebuilt with %d finding(s)\n", color.RedString("✗"), len(run.Findings))
			for _, f := range run.Findings {
				fmt.Fprintf(formatter.Writer, "  %s\n", f)
			}
		} else {
			fmt.Fprintf(formatter.Writer, "%s recovery complete in %s\n", color.GreenString("✓"), run.Duration.Round(time.Millisecond))
		}
		if live != nil {
			if len(diff) > 0 {
				fmt.Fprintf(formatter.Writer, "%s rebuild diverges from the live index:\n", color.RedString("✗"))
				for _, d := range diff {
					fmt.Fprintf(formatter.Writer, "  %s: live=%d rebuilt=%d\n", d.Domain, d.Live, d.Rebuilt)
				}
			} else {
				fmt.Fprintf(formatter.Writer, "%s rebuild matches the live index\n", color.GreenString("✓"))
			}
		}
	}

	if len(run.Findings) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("recovery finished with %d finding(s)", len(run.Findings)))
	}
	if len(diff) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("rebuild diverges from the live index in %d domain(s)", len(diff)))
	}
	return nil
}

// diffIndexes compares the natural-key sets of the live index and a rebuilt
// one per domain, returning only the domains that disagree.
func diffIndexes(ctx context.Context, live, rebuilt *store.Store) ([]countDiff, error) {
	var out []countDiff
	for _, domain := range record.Domains {
		before, err := live.NaturalKeySet(ctx, domain)
		if err != nil {
			return nil, err
		}
		after, err := rebuilt.NaturalKeySet(ctx, domain)
		if err != nil {
			return nil, err
		}
		var keys []string
		for k := range before {
			if !after[k] {
				keys = append(keys, k)
			}
		}
		for k := range after {
			if !before[k] {
				keys = append(keys, k)
			}
		}
		if len(keys) > 0 {
			sort.Strings(keys)
			out = append(out, countDiff{Domain: domain, Live: len(before), Rebuilt: len(after), Keys: keys})
		}
	}
	return out, nil
}
