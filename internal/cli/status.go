package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/record"
)

// DomainStatus is one row of status output. Archived counts decodable
// blocks, so it can exceed Rows when a prayer has edit history.
type DomainStatus struct {
	Domain     string `json:"domain"`
	Rows       int    `json:"rows"`
	Archived   int    `json:"archived"`
	Unanchored int    `json:"unanchored"`
}

// StatusResult is the status command's JSON payload.
type StatusResult struct {
	ArchiveRoot  string         `json:"archive_root"`
	DatabasePath string         `json:"database_path"`
	Domains      []DomainStatus `json:"domains"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show per-domain row counts and archive anchoring",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	app, err := newApp(opts)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	result := StatusResult{
		ArchiveRoot:  app.cfg.ArchiveRoot,
		DatabasePath: app.cfg.DatabasePath,
	}
	unanchored := 0
	for _, domain := range record.Domains {
		rows, err := app.store.Count(ctx, domain)
		if err != nil {
			formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "read status", err)
		}
		loose, err := app.store.CountUnanchored(ctx, domain)
		if err != nil {
			formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "read status", err)
		}
		archived := 0
		err = app.scanner.Scan(ctx, domain, func(loc archive.Location, rec *record.Record, scanErr error) error {
			if scanErr == nil {
				archived++
			}
			return nil
		})
		if err != nil {
			formatter.Error(ErrCodeArchive, err.Error(), nil)
			return WrapExitError(ExitCommandError, "read status", err)
		}
		unanchored += loose
		result.Domains = append(result.Domains, DomainStatus{
			Domain: domain.String(), Rows: rows, Archived: archived, Unanchored: loose,
		})
	}

	if formatter.Format == "json" {
		return formatter.JSON(result)
	}

	fmt.Fprintf(formatter.Writer, "archive:  %s\n", result.ArchiveRoot)
	fmt.Fprintf(formatter.Writer, "database: %s\n", result.DatabasePath)
	for _, d := range result.Domains {
		line := fmt.Sprintf("%-10s rows=%d archived=%d", d.Domain, d.Rows, d.Archived)
		if d.Unanchored > 0 {
			line += color.YellowString(" unanchored=%d", d.Unanchored)
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	if unanchored > 0 {
		fmt.Fprintf(formatter.Writer, "%s %d row(s) lack archive locations; run heal-archives\n",
			color.YellowString("!"), unanchored)
	}
	return nil
}
