package cli

import (
	"github.com/spf13/cobra"

	"github.com/gulkily/thywill-sub001/internal/archive"
	"github.com/gulkily/thywill-sub001/internal/config"
	"github.com/gulkily/thywill-sub001/internal/logger"
	"github.com/gulkily/thywill-sub001/internal/store"
)

// app bundles the wired engine components a command works with.
type app struct {
	cfg     config.Config
	log     *logger.Logger
	store   *store.Store
	writer  *archive.Writer
	scanner *archive.Scanner
}

func newApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	if opts.Verbose {
		cfg.LogLevel = -4
	}
	log := logger.New(cfg.LogLevel)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		writer:  archive.NewWriter(cfg),
		scanner: archive.NewScanner(cfg.ArchiveRoot),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
