package testutil

import (
	"io"
	"log/slog"

	"github.com/gulkily/thywill-sub001/internal/logger"
)

// Logger returns a logger that discards all output, keeping test runs quiet.
func Logger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
