package logger

import (
	"log/slog"
	"os"
)

// Logger wraps slog for structured logging across passes and commands.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing text output to stderr at the given level.
// Level follows slog conventions: 0 is Info, -4 is Debug.
func New(level int) *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(level)})),
	}
}

// Fatal is equivalent to Error followed by os.Exit(1).
func (l *Logger) Fatal(msg string, args ...any) {
	l.Logger.Error(msg, args...)
	os.Exit(1)
}
