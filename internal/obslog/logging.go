// Package obslog builds the process logger and threads a per-operation
// scope (the admin request, or the (event, year) delivery being driven)
// through contexts, so the sender, the webhook transport, and the admin
// surface all stamp the same identity fields on their log lines.
package obslog

import (
	"log/slog"
	"os"
	"strings"
)

// Options configures the process-wide logger.
type Options struct {
	Level   string
	Process string
}

// New returns a JSON slog.Logger at the configured level, stamped with the
// process name. Unknown levels default to INFO.
func New(opts Options) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(opts.Level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	if opts.Process != "" {
		logger = logger.With(slog.String("process", opts.Process))
	}
	return logger
}
