package logging

import (
	"io"
	"log/slog"
	"os"
)

var stdout io.Writer = os.Stdout

// Setup installs the process-wide logger. Development gets debug-level text
// on stdout; every other environment gets info-level JSON. Sinks such as the
// PGHandler are attached through extra and receive the same redacted records.
func Setup(env string, extra ...slog.Handler) {
	slog.SetDefault(slog.New(NewHandler(stdout, env, extra...)))
}

// NewHandler builds the handler Setup installs, writing console output to w.
func NewHandler(w io.Writer, env string, extra ...slog.Handler) slog.Handler {
	var console slog.Handler
	if env == "development" {
		console = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		console = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	if len(extra) == 0 {
		return &Redactor{sinks: []slog.Handler{console}}
	}
	return &Redactor{sinks: append([]slog.Handler{console}, extra...)}
}
