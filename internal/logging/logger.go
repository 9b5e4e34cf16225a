// Package logging builds the structured loggers a run's processes share
// and routes captured suite output into them.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options select how a process logs. The parent forwards its own values to
// every forked child so one run logs uniformly across processes.
type Options struct {
	Format  string // "json" (default) or "text"
	Level   string // "debug", "info", "warn", "error"
	Verbose bool   // forces debug and adds source locations
}

// New builds the process logger, writing to stderr.
func New(o Options) *slog.Logger {
	return To(os.Stderr, o)
}

// To builds a logger writing to w.
func To(w io.Writer, o Options) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     o.level(),
		AddSource: o.Verbose,
	}
	if strings.EqualFold(o.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Discard returns a logger that drops every record. Test helpers use it
// where log output would only clutter failures.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ForWorker scopes a logger to one worker so every record it emits
// carries the worker number.
func ForWorker(logger *slog.Logger, num int) *slog.Logger {
	return logger.With(slog.Int("worker_num", num))
}

func (o Options) level() slog.Level {
	if o.Verbose {
		return slog.LevelDebug
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(o.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
