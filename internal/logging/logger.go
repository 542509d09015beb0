// Package logging builds the process logger. Output always goes to a stream
// other than stdout, which carries the result lines.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const appName = "airlens"

// Options selects the handler.
type Options struct {
	Level  slog.Level
	Format string // "text" or "json"
	Color  bool
}

// New returns a logger writing to w: colored tint text, or JSON.
func New(w io.Writer, opt Options) *slog.Logger {
	if strings.EqualFold(opt.Format, "json") {
		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opt.Level})
		return slog.New(h).With("app", appName)
	}
	h := tint.NewHandler(w, &tint.Options{
		Level:      opt.Level,
		AddSource:  opt.Level <= slog.LevelDebug,
		TimeFormat: time.Kitchen,
		NoColor:    !opt.Color,
	})
	return slog.New(h)
}

// ParseLevel accepts debug, info, warn/warning and error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level: %q", s)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
