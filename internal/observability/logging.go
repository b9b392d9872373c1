// Package observability builds the structured logger used by the harness.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Config selects level and format of the logger.
type Config struct {
	Level  string
	Format string // auto, text or json
	Output io.Writer
}

// NewLogger creates a logger from cfg. Output defaults to stderr; format
// auto picks text on a terminal and JSON otherwise.
func NewLogger(cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}

	switch resolveFormat(cfg.Format, out) {
	case "json":
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	default:
		return slog.New(slog.NewTextHandler(out, opts)), nil
	}
}

// ParseLevel maps a level name to slog.Level. Empty means warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: want debug, info, warn or error", s)
	}
}

func resolveFormat(format string, out io.Writer) string {
	if format != "" && format != "auto" {
		return format
	}
	if IsTerminal(out) {
		return "text"
	}
	return "json"
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
