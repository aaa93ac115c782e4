// Package logger builds the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a text logger at the given level writing to sink. sink is
// "stdout", "stderr" or "file:<path>"; an unopenable file falls back to stdout.
// The returned closer releases the file, if any.
func New(level, sink string) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if path, ok := strings.CutPrefix(sink, "file:"); ok {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			return slog.New(slog.NewTextHandler(f, opts)), f
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
	}
	var w io.Writer = os.Stdout
	if sink == "stderr" {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, opts)), nopCloser{}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
