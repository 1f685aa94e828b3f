// Package logging builds the slog loggers used by the command line tools.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	openpayments "github.com/ilpay/openpayments-go"
)

// ParseLevel parses a level name. Besides the slog names it accepts "trace",
// which enables full request and response dumps.
func ParseLevel(level string) (slog.Level, error) {
	if strings.EqualFold(strings.TrimSpace(level), "trace") {
		return openpayments.LevelTrace, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", openpayments.ErrInvalidConfig, level)
	}
	return lvl, nil
}

// New creates a logger writing to stderr in format "json" or "text". An
// invalid level defaults to info.
func New(format, level string) (*slog.Logger, error) {
	return NewWriter(os.Stderr, format, level)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl, ReplaceAttr: replaceLevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", openpayments.ErrInvalidConfig, format)
	}
	return slog.New(handler), nil
}

// replaceLevel prints the trace level as "TRACE" instead of "DEBUG-4".
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == openpayments.LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
