package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger. format "text" writes key=value lines to
// stderr; anything else writes JSON to stdout for log shippers.
func New(service, level, format string) *slog.Logger {
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return NewTextLogger(os.Stderr, level).With("service", service)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, options(level))).With("service", service)
}

// NewTextLogger is used by the interactive CLI, where stdout carries answers.
func NewTextLogger(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, options(level)))
}

func options(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{Level: parseLevel(level)}
}

// parseLevel accepts slog level names plus "warning"; unknown values mean info.
func parseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
