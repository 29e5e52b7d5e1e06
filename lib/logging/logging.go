// Copyright 2026 The Apronwatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog.Logger every Apronwatch binary uses.
// Human-readable text goes to terminals, JSON everywhere else, so
// capture runs started from cron or systemd produce parseable logs
// without extra flags.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format selects the slog handler.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New. The zero value logs at info level to stderr
// in auto format.
type Options struct {
	Level  string // debug, info, warn, error
	Format Format
	Output io.Writer
}

// New returns a logger for the given options. Auto format picks text
// when Output is a terminal.
func New(options Options) (*slog.Logger, error) {
	level, err := ParseLevel(options.Level)
	if err != nil {
		return nil, err
	}

	output := options.Output
	if output == nil {
		output = os.Stderr
	}

	format := options.Format
	if format == "" || format == FormatAuto {
		format = FormatJSON
		if file, ok := output.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			format = FormatText
		}
	}

	handlerOptions := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatText:
		return slog.New(slog.NewTextHandler(output, handlerOptions)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(output, handlerOptions)), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q (want auto, text, or json)", format)
	}
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging: unknown level %q", name)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
