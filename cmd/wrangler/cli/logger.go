// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger on stderr. When stderr
// is a terminal it uses slog.TextHandler for human-readable output;
// when piped or redirected (CI, build orchestration) it uses
// slog.JSONHandler so logs can be ingested.
func NewCommandLogger(level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// LogOptions is an embeddable parameter group for log verbosity.
type LogOptions struct {
	Verbose bool `flag:"verbose,v" desc:"log tool invocations and skipped transitions"`
	Quiet   bool `flag:"quiet,q" desc:"log warnings and errors only"`
}

// LogLevel returns the level selected by the flags.
func (o *LogOptions) LogLevel() slog.Level {
	switch {
	case o.Verbose:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
