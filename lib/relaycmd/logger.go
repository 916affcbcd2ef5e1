// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relaycmd

import (
	"io"
	"log/slog"

	"github.com/bureau-foundation/bytebridge/lib/config"
)

// NewLogger builds the process logger on w from the log section.
// Verbose forces Debug level, which includes per-message events.
func NewLogger(w io.Writer, logConfig config.LogConfig, verbose bool) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logConfig.Level)); err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logConfig.Format == "json" {
		handler = slog.NewJSONHandler(w, options)
	} else {
		handler = slog.NewTextHandler(w, options)
	}
	return slog.New(handler), nil
}
