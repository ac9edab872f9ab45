// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package logger wraps log/slog with the level parsing and io.Writer
// wiring the gateway's tasks expect at startup.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// New returns a structured logger writing to w at the given level
// ("debug", "info", "warn", "error").
func New(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), nil
}

// NewMock returns a logger discarding all output, for tests.
func NewMock() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ExitWithError calls os.Exit(*code) if *code is non-zero. Deferred from
// main so that early-return error paths still flush before exiting.
func ExitWithError(code *int) {
	if *code != 0 {
		os.Exit(*code)
	}
}
