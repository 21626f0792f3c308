// Copyright 2026 The Tempmon Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging configures the process logger.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
)

// Init configures slog to write to stdout and, when path is non-empty, a log
// file as well. It returns the logger and the file so callers can Close() on
// shutdown; the file is nil when logging to stdout only.
func Init(path string) (*slog.Logger, *os.File) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if path == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}

	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
		logger.Error("failed to open log file, falling back to stdout only", "path", path, "err", err)
		return logger, nil
	}

	mw := io.MultiWriter(os.Stdout, f)
	logger := slog.New(slog.NewTextHandler(mw, opts))
	// Align the stdlib logger (used by some dependencies) with ours.
	log.SetOutput(mw)
	return logger, f
}
