// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for the chat service.
//
// Built on log/slog. The service logs JSON to stdout by default so
// container runtimes can collect it; setting a log directory adds a
// daily JSON file alongside, named "{service}_{YYYY-MM-DD}.log".
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Service: "chatd",
//	    LogDir:  os.Getenv("CHAT_LOG_DIR"), // optional
//	})
//	if err != nil { ... }
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// # Security Considerations
//
// This package does NOT redact sensitive data. Callers must ensure
// bearer tokens, provider keys, and message content that should stay
// private are not logged.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config configures the service logger. The zero value logs Info+ JSON
// to stdout with no file output.
type Config struct {
	// Level is the minimum level; messages below it are discarded.
	Level slog.Level

	// LogDir enables file logging when set. The directory is created
	// with 0750 permissions if missing.
	LogDir string

	// Service is included in every entry as the "service" attribute.
	Service string

	// Quiet disables stdout output. Useful when only the file matters,
	// as in tests.
	Quiet bool
}

// Logger owns the slog handler stack and the optional log file.
//
// # Thread Safety
//
// Safe for concurrent use; slog handlers serialize writes internally.
type Logger struct {
	slogger *slog.Logger
	file    *os.File
}

// New builds a Logger from the config.
//
// Returns an error only when file logging was requested and the
// directory or file could not be created; stdout logging never fails.
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, os.Stdout)
	}

	var file *os.File
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		name := fmt.Sprintf("%s_%s.log", cfg.Service, time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(cfg.LogDir, name),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}

	var out io.Writer = io.Discard
	if len(writers) == 1 {
		out = writers[0]
	} else if len(writers) > 1 {
		out = io.MultiWriter(writers...)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level})
	slogger := slog.New(handler)
	if cfg.Service != "" {
		slogger = slogger.With("service", cfg.Service)
	}

	return &Logger{slogger: slogger, file: file}, nil
}

// Slog returns the underlying slog.Logger, typically passed to
// slog.SetDefault at startup.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

// Close releases the log file, if any. Safe to call on a stdout-only
// logger.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
