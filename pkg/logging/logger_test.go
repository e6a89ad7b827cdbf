// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_DefaultIsStdoutOnly(t *testing.T) {
	logger, err := New(Config{Service: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	if logger.Slog() == nil {
		t.Fatal("Slog() returned nil")
	}
	if logger.file != nil {
		t.Error("no LogDir set but a file was opened")
	}
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(Config{
		Service: "chatd",
		LogDir:  dir,
		Quiet:   true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Slog().Info("turn completed", "conversationId", "conv-1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("log dir has %d files, want 1", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "chatd_") ||
		!strings.HasSuffix(entries[0].Name(), ".log") {
		t.Errorf("log file name = %q, want chatd_{date}.log", entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "turn completed" {
		t.Errorf("msg = %v, want %q", entry["msg"], "turn completed")
	}
	if entry["service"] != "chatd" {
		t.Errorf("service = %v, want %q", entry["service"], "chatd")
	}
	if entry["conversationId"] != "conv-1" {
		t.Errorf("conversationId = %v, want %q", entry["conversationId"], "conv-1")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(Config{
		Service: "chatd",
		LogDir:  dir,
		Level:   slog.LevelWarn,
		Quiet:   true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Slog().Info("filtered out")
	logger.Slog().Warn("kept")
	logger.Close()

	entries, _ := os.ReadDir(dir)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile error = %v", err)
	}
	content := string(data)
	if strings.Contains(content, "filtered out") {
		t.Error("Info entry written despite LevelWarn minimum")
	}
	if !strings.Contains(content, "kept") {
		t.Error("Warn entry missing")
	}
}

func TestNew_BadLogDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}

	_, err := New(Config{LogDir: filepath.Join(file, "logs")})
	if err == nil {
		t.Error("New() with unusable LogDir should fail")
	}
}

func TestClose_StdoutOnlyIsSafe(t *testing.T) {
	logger, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close() on stdout-only logger = %v", err)
	}
}
