// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"os"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCmdCheckOK(t *testing.T) {
	dir := t.TempDir()
	path, _ := buildFixture(t, dir)

	if code := cmdCheck(discardLogger(), []string{path}); code != 0 {
		t.Errorf("cmdCheck(%s) = %d, want 0", path, code)
	}
}

func TestCmdCheckMissingFile(t *testing.T) {
	if code := cmdCheck(discardLogger(), []string{"/nonexistent/path.jbk"}); code != 2 {
		t.Errorf("cmdCheck(missing) = %d, want 2", code)
	}
}

func TestCmdCheckNoPath(t *testing.T) {
	if code := cmdCheck(discardLogger(), nil); code != 2 {
		t.Errorf("cmdCheck(nil) = %d, want 2", code)
	}
}

func TestCmdCheckCorruptedPack(t *testing.T) {
	dir := t.TempDir()
	path, _ := buildFixture(t, dir)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Flip a byte in the middle of the file, inside a sub-pack body —
	// well within the container's digested range ([0, checkInfoPos)) so
	// the corruption actually trips a check-tail mismatch, unlike the
	// trailing byte-swapped header replica which isn't digested at all.
	data[len(data)/2] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if code := cmdCheck(discardLogger(), []string{path}); code != 1 {
		t.Errorf("cmdCheck(corrupted) = %d, want 1", code)
	}
}
