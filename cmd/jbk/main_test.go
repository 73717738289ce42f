// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	out := captureStdout(t, func() {
		if code := run([]string{"--version"}); code != 0 {
			t.Errorf("run(--version) = %d, want 0", code)
		}
	})
	if !strings.HasPrefix(out, "jbk ") {
		t.Errorf("--version output = %q, want a %q prefix", out, "jbk ")
	}
}

func TestRunNoArgs(t *testing.T) {
	if code := run(nil); code != 2 {
		t.Errorf("run(nil) = %d, want 2", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"frobnicate"}); code != 2 {
		t.Errorf("run(frobnicate) = %d, want 2", code)
	}
}

func TestRunHelp(t *testing.T) {
	if code := run([]string{"help"}); code != 0 {
		t.Errorf("run(help) = %d, want 0", code)
	}
}

func TestRunCheckMissingPath(t *testing.T) {
	if code := run([]string{"check"}); code != 2 {
		t.Errorf("run(check) with no path = %d, want 2", code)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		args []string
		want slog.Level
	}{
		{nil, slog.LevelInfo},
		{[]string{"-v"}, slog.LevelDebug},
		{[]string{"--verbose"}, slog.LevelDebug},
		{[]string{"-q"}, slog.LevelWarn},
	}
	for _, test := range tests {
		logger := newLogger(test.args)
		if !logger.Enabled(context.Background(), test.want) {
			t.Errorf("newLogger(%v) not enabled at %v", test.args, test.want)
		}
	}
}
