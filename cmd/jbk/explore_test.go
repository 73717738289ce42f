// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"
)

func TestCmdExploreRoot(t *testing.T) {
	dir := t.TempDir()
	path, _ := buildFixture(t, dir)

	out := captureStdout(t, func() {
		if code := cmdExplore(discardLogger(), []string{path}); code != 0 {
			t.Errorf("cmdExplore(root) = %d, want 0", code)
		}
	})
	if !strings.Contains(out, "directory pack:") {
		t.Errorf("root explore output missing directory pack summary: %q", out)
	}
}

func TestCmdExplorePacks(t *testing.T) {
	dir := t.TempDir()
	path, _ := buildFixture(t, dir)

	out := captureStdout(t, func() {
		if code := cmdExplore(discardLogger(), []string{path, "packs"}); code != 0 {
			t.Errorf("cmdExplore(packs) = %d, want 0", code)
		}
	})
	if !strings.Contains(out, "kind=content") {
		t.Errorf("packs output missing content pack: %q", out)
	}
	if !strings.Contains(out, "kind=directory") {
		t.Errorf("packs output missing directory pack: %q", out)
	}
}

func TestCmdExploreEntryStoreSummary(t *testing.T) {
	dir := t.TempDir()
	path, _ := buildFixture(t, dir)

	out := captureStdout(t, func() {
		if code := cmdExplore(discardLogger(), []string{path, "directory/entryStores/0"}); code != 0 {
			t.Errorf("cmdExplore(entryStores/0) = %d, want 0", code)
		}
	})
	if !strings.Contains(out, "1 entries") {
		t.Errorf("entry store summary output = %q, want it to mention 1 entries", out)
	}
}

func TestCmdExploreEntryStoreDecode(t *testing.T) {
	dir := t.TempDir()
	path, _ := buildFixture(t, dir)

	out := captureStdout(t, func() {
		if code := cmdExplore(discardLogger(), []string{path, "directory/entryStores/0/0"}); code != 0 {
			t.Errorf("cmdExplore(entryStores/0/0) = %d, want 0", code)
		}
	})
	if !strings.Contains(out, "f0 = 1") {
		t.Errorf("decoded entry output missing f0 field: %q", out)
	}
	if !strings.Contains(out, "f1 = content-address") {
		t.Errorf("decoded entry output missing f1 content-address field: %q", out)
	}
}

func TestCmdExploreIndex(t *testing.T) {
	dir := t.TempDir()
	path, _ := buildFixture(t, dir)

	out := captureStdout(t, func() {
		if code := cmdExplore(discardLogger(), []string{path, "directory/indexes/0"}); code != 0 {
			t.Errorf("cmdExplore(indexes/0) = %d, want 0", code)
		}
	})
	if !strings.Contains(out, "keyField=\"id\"") {
		t.Errorf("index output missing keyField: %q", out)
	}
}

func TestCmdExploreUnknownSegment(t *testing.T) {
	dir := t.TempDir()
	path, _ := buildFixture(t, dir)

	if code := cmdExplore(discardLogger(), []string{path, "bogus"}); code != 2 {
		t.Errorf("cmdExplore(bogus) = %d, want 2", code)
	}
}

func TestCmdExploreMissingPath(t *testing.T) {
	if code := cmdExplore(discardLogger(), nil); code != 2 {
		t.Errorf("cmdExplore(nil) = %d, want 2", code)
	}
}
