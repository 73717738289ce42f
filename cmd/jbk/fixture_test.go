// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jbk-format/jbk/lib/directory"
	"github.com/jbk-format/jbk/lib/jbk"
	"github.com/jbk-format/jbk/lib/manifest"
	"github.com/jbk-format/jbk/lib/pack"
)

// buildFixture writes a small single-file container (one content pack,
// one blob, one entry store with a content-address field and an
// index) to dir/test.jbk and returns its path plus the blob's content
// address, for cmd/jbk's tests to open and inspect.
func buildFixture(t *testing.T, dir string) (path string, addr jbk.ContentAddress) {
	t.Helper()

	w, err := jbk.NewWriter(nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	packID := w.NewContentPack()
	addr, err = w.AddBlob(packID, []byte("the jubako payload"))
	if err != nil {
		t.Fatalf("AddBlob: %v", err)
	}

	layout := directory.Layout{Common: []directory.Property{
		{Kind: directory.KindUnsignedInt, Width: 4},
		{Kind: directory.KindContentAddress, PackIDWidth: 1, ContentIDWidth: 4},
	}}
	for _, p := range layout.Common {
		layout.EntrySize += p.RecordWidth()
	}
	schema := directory.Schema{Common: []directory.FieldSpec{
		{Name: "id", Kind: directory.KindUnsignedInt},
		{Name: "blob", Kind: directory.KindContentAddress},
	}}
	entryStoreIdx, err := w.NewEntryStore(layout, schema)
	if err != nil {
		t.Fatalf("NewEntryStore: %v", err)
	}
	addrBytes, err := jbk.EncodeContentAddress(addr, 1, 4)
	if err != nil {
		t.Fatalf("EncodeContentAddress: %v", err)
	}
	if _, err := w.AddEntry(entryStoreIdx, 0, map[string]directory.Value{
		"id":   {Kind: directory.KindUnsignedInt, Uint: 1},
		"blob": {Kind: directory.KindContentAddress, Bytes: addrBytes},
	}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	w.AddIndex(entryStoreIdx, "id")

	result, err := w.Finalize(nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	var buf bytes.Buffer
	if _, err := result.WriteContainer(&buf); err != nil {
		t.Fatalf("WriteContainer: %v", err)
	}

	path = filepath.Join(dir, "test.jbk")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path, addr
}

// contentPackInfo returns the manifest.PackInfo naming the fixture's
// content pack, for tests that need its UUID.
func contentPackInfo(t *testing.T, path string) manifest.PackInfo {
	t.Helper()
	r, err := jbk.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	for _, info := range r.Manifest().AllPackInfos() {
		if info.PackKind == pack.KindContent {
			return info
		}
	}
	t.Fatal("fixture has no content pack")
	return manifest.PackInfo{}
}

// captureStdout captures stdout output produced during fn.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = writer

	fn()

	writer.Close()
	os.Stdout = original

	var buf bytes.Buffer
	io.Copy(&buf, reader)
	reader.Close()
	return buf.String()
}
