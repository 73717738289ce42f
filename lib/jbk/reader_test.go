// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package jbk

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/jbk-format/jbk/lib/directory"
	"github.com/jbk-format/jbk/lib/pack"
)

// buildSplitFixture runs a small writer session (one content pack, one
// blob, one entry store with a single content-address field, no
// index) and writes every sealed pack to its own file under dir,
// named by kind and packId, returning the manifest pack's path and
// the blob's address plus bytes for the caller to verify against.
func buildSplitFixture(t *testing.T, dir string) (manifestPath string, addr ContentAddress, blob []byte) {
	t.Helper()

	w, err := NewWriter(nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	packID := w.NewContentPack()
	blob = []byte("split deployment payload")
	addr, err = w.AddBlob(packID, blob)
	if err != nil {
		t.Fatalf("AddBlob: %v", err)
	}

	layout := directory.Layout{Common: []directory.Property{
		{Kind: directory.KindContentAddress, PackIDWidth: 1, ContentIDWidth: 4},
	}}
	layout.EntrySize = layout.Common[0].RecordWidth()
	schema := directory.Schema{Common: []directory.FieldSpec{{Name: "blob", Kind: directory.KindContentAddress}}}

	entryStoreIdx, err := w.NewEntryStore(layout, schema)
	if err != nil {
		t.Fatalf("NewEntryStore: %v", err)
	}
	addrBytes, err := EncodeContentAddress(addr, 1, 4)
	if err != nil {
		t.Fatalf("EncodeContentAddress: %v", err)
	}
	if _, err := w.AddEntry(entryStoreIdx, 0, map[string]directory.Value{
		"blob": {Kind: directory.KindContentAddress, Bytes: addrBytes},
	}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	filenames := map[uuid.UUID]string{}
	locate := func(kind pack.Kind, packID uint16, id uuid.UUID) string {
		name := fmt.Sprintf("%s-%d.jbkp", kind, packID)
		filenames[id] = name
		return name
	}
	result, err := w.Finalize(locate)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	writePack := func(sealed SealedPack) {
		name, ok := filenames[sealed.Header.UUID]
		if !ok {
			t.Fatalf("no filename recorded for pack %s", sealed.Header.UUID)
		}
		if err := os.WriteFile(filepath.Join(dir, name), sealed.Bytes, 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}
	for _, sealed := range result.ContentPacks {
		writePack(sealed)
	}
	writePack(result.DirectoryPack)

	manifestPath = filepath.Join(dir, "manifest.jbkp")
	if err := os.WriteFile(manifestPath, result.ManifestPack.Bytes, 0o644); err != nil {
		t.Fatalf("WriteFile(manifest): %v", err)
	}
	return manifestPath, addr, blob
}

func TestReaderSplitFileDeployment(t *testing.T) {
	dir := t.TempDir()
	manifestPath, addr, blob := buildSplitFixture(t, dir)

	r, err := Open(manifestPath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Container() != nil {
		t.Error("Container() should be nil for a bare manifest pack")
	}
	if err := r.Manifest().CheckIntegrity(); err != nil {
		t.Errorf("CheckIntegrity: %v", err)
	}

	resolved, err := r.FetchBlob(addr)
	if err != nil {
		t.Fatalf("FetchBlob: %v", err)
	}
	got, present := resolved.Get()
	if !present {
		t.Fatal("FetchBlob resolved to Missing")
	}
	if !bytes.Equal(got, blob) {
		t.Errorf("FetchBlob = %q, want %q", got, blob)
	}

	dp, err := r.Directory()
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	if dp.EntryStoreCount() != 1 {
		t.Fatalf("EntryStoreCount = %d, want 1", dp.EntryStoreCount())
	}
}

func TestReaderMissingContentPackResolvesToMissing(t *testing.T) {
	dir := t.TempDir()
	manifestPath, addr, _ := buildSplitFixture(t, dir)

	contentFile := filepath.Join(dir, fmt.Sprintf("%s-%d.jbkp", pack.KindContent, addr.PackID))
	if err := os.Remove(contentFile); err != nil {
		t.Fatalf("removing content pack file: %v", err)
	}

	r, err := Open(manifestPath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	resolved, err := r.FetchBlob(addr)
	if err != nil {
		t.Fatalf("FetchBlob: %v", err)
	}
	if _, present := resolved.Get(); present {
		t.Fatal("FetchBlob should resolve to Missing when the content pack file is gone")
	}
	info, ok := resolved.MissingInfo()
	if !ok {
		t.Fatal("MissingInfo should report ok=true alongside a Missing resolution")
	}
	if info.PackID != addr.PackID {
		t.Errorf("MissingInfo.PackID = %d, want %d", info.PackID, addr.PackID)
	}
}

func TestOpenRejectsUnrecognizablePack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.jbkp")
	if err := os.WriteFile(path, []byte("not a jbk pack at all"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Open(path, nil); err == nil {
		t.Error("expected Open to reject a file with no valid pack header")
	}
}
