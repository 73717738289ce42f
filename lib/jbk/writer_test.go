// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package jbk

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/config"
	"github.com/jbk-format/jbk/lib/directory"
)

// buildEntryLayout returns the layout/schema pair used throughout this
// file's round-trip tests: an id, a sort key, a content-address blob
// reference, an inline char-array name, and a category deported
// through value store 0.
func buildEntryLayout() (directory.Layout, directory.Schema) {
	layout := directory.Layout{
		Common: []directory.Property{
			{Kind: directory.KindUnsignedInt, Width: 4},
			{Kind: directory.KindUnsignedInt, Width: 4},
			{Kind: directory.KindContentAddress, PackIDWidth: 1, ContentIDWidth: 4},
			{Kind: directory.KindCharArray, FixedPartSize: 12, VariableStoreID: 0},
			{Kind: directory.KindDeportedUnsigned, KeyWidth: 4, StoreID: 0},
		},
	}
	for _, p := range layout.Common {
		layout.EntrySize += p.RecordWidth()
	}
	schema := directory.Schema{Common: []directory.FieldSpec{
		{Name: "id", Kind: directory.KindUnsignedInt},
		{Name: "size", Kind: directory.KindUnsignedInt},
		{Name: "blob", Kind: directory.KindContentAddress},
		{Name: "name", Kind: directory.KindCharArray},
		{Name: "category", Kind: directory.KindDeportedUnsigned},
	}}
	return layout, schema
}

// fixtureRecord is the source-of-truth row for TestWriterReaderRoundTrip's
// entries, checked against what the reader decodes back out.
type fixtureRecord struct {
	name     string
	id, size uint32
	category uint32
}

func TestWriterReaderRoundTrip(t *testing.T) {
	w, err := NewWriter(&config.WriterConfig{Compression: "none", ClusterSizeThreshold: 1 << 16})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	packID := w.NewContentPack()
	blobs := map[string][]byte{
		"alpha": []byte("the quick brown fox"),
		"beta":  []byte("jumps over the lazy dog"),
		"gamma": []byte("a third distinct blob"),
	}
	addrs := make(map[string]ContentAddress)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		addr, err := w.AddBlob(packID, blobs[name])
		if err != nil {
			t.Fatalf("AddBlob(%s): %v", name, err)
		}
		addrs[name] = addr
	}

	categoryStore := w.NewValueStore(false)
	if categoryStore != 0 {
		t.Fatalf("categoryStore = %d, want 0", categoryStore)
	}

	layout, schema := buildEntryLayout()
	entryStoreIdx, err := w.NewEntryStore(layout, schema)
	if err != nil {
		t.Fatalf("NewEntryStore: %v", err)
	}

	records := []fixtureRecord{
		{name: "beta", id: 2, size: 300, category: 7},
		{name: "alpha", id: 1, size: 100, category: 7},
		{name: "gamma", id: 3, size: 200, category: 9},
	}
	for _, rec := range records {
		addrBytes, err := EncodeContentAddress(addrs[rec.name], 1, 4)
		if err != nil {
			t.Fatalf("EncodeContentAddress: %v", err)
		}
		values := map[string]directory.Value{
			"id":       {Kind: directory.KindUnsignedInt, Uint: uint64(rec.id)},
			"size":     {Kind: directory.KindUnsignedInt, Uint: uint64(rec.size)},
			"blob":     {Kind: directory.KindContentAddress, Bytes: addrBytes},
			"name":     {Kind: directory.KindCharArray, Bytes: []byte(rec.name)},
			"category": {Kind: directory.KindDeportedUnsigned, Uint: uint64(rec.category)},
		}
		if _, err := w.AddEntry(entryStoreIdx, 0, values); err != nil {
			t.Fatalf("AddEntry(%s): %v", rec.name, err)
		}
	}
	w.AddIndex(entryStoreIdx, "size")

	result, err := w.Finalize(nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	var buf bytes.Buffer
	if _, err := result.WriteContainer(&buf); err != nil {
		t.Fatalf("WriteContainer: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "test.jbk")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	dp, err := r.Directory()
	if err != nil {
		t.Fatalf("Directory: %v", err)
	}
	if dp.EntryStoreCount() != 1 || dp.IndexCount() != 1 {
		t.Fatalf("entryStoreCount/indexCount = %d/%d, want 1/1", dp.EntryStoreCount(), dp.IndexCount())
	}

	gotLayout, err := dp.Layout(0)
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	decoder, err := directory.Bind(gotLayout, schema)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	categoryValueStore, err := dp.ValueStore(0)
	if err != nil {
		t.Fatalf("ValueStore: %v", err)
	}
	stores := map[int]directory.ValueStore{0: categoryValueStore}

	store, err := dp.EntryStore(0)
	if err != nil {
		t.Fatalf("EntryStore: %v", err)
	}
	if store.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", store.Count())
	}

	var sizes []uint64
	for i := 0; i < int(store.Count()); i++ {
		raw, err := store.Get(bases.Idx(i))
		if err != nil {
			t.Fatalf("store.Get(%d): %v", i, err)
		}
		values, err := decoder.Decode(raw, stores)
		if err != nil {
			t.Fatalf("Decode(%d): %v", i, err)
		}
		sizes = append(sizes, values["size"].Uint)

		want := recordByName(records, values["name"].Bytes)
		if values["id"].Uint != uint64(want.id) {
			t.Errorf("entry %d: id = %d, want %d", i, values["id"].Uint, want.id)
		}
		if values["category"].Uint != uint64(want.category) {
			t.Errorf("entry %d: category = %d, want %d", i, values["category"].Uint, want.category)
		}

		resolved, err := r.FetchField(decoder, "blob", values)
		if err != nil {
			t.Fatalf("FetchField(%d): %v", i, err)
		}
		blob, present := resolved.Get()
		if !present {
			t.Fatalf("entry %d: blob pack resolved to Missing", i)
		}
		if !bytes.Equal(blob, blobs[string(values["name"].Bytes)]) {
			t.Errorf("entry %d: blob = %q, want %q", i, blob, blobs[string(values["name"].Bytes)])
		}
	}
	if !sort.SliceIsSorted(sizes, func(i, j int) bool { return sizes[i] < sizes[j] }) {
		t.Errorf("entry store is not sorted by size: %v", sizes)
	}

	entryStoreIdxGot, keyField, entryOffset, entryCount, err := dp.Index(0)
	if err != nil {
		t.Fatalf("Index(0): %v", err)
	}
	if entryStoreIdxGot != 0 || keyField != "size" {
		t.Fatalf("Index(0) = %d %q, want 0 size", entryStoreIdxGot, keyField)
	}
	idx, err := directory.NewIndex(store, decoder, keyField, entryOffset, entryCount, nil)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	if err := idx.VerifySorted(); err != nil {
		t.Fatalf("VerifySorted: %v", err)
	}
	ordinal, found, err := idx.LocateByKey(directory.Value{Kind: directory.KindUnsignedInt, Uint: 200})
	if err != nil {
		t.Fatalf("LocateByKey: %v", err)
	}
	if !found {
		t.Fatal("LocateByKey(200) did not find an entry")
	}
	raw, err := store.Get(ordinal)
	if err != nil {
		t.Fatalf("store.Get(%d): %v", ordinal, err)
	}
	values, err := decoder.Decode(raw, stores)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(values["name"].Bytes) != "gamma" {
		t.Errorf("LocateByKey(200) resolved to %q, want gamma", values["name"].Bytes)
	}
}

func recordByName(records []fixtureRecord, name []byte) fixtureRecord {
	for _, r := range records {
		if r.name == string(name) {
			return r
		}
	}
	panic("record not found: " + string(name))
}

func TestWriterRejectsUnknownContentPack(t *testing.T) {
	w, err := NewWriter(nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.AddBlob(0, []byte("x")); err == nil {
		t.Error("expected error adding a blob to an undeclared content pack")
	}
}

func TestWriterRejectsUnknownEntryStore(t *testing.T) {
	w, err := NewWriter(nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.AddEntry(0, 0, nil); err == nil {
		t.Error("expected error adding an entry to an undeclared entry store")
	}
}
