// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/directory"
	"github.com/jbk-format/jbk/lib/jbk"
)

// cmdExplore walks a container's internal structure by a
// slash-separated key path, printing what it finds to stdout. With no
// key path it prints the top-level inventory (packs, directory pack
// summary); "packs" lists every manifest PackInfo; "directory/
// entryStores/<i>" prints one entry store's entry count; "directory/
// entryStores/<i>/<j>" decodes and dumps entry j's fields generically
// (field names f0, f1, ... since explore has no caller-supplied
// schema); "directory/indexes/<i>" dumps one index descriptor.
func cmdExplore(logger *slog.Logger, args []string) int {
	positional := positionalArgs(args)
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "error: explore requires a file path")
		return 2
	}
	path := positional[0]
	var keyPath string
	if len(positional) > 1 {
		keyPath = positional[1]
	}

	r, err := jbk.Open(path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	defer r.Close()

	var segments []string
	if keyPath != "" {
		segments = strings.Split(keyPath, "/")
	}

	if err := explore(r, segments); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	return 0
}

func explore(r *jbk.Reader, segments []string) error {
	if len(segments) == 0 {
		return exploreRoot(r)
	}
	switch segments[0] {
	case "packs":
		return explorePacks(r)
	case "directory":
		return exploreDirectory(r, segments[1:])
	default:
		return fmt.Errorf("unknown key path segment %q (expected %q or %q)", segments[0], "packs", "directory")
	}
}

func exploreRoot(r *jbk.Reader) error {
	fmt.Printf("outer pack: kind=%s uuid=%s\n", r.OuterHeader().Kind, r.OuterHeader().UUID)
	if c := r.Container(); c != nil {
		fmt.Printf("container: %d sub-packs\n", len(c.Locators))
	}
	fmt.Printf("manifest: %d packs (%d content + 1 directory)\n",
		len(r.Manifest().AllPackInfos()), len(r.Manifest().PackInfos))

	dp, err := r.Directory()
	if err != nil {
		return fmt.Errorf("directory pack: %w", err)
	}
	fmt.Printf("directory pack: %d valueStores, %d layouts, %d entryStores, %d indexes\n",
		dp.ValueStoreCount(), dp.LayoutCount(), dp.EntryStoreCount(), dp.IndexCount())
	return nil
}

func explorePacks(r *jbk.Reader) error {
	for _, info := range r.Manifest().AllPackInfos() {
		location := info.PackLocation
		if location == "" {
			location = "(enclosing container)"
		}
		fmt.Printf("pack %d: kind=%s uuid=%s size=%d location=%s\n",
			info.PackID, info.PackKind, info.UUID, info.PackSize, location)
	}
	return nil
}

func exploreDirectory(r *jbk.Reader, segments []string) error {
	dp, err := r.Directory()
	if err != nil {
		return fmt.Errorf("directory pack: %w", err)
	}
	if len(segments) == 0 {
		fmt.Printf("valueStores: %d\nlayouts: %d\nentryStores: %d\nindexes: %d\n",
			dp.ValueStoreCount(), dp.LayoutCount(), dp.EntryStoreCount(), dp.IndexCount())
		return nil
	}

	switch segments[0] {
	case "entryStores":
		return exploreEntryStore(dp, segments[1:])
	case "indexes":
		return exploreIndex(dp, segments[1:])
	default:
		return fmt.Errorf("unknown key path segment %q under directory/ (expected %q or %q)",
			segments[0], "entryStores", "indexes")
	}
}

func exploreIndex(dp *directory.DirectoryPack, segments []string) error {
	if len(segments) == 0 {
		fmt.Printf("%d indexes\n", dp.IndexCount())
		return nil
	}
	idx, err := parseIndex(segments[0])
	if err != nil {
		return err
	}
	entryStoreIdx, keyField, entryOffset, entryCount, err := dp.Index(idx)
	if err != nil {
		return err
	}
	fmt.Printf("index %d: entryStore=%d keyField=%q window=[%d, %d)\n",
		idx, entryStoreIdx, keyField, entryOffset, uint64(entryOffset)+uint64(entryCount))
	return nil
}

func exploreEntryStore(dp *directory.DirectoryPack, segments []string) error {
	if len(segments) == 0 {
		fmt.Printf("%d entry stores\n", dp.EntryStoreCount())
		return nil
	}
	storeIdx, err := parseIndex(segments[0])
	if err != nil {
		return err
	}
	store, err := dp.EntryStore(storeIdx)
	if err != nil {
		return err
	}
	if len(segments) == 1 {
		fmt.Printf("entry store %d: %d entries\n", storeIdx, store.Count())
		return nil
	}

	entryIdx, err := parseIndex(segments[1])
	if err != nil {
		return err
	}
	layout, err := layoutForEntryStore(dp, storeIdx)
	if err != nil {
		return err
	}
	record, err := store.Get(bases.Idx(entryIdx))
	if err != nil {
		return err
	}
	return dumpEntry(dp, layout, record)
}

// layoutForEntryStore recovers the [directory.Layout] an entry store
// was declared against. The directory pack doesn't expose an
// entry-store-to-layout-index mapping directly, so explore walks
// every layout index, keeping the first one whose EntrySize matches the store's record width — good enough
// for the common one-layout-per-store case this command targets.
func layoutForEntryStore(dp *directory.DirectoryPack, storeIdx int) (directory.Layout, error) {
	store, err := dp.EntryStore(storeIdx)
	if err != nil {
		return directory.Layout{}, err
	}
	if store.Count() == 0 {
		return directory.Layout{}, fmt.Errorf("entry store %d is empty; cannot infer its layout", storeIdx)
	}
	sample, err := store.Get(0)
	if err != nil {
		return directory.Layout{}, err
	}
	for i := 0; i < dp.LayoutCount(); i++ {
		layout, err := dp.Layout(i)
		if err != nil {
			return directory.Layout{}, err
		}
		if layout.EntrySize == len(sample) {
			return layout, nil
		}
	}
	return directory.Layout{}, fmt.Errorf("entry store %d: no layout matches its %d-byte record width", storeIdx, len(sample))
}

// dumpEntry decodes record against a generic schema (fields named f0,
// f1, ... over layout.Common, v<variant>_f0, ... over whichever
// variant tail the record selects) and prints every field's decoded
// value.
func dumpEntry(dp *directory.DirectoryPack, layout directory.Layout, record []byte) error {
	schema := genericSchema(layout)
	decoder, err := directory.Bind(layout, schema)
	if err != nil {
		return fmt.Errorf("binding generic schema: %w", err)
	}

	stores := make(map[int]directory.ValueStore)
	for i := 0; i < dp.ValueStoreCount(); i++ {
		vs, err := dp.ValueStore(i)
		if err != nil {
			return fmt.Errorf("value store %d: %w", i, err)
		}
		stores[i] = vs
	}

	values, err := decoder.Decode(record, stores)
	if err != nil {
		return fmt.Errorf("decoding entry: %w", err)
	}

	for _, spec := range schema.Common {
		printValue(spec.Name, values[spec.Name])
	}
	for _, tail := range schema.Variants {
		for _, spec := range tail {
			if v, ok := values[spec.Name]; ok {
				printValue(spec.Name, v)
			}
		}
	}
	return nil
}

func printValue(name string, v directory.Value) {
	switch v.Kind {
	case directory.KindUnsignedInt, directory.KindDeportedUnsigned, directory.KindVariantID:
		fmt.Printf("  %s = %d\n", name, v.Uint)
	case directory.KindSignedInt, directory.KindDeportedSigned:
		fmt.Printf("  %s = %d\n", name, v.Int)
	case directory.KindCharArray:
		fmt.Printf("  %s = %q\n", name, v.Bytes)
	case directory.KindContentAddress:
		fmt.Printf("  %s = content-address(%x)\n", name, v.Bytes)
	default:
		fmt.Printf("  %s = %x\n", name, v.Bytes)
	}
}

// genericSchema names every property in layout with a positional
// field name, so [directory.Bind] can decode an entry store's records
// without a caller-supplied schema.
func genericSchema(layout directory.Layout) directory.Schema {
	schema := directory.Schema{
		Common:   make([]directory.FieldSpec, len(layout.Common)),
		Variants: make([][]directory.FieldSpec, len(layout.Variants)),
	}
	for i, p := range layout.Common {
		name := fmt.Sprintf("f%d", i)
		if p.Kind == directory.KindPadding {
			name = ""
		}
		schema.Common[i] = directory.FieldSpec{Name: name, Kind: p.Kind}
	}
	for vi, variant := range layout.Variants {
		tail := make([]directory.FieldSpec, len(variant.Properties))
		for i, p := range variant.Properties {
			name := fmt.Sprintf("v%d_f%d", vi, i)
			if p.Kind == directory.KindPadding {
				name = ""
			}
			tail[i] = directory.FieldSpec{Name: name, Kind: p.Kind}
		}
		schema.Variants[vi] = tail
	}
	return schema
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("expected a numeric index, got %q", s)
	}
	return n, nil
}
