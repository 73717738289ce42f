// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package jbk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/config"
	"github.com/jbk-format/jbk/lib/container"
	"github.com/jbk-format/jbk/lib/content"
	"github.com/jbk-format/jbk/lib/directory"
	"github.com/jbk-format/jbk/lib/manifest"
	"github.com/jbk-format/jbk/lib/pack"
)

// entryStoreAccumulator holds one entry store's records and the
// decoded values each record was built from, in insertion order until
// [Writer.Finalize] applies any declared sort.
type entryStoreAccumulator struct {
	layoutIdx int
	decoder   *directory.Decoder
	records   [][]byte
	values    []map[string]directory.Value
}

// indexSpec is one index [Writer.AddIndex] declared: a sort key over
// one entry store, applied at finalize time.
type indexSpec struct {
	entryStoreIdx int
	keyField      string
}

// Writer is the writer orchestrator: it accepts blobs into one or
// more content packs, entries into one or more entry stores, and
// index declarations, then at [Writer.Finalize] runs spec §4.10's
// five-step sequence — sort, finalize every content pack, finalize
// the directory pack, finalize the manifest, and optionally
// concatenate into a container.
type Writer struct {
	cfg   *config.WriterConfig
	codec content.CompressionKind

	contentBuilders []*content.Builder

	dirBuilder  *directory.Builder
	valueStores []*directory.IndexedStoreBuilder
	entryStores []*entryStoreAccumulator
	indexes     []indexSpec
}

// NewWriter creates an empty writer orchestrator. cfg may be nil to
// use [config.DefaultWriterConfig].
func NewWriter(cfg *config.WriterConfig) (*Writer, error) {
	if cfg == nil {
		cfg = config.DefaultWriterConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("jbk: %w", err)
	}
	codec, err := content.ParseCompressionKind(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("jbk: %w", err)
	}
	return &Writer{
		cfg:        cfg,
		codec:      codec,
		dirBuilder: directory.NewBuilder(cfg.AppVendorID),
	}, nil
}

// NewContentPack opens a new content pack and returns the packId
// future [ContentAddress]es into it should carry.
func (w *Writer) NewContentPack() uint16 {
	w.contentBuilders = append(w.contentBuilders, content.NewBuilder(w.cfg.AppVendorID, w.codec, w.cfg.ClusterSizeThreshold, w.cfg.EntropyThreshold))
	return uint16(len(w.contentBuilders) - 1)
}

// AddBlob stores data in the content pack named by packID, returning
// the address a directory entry can later reference it by.
func (w *Writer) AddBlob(packID uint16, data []byte) (ContentAddress, error) {
	if int(packID) >= len(w.contentBuilders) {
		return ContentAddress{}, fmt.Errorf("jbk: no content pack %d; call NewContentPack first", packID)
	}
	idx, err := w.contentBuilders[packID].AddBlob(data)
	if err != nil {
		return ContentAddress{}, fmt.Errorf("jbk: adding blob to pack %d: %w", packID, err)
	}
	return ContentAddress{PackID: packID, ContentID: uint32(idx)}, nil
}

// NewValueStore opens a new indexed value store for deported
// char-array or deported-integer properties, returning the store id
// [directory.Property.StoreID]/[directory.Property.VariableStoreID]
// must name. sorted enables adjacent-duplicate dedup, matching spec
// §4.4's "deduplication at write" — only meaningful if the caller adds
// values in non-decreasing order.
func (w *Writer) NewValueStore(sorted bool) int {
	w.valueStores = append(w.valueStores, directory.NewIndexedStoreBuilder(sorted))
	return len(w.valueStores) - 1
}

// NewEntryStore declares a new entry store sharing layout, binding
// schema to it up front so every [Writer.AddEntry] call encodes
// through one precomputed plan. Returns the entry store's index.
func (w *Writer) NewEntryStore(layout directory.Layout, schema directory.Schema) (int, error) {
	decoder, err := directory.Bind(layout, schema)
	if err != nil {
		return 0, fmt.Errorf("jbk: binding entry store layout: %w", err)
	}
	layoutIdx := w.dirBuilder.AddLayout(layout)
	w.entryStores = append(w.entryStores, &entryStoreAccumulator{layoutIdx: layoutIdx, decoder: decoder})
	return len(w.entryStores) - 1, nil
}

// AddEntry encodes values as a new record in entryStoreIdx's store,
// deporting any char-array/deported-integer fields into their bound
// value stores. variant selects the layout's variant tail; pass 0 for
// a layout with no variants.
//
// The returned ordinal is only stable until [Writer.Finalize] applies
// a sort declared by [Writer.AddIndex] against this entry store; a
// caller that needs the post-sort ordinal looks it up via
// [directory.Index.LocateByKey] after the pack is written.
func (w *Writer) AddEntry(entryStoreIdx int, variant int, values map[string]directory.Value) (bases.Idx, error) {
	if entryStoreIdx < 0 || entryStoreIdx >= len(w.entryStores) {
		return 0, fmt.Errorf("jbk: entry store index %d out of range [0, %d)", entryStoreIdx, len(w.entryStores))
	}
	acc := w.entryStores[entryStoreIdx]

	stores := make(map[int]directory.ValueStoreBuilder, len(w.valueStores))
	for i, vs := range w.valueStores {
		stores[i] = vs
	}

	record, err := acc.decoder.Encode(variant, values, stores)
	if err != nil {
		return 0, fmt.Errorf("jbk: encoding entry for store %d: %w", entryStoreIdx, err)
	}
	ordinal := bases.Idx(len(acc.records))
	acc.records = append(acc.records, record)
	acc.values = append(acc.values, values)
	return ordinal, nil
}

// AddIndex declares that entryStoreIdx's records are sorted ascending
// by keyField and indexed under that order (spec §4.10 step 4). At
// most one keyField per entry store is supported — a store with
// entries sorted one way cannot simultaneously present a second
// order.
func (w *Writer) AddIndex(entryStoreIdx int, keyField string) {
	w.indexes = append(w.indexes, indexSpec{entryStoreIdx: entryStoreIdx, keyField: keyField})
}

// sortEntryStore reorders acc's records (and their source values, kept
// in lockstep) ascending by keyField's declared comparison order.
func (w *Writer) sortEntryStore(accIdx int, keyField string) error {
	acc := w.entryStores[accIdx]
	prop, ok := acc.decoder.FieldProperty(keyField)
	if !ok {
		return fmt.Errorf("jbk: entry store %d has no field %q to sort by", accIdx, keyField)
	}

	order := make([]int, len(acc.records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		return directory.CompareValues(prop.Kind, acc.values[a][keyField], acc.values[b][keyField]) < 0
	})

	sortedRecords := make([][]byte, len(order))
	sortedValues := make([]map[string]directory.Value, len(order))
	for i, src := range order {
		sortedRecords[i] = acc.records[src]
		sortedValues[i] = acc.values[src]
	}
	acc.records = sortedRecords
	acc.values = sortedValues
	return nil
}

// SealedPack is one finalized pack's rendered bytes and parsed header,
// common to every pack kind this writer produces. A caller writing
// split files uses Header.UUID and Header.PackSize to build the
// PackInfo/packLocation pair for the pack it wrote to its own file.
type SealedPack struct {
	Header pack.Header
	Bytes  []byte
}

func sealPack(write func(w io.Writer) (uuid.UUID, error)) (SealedPack, error) {
	var buf bytes.Buffer
	if _, err := write(&buf); err != nil {
		return SealedPack{}, err
	}
	header, err := pack.ParseHeader(buf.Bytes()[:pack.HeaderSize])
	if err != nil {
		return SealedPack{}, fmt.Errorf("jbk: internal error, wrote an unparseable header: %w", err)
	}
	return SealedPack{Header: header, Bytes: buf.Bytes()}, nil
}

// Result is everything [Writer.Finalize] produced: every sealed pack's
// raw bytes, ready to either be written out as separate files (with
// the manifest's PackLocation rewritten to match, via
// [manifest.UpdateLocator]) or concatenated into one container pack.
type Result struct {
	ContentPacks  []SealedPack
	DirectoryPack SealedPack
	ManifestPack  SealedPack
}

// Finalize runs the writer orchestrator's sequence (spec §4.10 steps
// 4-5): sort every entry store an index declared a key for, then seal
// every content pack and the directory pack, then seal a manifest
// listing them all. Both the sort and the content-pack sealing run on
// worker pools bounded by [config.WriterConfig.EffectiveWorkerCount].
// Clusters that [Writer.AddBlob] closes are compressed on the calling
// goroutine; only each content pack's last, still-open cluster is
// compressed during the concurrent seal.
//
// locate, if non-nil, is called once per content/directory pack with
// its kind, packId, and freshly-generated UUID, and its result becomes
// that pack's manifest packLocation — the split-file deployment mode,
// where each sealed pack is written to its own file rather than
// concatenated into one container. A nil locate leaves every
// packLocation empty, the single-container mode [Result.WriteContainer]
// expects.
func (w *Writer) Finalize(locate func(kind pack.Kind, packID uint16, id uuid.UUID) string) (*Result, error) {
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(w.cfg.EffectiveWorkerCount())
	sorted := make(map[int]bool)
	for _, idx := range w.indexes {
		if idx.keyField == "" || sorted[idx.entryStoreIdx] {
			continue
		}
		sorted[idx.entryStoreIdx] = true
		spec := idx
		g.Go(func() error {
			return w.sortEntryStore(spec.entryStoreIdx, spec.keyField)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, acc := range w.entryStores {
		w.dirBuilder.AddEntryStore(acc.layoutIdx, bases.EntryCount(len(acc.records)), flattenRecords(acc.records))
	}
	for _, idx := range w.indexes {
		acc := w.entryStores[idx.entryStoreIdx]
		w.dirBuilder.AddIndex(idx.entryStoreIdx, idx.keyField, 0, bases.EntryCount(len(acc.records)))
	}
	for _, vs := range w.valueStores {
		w.dirBuilder.AddValueStore(vs.Write())
	}

	result := &Result{ContentPacks: make([]SealedPack, len(w.contentBuilders))}
	sealGroup, _ := errgroup.WithContext(context.Background())
	sealGroup.SetLimit(w.cfg.EffectiveWorkerCount())
	for i, cb := range w.contentBuilders {
		i, cb := i, cb
		sealGroup.Go(func() error {
			sealed, err := sealPack(cb.Write)
			if err != nil {
				return fmt.Errorf("jbk: sealing content pack %d: %w", i, err)
			}
			result.ContentPacks[i] = sealed
			return nil
		})
	}
	if err := sealGroup.Wait(); err != nil {
		return nil, err
	}

	dirSealed, err := sealPack(w.dirBuilder.Write)
	if err != nil {
		return nil, fmt.Errorf("jbk: sealing directory pack: %w", err)
	}
	result.DirectoryPack = dirSealed

	if locate == nil {
		locate = func(pack.Kind, uint16, uuid.UUID) string { return "" }
	}

	manifestBuilder := manifest.NewBuilder(w.cfg.AppVendorID)
	manifestBuilder.SetDirectoryPackInfo(packInfoFor(dirSealed.Header, 0, pack.KindDirectory,
		locate(pack.KindDirectory, 0, dirSealed.Header.UUID)))
	for i, sealed := range result.ContentPacks {
		packID := uint16(i)
		manifestBuilder.AddPackInfo(packInfoFor(sealed.Header, packID, pack.KindContent,
			locate(pack.KindContent, packID, sealed.Header.UUID)))
	}

	var manifestBuf bytes.Buffer
	if err := manifestBuilder.Write(&manifestBuf); err != nil {
		return nil, fmt.Errorf("jbk: sealing manifest pack: %w", err)
	}
	manifestHeader, err := pack.ParseHeader(manifestBuf.Bytes()[:pack.HeaderSize])
	if err != nil {
		return nil, fmt.Errorf("jbk: internal error, wrote an unparseable manifest header: %w", err)
	}
	result.ManifestPack = SealedPack{Header: manifestHeader, Bytes: manifestBuf.Bytes()}

	return result, nil
}

// packInfoFor builds the [manifest.PackInfo] record for a sealed pack.
// location is empty for a pack that will live in the same container as
// the manifest, or a caller-chosen path/file: URL for the split-file
// deployment mode (see [Writer.Finalize]'s locate parameter).
func packInfoFor(header pack.Header, packID uint16, kind pack.Kind, location string) manifest.PackInfo {
	return manifest.PackInfo{
		UUID:     header.UUID,
		PackSize: header.PackSize,
		PackCheckInfoPos: bases.SizedOffset{
			Offset: header.CheckInfoPos,
			Size:   bases.Size(header.PackSize) - bases.Size(header.CheckInfoPos),
		},
		PackID:       packID,
		PackKind:     kind,
		PackLocation: location,
	}
}

// WriteContainer concatenates every sealed pack from a prior
// [Writer.Finalize] — every content pack, the directory pack, and the
// manifest — into one container pack written to out (spec §4.10's
// "optionally concatenate into a container pack").
func (result *Result) WriteContainer(out io.Writer) (uuid.UUID, error) {
	cb := container.NewBuilder(0)
	for _, sealed := range result.ContentPacks {
		cb.AddPack(sealed.Header.UUID, sealed.Bytes)
	}
	cb.AddPack(result.DirectoryPack.Header.UUID, result.DirectoryPack.Bytes)
	cb.AddPack(result.ManifestPack.Header.UUID, result.ManifestPack.Bytes)
	return cb.Write(out)
}

// flattenRecords concatenates a slice of equal-length records into one
// entry store body, the flat byte layout [directory.Builder.AddEntryStore]
// expects.
func flattenRecords(records [][]byte) []byte {
	if len(records) == 0 {
		return nil
	}
	out := make([]byte, 0, len(records)*len(records[0]))
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}
