// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory implements the directory pack: value stores,
// self-describing entry layouts with variants and deportation, entry
// stores, and sorted indexes with binary-search lookup.
package directory

import (
	"fmt"

	"github.com/jbk-format/jbk/lib/bases"
)

// StoreKind discriminates the two value-store tail shapes.
type StoreKind byte

const (
	// StorePlain addresses values by absolute byte offset; length is
	// inferred by the caller's layout, not stored.
	StorePlain StoreKind = 0
	// StoreIndexed addresses values by ordinal and carries its own
	// offset table, so length is always known to the store itself.
	StoreIndexed StoreKind = 1
)

// ValueStore is a byte-addressed collection of opaque value blobs
// shared by deported properties across an entry store. A directory
// pack holds zero or more of these, referenced by index from
// property complement bytes.
type ValueStore interface {
	Kind() StoreKind
	// Get returns the raw bytes stored at the given key. For a plain
	// store the key is a byte [bases.Offset]; for an indexed store it
	// is an ordinal [bases.Idx]. Both satisfy the uint64 interface so
	// callers can keep a single Key type; see [Key].
	Get(key Key) ([]byte, error)
}

// Key addresses a value inside a [ValueStore] — a byte offset for a
// plain store, an ordinal for an indexed one. The store that produced
// the key knows which interpretation applies.
type Key uint64

// PlainStore holds its values back to back with no inline length; a
// value's end is implied by the offset of whatever the caller reads
// next (the end of its own layout property, or the store's dataSize
// for a trailing value).
type PlainStore struct {
	data []byte
}

// NewPlainStore wraps raw store bytes (the store's data region, not
// including its tail) for reading.
func NewPlainStore(data []byte) *PlainStore {
	return &PlainStore{data: data}
}

func (s *PlainStore) Kind() StoreKind { return StorePlain }

// Get returns bytes starting at the offset key runs to end, the
// usual shape for a Pascal-string or fixed-width deported value whose
// length the layout already knows.
func (s *PlainStore) Get(key Key) ([]byte, error) {
	if uint64(key) > uint64(len(s.data)) {
		return nil, fmt.Errorf("plain value store: offset %d beyond %d bytes of data", key, len(s.data))
	}
	return s.data[key:], nil
}

// GetRange returns the byte range [start, start+length) — used when
// the layout declares a fixed deported value width.
func (s *PlainStore) GetRange(start bases.Offset, length int) ([]byte, error) {
	end := uint64(start) + uint64(length)
	if end > uint64(len(s.data)) {
		return nil, fmt.Errorf("plain value store: range [%d, %d) beyond %d bytes of data", start, end, len(s.data))
	}
	return s.data[start:end], nil
}

// IndexedStore holds values addressed by ordinal, with its own offset
// table (offset[0] == 0, offset[N] == dataSize).
type IndexedStore struct {
	data    []byte
	offsets []uint64 // length entryCount+1
}

// ParseIndexedStore decodes an indexed store from region (its full
// byte range, data and tail together). Every tail field is read
// backward from region's last byte, so the caller needs no separate
// knowledge of where data ends and the tail begins: kind(1) |
// entryCount(4) | offsetSize(1) | dataSize(offsetSize+1 bytes) |
// offset[1..entryCount] (each offsetSize+1 bytes), all immediately
// preceding region's final byte, with everything before that the
// store's data.
func ParseIndexedStore(region *bases.Region) (*IndexedStore, error) {
	total := bases.Offset(region.Len())
	if total < 7 {
		return nil, fmt.Errorf("indexed value store: region of %d bytes too small for a tail", total)
	}

	kindOff := total - 1
	kind, err := region.ReadUint(kindOff, 1)
	if err != nil {
		return nil, fmt.Errorf("indexed value store: kind: %w", err)
	}
	if StoreKind(kind) != StoreIndexed {
		return nil, fmt.Errorf("indexed value store: tail declares kind %d, want %d", kind, StoreIndexed)
	}

	offsetSizeByte, err := region.ReadUint(kindOff-5, 1)
	if err != nil {
		return nil, fmt.Errorf("indexed value store: offsetSize: %w", err)
	}
	width := bases.Offset(offsetSizeByte) + 1
	if width < 1 || width > 8 {
		return nil, fmt.Errorf("indexed value store: offset width %d out of range", width)
	}

	entryCountOff := kindOff - 4
	entryCountRaw, err := region.ReadUint(entryCountOff, 4)
	if err != nil {
		return nil, fmt.Errorf("indexed value store: entryCount: %w", err)
	}
	entryCount := bases.EntryCount(entryCountRaw)

	dataSizeOff := entryCountOff - 1 - width
	dataSizeRaw, err := region.ReadUint(dataSizeOff, int(width))
	if err != nil {
		return nil, fmt.Errorf("indexed value store: dataSize: %w", err)
	}
	dataSize := dataSizeRaw

	offsetsStart := dataSizeOff - bases.Offset(entryCount)*width
	offsets := make([]uint64, entryCount+1)
	offsets[0] = 0
	for i := bases.EntryCount(1); i <= entryCount; i++ {
		off := offsetsStart + bases.Offset(i-1)*width
		v, err := region.ReadUint(off, int(width))
		if err != nil {
			return nil, fmt.Errorf("indexed value store: offset[%d]: %w", i, err)
		}
		offsets[i] = v
	}
	if offsets[entryCount] != dataSize {
		return nil, fmt.Errorf("indexed value store: offset[%d]=%d does not equal dataSize=%d", entryCount, offsets[entryCount], dataSize)
	}
	if bases.Offset(dataSize) != offsetsStart {
		return nil, fmt.Errorf("indexed value store: dataSize=%d does not match data region of %d bytes", dataSize, offsetsStart)
	}

	data, err := region.Slice(0, bases.Size(dataSize))
	if err != nil {
		return nil, fmt.Errorf("indexed value store: %w", err)
	}

	return &IndexedStore{data: data.Bytes(), offsets: offsets}, nil
}

func (s *IndexedStore) Kind() StoreKind { return StoreIndexed }

// Get returns the bytes stored at ordinal key.
func (s *IndexedStore) Get(key Key) ([]byte, error) {
	idx := uint64(key)
	if idx+1 >= uint64(len(s.offsets)) {
		return nil, fmt.Errorf("indexed value store: ordinal %d out of range [0, %d)", idx, len(s.offsets)-1)
	}
	return s.data[s.offsets[idx]:s.offsets[idx+1]], nil
}

// Count returns the number of entries in the store.
func (s *IndexedStore) Count() bases.EntryCount {
	return bases.EntryCount(len(s.offsets) - 1)
}

// IndexedStoreBuilder accumulates values for a new indexed store,
// deduplicating byte-equal values when they are inserted in sorted
// order (matching the format's write-time dedup rule: only adjacent,
// already-sorted duplicates collapse — a builder fed unsorted input
// dedups nothing, by design).
type IndexedStoreBuilder struct {
	data    []byte
	offsets []uint64
	sorted  bool
}

// NewIndexedStoreBuilder creates an empty builder. If sorted is true,
// Add assumes values arrive in non-decreasing order and collapses a
// value that is byte-equal to the immediately preceding one.
func NewIndexedStoreBuilder(sorted bool) *IndexedStoreBuilder {
	return &IndexedStoreBuilder{offsets: []uint64{0}, sorted: sorted}
}

// Add appends value, returning the ordinal it can be looked up at
// (which may be the ordinal of an existing byte-equal value under
// sorted-mode dedup).
func (b *IndexedStoreBuilder) Add(value []byte) bases.Idx {
	if b.sorted && len(b.offsets) > 1 {
		last := b.data[b.offsets[len(b.offsets)-2]:b.offsets[len(b.offsets)-1]]
		if string(last) == string(value) {
			return bases.Idx(len(b.offsets) - 2)
		}
	}
	b.data = append(b.data, value...)
	b.offsets = append(b.offsets, uint64(len(b.data)))
	return bases.Idx(len(b.offsets) - 2)
}

// Count returns the number of distinct entries accumulated so far.
func (b *IndexedStoreBuilder) Count() bases.EntryCount {
	return bases.EntryCount(len(b.offsets) - 1)
}

// offsetWidth returns the smallest byte width (1..8) that can hold
// the store's total data size.
func offsetWidth(dataSize uint64) int {
	for w := 1; w <= 8; w++ {
		if dataSize < uint64(1)<<(8*w) {
			return w
		}
	}
	return 8
}

// Write renders the store as data followed by its tail, with the
// kind byte placed last so a reader holding only the total blob
// length can dispatch on [StoreKind] before parsing anything else.
func (b *IndexedStoreBuilder) Write() []byte {
	width := offsetWidth(uint64(len(b.data)))
	out := append([]byte(nil), b.data...)

	for _, off := range b.offsets[1:] {
		out, _ = bases.AppendUint(out, off, width)
	}
	out, _ = bases.AppendUint(out, uint64(len(b.data)), width)
	out = append(out, byte(width-1))
	out, _ = bases.AppendUint(out, uint64(b.Count()), 4)
	out = append(out, byte(StoreIndexed))
	return out
}

// PlainStoreBuilder accumulates values for a new plain store, written
// back to back with no inline length.
type PlainStoreBuilder struct {
	data []byte
}

// NewPlainStoreBuilder creates an empty plain-store builder.
func NewPlainStoreBuilder() *PlainStoreBuilder {
	return &PlainStoreBuilder{}
}

// Add appends value and returns the byte offset it starts at.
func (b *PlainStoreBuilder) Add(value []byte) bases.Offset {
	offset := bases.Offset(len(b.data))
	b.data = append(b.data, value...)
	return offset
}

// Write renders the store as data followed by its {dataSize,
// storeType} tail, kind last to match [IndexedStoreBuilder.Write]'s
// dispatch-by-trailing-byte convention.
func (b *PlainStoreBuilder) Write() []byte {
	out := append([]byte(nil), b.data...)
	out, _ = bases.AppendUint(out, uint64(len(b.data)), 8)
	out = append(out, byte(StorePlain))
	return out
}

// ParsePlainStore decodes a plain store from region (its full byte
// range, data and tail together), reading dataSize and the kind byte
// backward from region's last byte.
func ParsePlainStore(region *bases.Region) (*PlainStore, error) {
	total := bases.Offset(region.Len())
	if total < 9 {
		return nil, fmt.Errorf("plain value store: region of %d bytes too small for a tail", total)
	}
	kindOff := total - 1
	kind, err := region.ReadUint(kindOff, 1)
	if err != nil {
		return nil, fmt.Errorf("plain value store: kind: %w", err)
	}
	if StoreKind(kind) != StorePlain {
		return nil, fmt.Errorf("plain value store: tail declares kind %d, want %d", kind, StorePlain)
	}
	dataSize, err := region.ReadUint(kindOff-8, 8)
	if err != nil {
		return nil, fmt.Errorf("plain value store: dataSize: %w", err)
	}
	data, err := region.Slice(0, bases.Size(dataSize))
	if err != nil {
		return nil, fmt.Errorf("plain value store: %w", err)
	}
	return NewPlainStore(data.Bytes()), nil
}
