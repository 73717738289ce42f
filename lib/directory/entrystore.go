// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"fmt"

	"github.com/jbk-format/jbk/lib/bases"
)

// EntryStore is a flat array of fixed-size entry records, all sharing
// one [Layout]. Records are addressed by ordinal, never parsed eagerly
// — callers read a record's raw bytes and hand them to a [Decoder]
// bound to the same layout.
type EntryStore struct {
	Layout Layout
	data   []byte
}

// NewEntryStore wraps data (entryCount*layout.EntrySize bytes) for
// reading.
func NewEntryStore(layout Layout, data []byte) (*EntryStore, error) {
	if layout.EntrySize <= 0 {
		return nil, fmt.Errorf("entry store: layout has non-positive entrySize %d", layout.EntrySize)
	}
	if len(data)%layout.EntrySize != 0 {
		return nil, fmt.Errorf("entry store: data length %d is not a multiple of entrySize %d", len(data), layout.EntrySize)
	}
	return &EntryStore{Layout: layout, data: data}, nil
}

// Count returns the number of records in the store.
func (s *EntryStore) Count() bases.EntryCount {
	return bases.EntryCount(len(s.data) / s.Layout.EntrySize)
}

// Get returns the raw bytes of record idx.
func (s *EntryStore) Get(idx bases.Idx) ([]byte, error) {
	n := bases.Idx(s.Count())
	if idx >= n {
		return nil, fmt.Errorf("entry store: index %d out of range [0, %d)", idx, n)
	}
	start := int(idx) * s.Layout.EntrySize
	return s.data[start : start+s.Layout.EntrySize], nil
}

// EntryStoreBuilder accumulates fixed-size records sharing one layout.
type EntryStoreBuilder struct {
	Layout Layout
	data   []byte
}

// NewEntryStoreBuilder creates an empty builder for the given layout.
func NewEntryStoreBuilder(layout Layout) *EntryStoreBuilder {
	return &EntryStoreBuilder{Layout: layout}
}

// Add appends one fully-rendered record. Callers build record bytes
// via a [Decoder]'s counterpart encode path or by hand; the builder
// only enforces the fixed width.
func (b *EntryStoreBuilder) Add(record []byte) (bases.Idx, error) {
	if len(record) != b.Layout.EntrySize {
		return 0, fmt.Errorf("entry store: record is %d bytes, layout entrySize is %d", len(record), b.Layout.EntrySize)
	}
	idx := bases.Idx(len(b.data) / b.Layout.EntrySize)
	b.data = append(b.data, record...)
	return idx, nil
}

// Count returns the number of records accumulated so far.
func (b *EntryStoreBuilder) Count() bases.EntryCount {
	return bases.EntryCount(len(b.data) / b.Layout.EntrySize)
}

// Write returns the accumulated record bytes (the entry store has no
// tail of its own; entryCount and entrySize are recovered from the
// directory pack's own index into this store).
func (b *EntryStoreBuilder) Write() []byte {
	return b.data
}
