// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"bytes"
	"fmt"

	"github.com/jbk-format/jbk/lib/bases"
)

// Index is a sorted view over a window of an [EntryStore] — entries
// [EntryOffset, EntryOffset+EntryCount) — ordered by one key field,
// supporting binary-search lookup.
type Index struct {
	store       *EntryStore
	keyDecoder  *Decoder
	keyField    string
	entryOffset bases.Idx
	entryCount  bases.EntryCount
	keyKind     PropertyKind
	stores      map[int]ValueStore
}

// keyStoreID reports the value-store id a key field's Property needs
// bound in order to Decode, if any: a deported int always needs its
// StoreID, and a char-array needs its VariableStoreID only when it is
// actually deported (id 0 means "stored inline, no store needed").
func keyStoreID(kind PropertyKind, p Property) (int, bool) {
	switch kind {
	case KindDeportedUnsigned, KindDeportedSigned:
		return p.StoreID, true
	case KindCharArray:
		if p.VariableStoreID != 0 {
			return p.VariableStoreID, true
		}
	}
	return 0, false
}

// NewIndex builds an index over store's [entryOffset, entryOffset+
// entryCount) window, ordered by the field named keyField (must be
// present in decoder's schema). The caller is responsible for having
// sorted that window by the same key at build time; NewIndex trusts
// the pack's own invariant rather than re-sorting or re-verifying
// order on every open (a corrupt pack fails at lookup time instead,
// via a binary search that silently returns wrong results — callers
// wanting an up-front check should run [Index.VerifySorted]).
//
// stores supplies the value store backing keyField when keyField is
// deported (a [KindDeportedUnsigned]/[KindDeportedSigned] field, or a
// [KindCharArray] field with a non-zero VariableStoreID) — nil is fine
// when keyField needs no store.
func NewIndex(store *EntryStore, decoder *Decoder, keyField string, entryOffset bases.Idx, entryCount bases.EntryCount, stores map[int]ValueStore) (*Index, error) {
	kind, ok := decoder.fieldKind(keyField)
	if !ok {
		return nil, fmt.Errorf("index: key field %q not present in decoder's schema", keyField)
	}
	prop, _ := decoder.FieldProperty(keyField)
	if storeID, needed := keyStoreID(kind, prop); needed {
		if _, bound := stores[storeID]; !bound {
			return nil, fmt.Errorf("index: key field %q needs value store %d, but none was supplied", keyField, storeID)
		}
	}
	if uint64(entryOffset)+uint64(entryCount) > uint64(store.Count()) {
		return nil, fmt.Errorf("index: window [%d, %d) exceeds store of %d entries", entryOffset, uint64(entryOffset)+uint64(entryCount), store.Count())
	}
	// Bind a decoder naming only keyField, so binary search never
	// touches a value store for some other field elsewhere in the
	// record — the map above is only ever consulted for keyField
	// itself, if keyField needs it.
	keyDecoder, err := Bind(decoder.layout, decoder.soloSchema(keyField))
	if err != nil {
		return nil, fmt.Errorf("index: binding solo decoder for key field %q: %w", keyField, err)
	}
	return &Index{
		store:       store,
		keyDecoder:  keyDecoder,
		keyField:    keyField,
		entryOffset: entryOffset,
		entryCount:  entryCount,
		keyKind:     kind,
		stores:      stores,
	}, nil
}

// soloSchema rebuilds the [Schema] that produced d, with every field
// but keyField renamed to "" — the schema a search-only decoder needs
// so [Decoder.Decode] never touches a value store for a field the
// search doesn't care about.
func (d *Decoder) soloSchema(keyField string) Schema {
	soloSpecs := func(plans []fieldPlan) []FieldSpec {
		specs := make([]FieldSpec, len(plans))
		for i, fp := range plans {
			if fp.name == keyField {
				specs[i] = FieldSpec{Name: fp.name, Kind: fp.property.Kind}
			} else {
				specs[i] = FieldSpec{Name: "", Kind: fp.property.Kind}
			}
		}
		return specs
	}
	schema := Schema{
		Common:   soloSpecs(d.common),
		Variants: make([][]FieldSpec, len(d.variantPlans)),
	}
	for i, plans := range d.variantPlans {
		schema.Variants[i] = soloSpecs(plans)
	}
	return schema
}

// fieldKind returns the PropertyKind bound to name, if any.
func (d *Decoder) fieldKind(name string) (PropertyKind, bool) {
	p, ok := d.FieldProperty(name)
	return p.Kind, ok
}

// FieldProperty returns the full [Property] bound to name (searching
// the common part, then every variant tail), so a caller decoding a
// [KindContentAddress] field can recover its PackIDWidth/
// ContentIDWidth — information [Value] itself does not carry.
func (d *Decoder) FieldProperty(name string) (Property, bool) {
	for _, fp := range d.common {
		if fp.name == name {
			return fp.property, true
		}
	}
	for _, plans := range d.variantPlans {
		for _, fp := range plans {
			if fp.name == name {
				return fp.property, true
			}
		}
	}
	return Property{}, false
}

// CompareValues orders two decoded values of the same PropertyKind the
// way a sorted [Index] does: lexicographic byte comparison for
// char-array/content-address values, numeric comparison (with the
// correct signed/unsigned semantics) for integers. Exported so a
// writer can sort entries by a field's natural order before declaring
// an index over them, the same order [Index.LocateByKey] searches.
func CompareValues(kind PropertyKind, a, b Value) int {
	return compareValues(kind, a, b)
}

// compareValues orders two decoded values by their declared type:
// lexicographic byte comparison for char-array/content-address
// values, numeric comparison (with the correct signed/unsigned
// semantics) for integers.
func compareValues(kind PropertyKind, a, b Value) int {
	switch kind {
	case KindSignedInt, KindDeportedSigned:
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	case KindUnsignedInt, KindVariantID, KindDeportedUnsigned:
		switch {
		case a.Uint < b.Uint:
			return -1
		case a.Uint > b.Uint:
			return 1
		default:
			return 0
		}
	default:
		return bytes.Compare(a.Bytes, b.Bytes)
	}
}

// LocateByKey binary-searches the index's window for an entry whose
// keyField value equals key, returning its ordinal within the full
// entry store and true, or false if no entry matches.
func (idx *Index) LocateByKey(key Value) (bases.Idx, bool, error) {
	lo, hi := 0, int(idx.entryCount)
	for lo < hi {
		mid := lo + (hi-lo)/2
		ordinal := idx.entryOffset + bases.Idx(mid)
		record, err := idx.store.Get(ordinal)
		if err != nil {
			return 0, false, err
		}
		values, err := idx.keyDecoder.Decode(record, idx.stores)
		if err != nil {
			return 0, false, fmt.Errorf("index: decoding entry %d: %w", ordinal, err)
		}
		cmp := compareValues(idx.keyKind, values[idx.keyField], key)
		switch {
		case cmp < 0:
			lo = mid + 1
		case cmp > 0:
			hi = mid
		default:
			return ordinal, true, nil
		}
	}
	return 0, false, nil
}

// VerifySorted confirms the index's window is non-decreasing by
// keyField, catching a corrupt or mis-built index before any lookup
// can silently return a wrong answer.
func (idx *Index) VerifySorted() error {
	var prev Value
	havePrev := false
	for i := bases.EntryCount(0); i < idx.entryCount; i++ {
		ordinal := idx.entryOffset + bases.Idx(i)
		record, err := idx.store.Get(ordinal)
		if err != nil {
			return err
		}
		values, err := idx.keyDecoder.Decode(record, idx.stores)
		if err != nil {
			return fmt.Errorf("index: decoding entry %d: %w", ordinal, err)
		}
		v := values[idx.keyField]
		if havePrev && compareValues(idx.keyKind, prev, v) > 0 {
			return fmt.Errorf("index: entry %d is out of order relative to entry %d", ordinal, ordinal-1)
		}
		prev, havePrev = v, true
	}
	return nil
}
