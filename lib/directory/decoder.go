// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"fmt"

	"github.com/jbk-format/jbk/lib/bases"
)

// FieldSpec is the caller's expectation for one named field: which
// property kind it must decode from, used by [Bind] to reject a
// layout/schema mismatch up front rather than silently truncating or
// misreading bytes at decode time.
type FieldSpec struct {
	Name string
	Kind PropertyKind
}

// Schema names the fields a caller wants out of every record sharing
// one layout. Common lines up 1:1 with [Layout.Common]; Variants[i]
// lines up 1:1 with Layout.Variants[i].Properties. A field the caller
// doesn't care about (padding, or a property it has no use for) is
// named with an empty string and is skipped at decode time.
type Schema struct {
	Common   []FieldSpec
	Variants [][]FieldSpec
}

// fieldPlan is one property's precomputed decode step: where its
// bytes start in the record (meaningless if the property is
// defaulted) and the property itself.
type fieldPlan struct {
	name     string
	offset   int
	property Property
}

// Decoder is a layout/schema pair's precomputed access plan: for any
// record sharing Layout, Decode reads out exactly the fields Schema
// named, without re-deriving property byte offsets each call.
type Decoder struct {
	layout       Layout
	common       []fieldPlan
	variantID    int // offset of the variant-id byte in the record, -1 if none
	variantPlans [][]fieldPlan
}

// Bind validates that schema matches layout property-for-property
// (same count, same kind at each position) and returns a [Decoder]
// that can decode records in one pass. A mismatch is rejected outright
// — the caller asked for a specific shape and got a different one.
func Bind(layout Layout, schema Schema) (*Decoder, error) {
	if len(schema.Common) != len(layout.Common) {
		return nil, fmt.Errorf("bind: schema has %d common fields, layout has %d", len(schema.Common), len(layout.Common))
	}
	if len(schema.Variants) != len(layout.Variants) {
		return nil, fmt.Errorf("bind: schema has %d variants, layout has %d", len(schema.Variants), len(layout.Variants))
	}

	common, offset, variantID, err := bindPropertyList(layout.Common, schema.Common, 0)
	if err != nil {
		return nil, fmt.Errorf("bind: common part: %w", err)
	}

	variantPlans := make([][]fieldPlan, len(layout.Variants))
	for i, v := range layout.Variants {
		plans, _, _, err := bindPropertyList(v.Properties, schema.Variants[i], offset)
		if err != nil {
			return nil, fmt.Errorf("bind: variant %d: %w", i, err)
		}
		variantPlans[i] = plans
	}

	return &Decoder{layout: layout, common: common, variantID: variantID, variantPlans: variantPlans}, nil
}

// bindPropertyList walks one property list (common or one variant's
// tail) alongside its field specs, returning per-field plans, the
// byte offset just past the list, and the byte offset of a variant-id
// property if one was found (-1 otherwise).
func bindPropertyList(props []Property, specs []FieldSpec, startOffset int) ([]fieldPlan, int, int, error) {
	plans := make([]fieldPlan, 0, len(props))
	offset := startOffset
	variantID := -1
	for i, p := range props {
		spec := specs[i]
		if spec.Name != "" && spec.Kind != p.Kind {
			return nil, 0, -1, fmt.Errorf("field %d (%q): schema wants kind %s, layout has %s", i, spec.Name, spec.Kind, p.Kind)
		}
		if p.Kind == KindVariantID {
			variantID = offset
		}
		plans = append(plans, fieldPlan{name: spec.Name, offset: offset, property: p})
		offset += p.RecordWidth()
	}
	return plans, offset, variantID, nil
}

// Value is one decoded field. Exactly one of Uint/Int/Bytes is
// meaningful, chosen by Kind.
type Value struct {
	Kind  PropertyKind
	Uint  uint64
	Int   int64
	Bytes []byte
}

// Decode reads every named field out of record, resolving deported
// and variable-length char-array values through stores (keyed by
// property StoreID / VariableStoreID; nil is fine if the layout has
// no deported or variable-length properties).
func (d *Decoder) Decode(record []byte, stores map[int]ValueStore) (map[string]Value, error) {
	if len(record) != d.layout.EntrySize {
		return nil, fmt.Errorf("decode: record is %d bytes, layout entrySize is %d", len(record), d.layout.EntrySize)
	}

	out := make(map[string]Value)
	for _, fp := range d.common {
		if err := decodeField(fp, record, stores, out); err != nil {
			return nil, err
		}
	}

	if d.variantID < 0 {
		return out, nil
	}
	variant := int(record[d.variantID])
	if variant < 0 || variant >= len(d.variantPlans) {
		return nil, fmt.Errorf("decode: record selects variant %d, layout has %d", variant, len(d.variantPlans))
	}
	for _, fp := range d.variantPlans[variant] {
		if err := decodeField(fp, record, stores, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeField(fp fieldPlan, record []byte, stores map[int]ValueStore, out map[string]Value) error {
	if fp.name == "" {
		return nil
	}
	p := fp.property
	var raw []byte
	if p.HasDefault {
		raw = p.Default
	} else {
		width := p.RecordWidth()
		raw = record[fp.offset : fp.offset+width]
	}

	v, err := decodeValue(p, raw, stores)
	if err != nil {
		return fmt.Errorf("decode field %q: %w", fp.name, err)
	}
	out[fp.name] = v
	return nil
}

func decodeValue(p Property, raw []byte, stores map[int]ValueStore) (Value, error) {
	switch p.Kind {
	case KindPadding:
		return Value{Kind: p.Kind}, nil
	case KindUnsignedInt, KindVariantID:
		return Value{Kind: p.Kind, Uint: decodeLEUint(raw)}, nil
	case KindSignedInt:
		return Value{Kind: p.Kind, Int: decodeLEInt(raw)}, nil
	case KindContentAddress:
		return Value{Kind: p.Kind, Bytes: append([]byte(nil), raw...)}, nil
	case KindCharArray:
		return decodeCharArray(p, raw, stores)
	case KindDeportedUnsigned, KindDeportedSigned:
		return decodeDeported(p, raw, stores)
	default:
		return Value{}, fmt.Errorf("unsupported property kind %s", p.Kind)
	}
}

// decodeCharArray resolves a char-array property's value. With no
// variable store, the fixed-part bytes (minus trailing zero padding)
// are the whole value. With a variable store, the trailing min(8,
// FixedPartSize) bytes of the fixed part are a little-endian ordinal
// key into that store holding the full value; the remaining leading
// bytes are a sort-friendly prefix only, not part of the value.
func decodeCharArray(p Property, raw []byte, stores map[int]ValueStore) (Value, error) {
	if p.VariableStoreID == 0 {
		trimmed := raw
		for len(trimmed) > 0 && trimmed[len(trimmed)-1] == 0 {
			trimmed = trimmed[:len(trimmed)-1]
		}
		return Value{Kind: p.Kind, Bytes: append([]byte(nil), trimmed...)}, nil
	}
	store, ok := stores[p.VariableStoreID]
	if !ok {
		return Value{}, fmt.Errorf("char-array: no value store bound for id %d", p.VariableStoreID)
	}
	keyWidth := 8
	if keyWidth > len(raw) {
		keyWidth = len(raw)
	}
	key := decodeLEUint(raw[len(raw)-keyWidth:])
	value, err := store.Get(Key(key))
	if err != nil {
		return Value{}, fmt.Errorf("char-array: %w", err)
	}
	return Value{Kind: p.Kind, Bytes: value}, nil
}

func decodeDeported(p Property, raw []byte, stores map[int]ValueStore) (Value, error) {
	store, ok := stores[p.StoreID]
	if !ok {
		return Value{}, fmt.Errorf("deported property: no value store bound for id %d", p.StoreID)
	}
	key := decodeLEUint(raw)
	value, err := store.Get(Key(key))
	if err != nil {
		return Value{}, fmt.Errorf("deported property: %w", err)
	}
	if p.Kind == KindDeportedSigned {
		return Value{Kind: p.Kind, Int: decodeLEInt(value)}, nil
	}
	return Value{Kind: p.Kind, Uint: decodeLEUint(value)}, nil
}

func decodeLEUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func decodeLEInt(b []byte) int64 {
	v := decodeLEUint(b)
	if len(b) == 0 || len(b) >= 8 {
		return int64(v)
	}
	signBit := uint64(1) << (len(b)*8 - 1)
	if v&signBit != 0 {
		v |= ^uint64(0) << (len(b) * 8)
	}
	return int64(v)
}

// ValueStoreBuilder is the write-side counterpart of [ValueStore]: a
// value store under construction that [Decoder.Encode] can deport
// char-array and deported-integer values into. [IndexedStoreBuilder]
// satisfies this.
type ValueStoreBuilder interface {
	Add(value []byte) bases.Idx
}

// Encode is [Decoder.Decode]'s inverse: it renders values into one
// fixed-size record sharing the bound layout, deporting char-array and
// deported-integer fields into stores keyed the same way Decode reads
// them back (property StoreID / VariableStoreID). variant selects
// which of the layout's variant tails to encode; it is ignored when
// the layout has no variants.
//
// A property carrying a Default is never written (it contributes zero
// bytes to the record, matching [Property.RecordWidth]); callers may
// omit it from values entirely.
func (d *Decoder) Encode(variant int, values map[string]Value, stores map[int]ValueStoreBuilder) ([]byte, error) {
	record := make([]byte, d.layout.EntrySize)

	for _, fp := range d.common {
		if err := encodeField(fp, values, stores, record); err != nil {
			return nil, err
		}
	}

	if d.variantID < 0 {
		return record, nil
	}
	if variant < 0 || variant >= len(d.variantPlans) {
		return nil, fmt.Errorf("encode: variant %d out of range [0, %d)", variant, len(d.variantPlans))
	}
	record[d.variantID] = byte(variant)
	for _, fp := range d.variantPlans[variant] {
		if err := encodeField(fp, values, stores, record); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func encodeField(fp fieldPlan, values map[string]Value, stores map[int]ValueStoreBuilder, record []byte) error {
	p := fp.property
	if p.HasDefault || p.Kind == KindVariantID {
		// Defaulted fields contribute no bytes; the variant-id byte
		// is written by Encode itself, not per-field.
		return nil
	}
	if fp.name == "" {
		return nil
	}
	v, ok := values[fp.name]
	if !ok {
		return fmt.Errorf("encode field %q: no value supplied", fp.name)
	}
	width := p.RecordWidth()
	dst := record[fp.offset : fp.offset+width]

	switch p.Kind {
	case KindPadding:
		return nil
	case KindUnsignedInt:
		return bases.PutUint(dst, v.Uint, width)
	case KindSignedInt:
		return bases.PutUint(dst, uint64(v.Int), width)
	case KindContentAddress:
		if len(v.Bytes) != width {
			return fmt.Errorf("encode field %q: content address is %d bytes, want %d", fp.name, len(v.Bytes), width)
		}
		copy(dst, v.Bytes)
		return nil
	case KindCharArray:
		return encodeCharArray(fp.name, p, v, stores, dst)
	case KindDeportedUnsigned:
		return encodeDeported(fp.name, p, uint64ToBytes(v.Uint), stores, dst)
	case KindDeportedSigned:
		return encodeDeported(fp.name, p, uint64ToBytes(uint64(v.Int)), stores, dst)
	default:
		return fmt.Errorf("encode field %q: unsupported property kind %s", fp.name, p.Kind)
	}
}

// encodeCharArray writes value.Bytes either inline (no variable
// store) or, when the property deports its remainder, as a
// sort-friendly leading prefix followed by a little-endian ordinal key
// into the store — the exact inverse of [decodeCharArray].
func encodeCharArray(name string, p Property, value Value, stores map[int]ValueStoreBuilder, dst []byte) error {
	if p.VariableStoreID == 0 {
		if len(value.Bytes) > len(dst) {
			return fmt.Errorf("encode field %q: value of %d bytes exceeds fixed part of %d bytes", name, len(value.Bytes), len(dst))
		}
		copy(dst, value.Bytes)
		return nil
	}
	store, ok := stores[p.VariableStoreID]
	if !ok {
		return fmt.Errorf("encode field %q: no value store builder bound for id %d", name, p.VariableStoreID)
	}
	key := store.Add(value.Bytes)

	keyWidth := 8
	if keyWidth > len(dst) {
		keyWidth = len(dst)
	}
	prefixWidth := len(dst) - keyWidth
	prefix := value.Bytes
	if len(prefix) > prefixWidth {
		prefix = prefix[:prefixWidth]
	}
	copy(dst[:prefixWidth], prefix)
	return bases.PutUint(dst[prefixWidth:], uint64(key), keyWidth)
}

// encodeDeported appends data to the bound store and writes the
// resulting ordinal as the record's key field.
func encodeDeported(name string, p Property, data []byte, stores map[int]ValueStoreBuilder, dst []byte) error {
	store, ok := stores[p.StoreID]
	if !ok {
		return fmt.Errorf("encode field %q: no value store builder bound for id %d", name, p.StoreID)
	}
	key := store.Add(data)
	return bases.PutUint(dst, uint64(key), p.KeyWidth)
}

// uint64ToBytes renders v as 8 little-endian bytes, the fixed width
// [decodeLEUint]/[decodeLEInt] can reinterpret regardless of the
// deported property's own KeyWidth (which only sizes the in-record
// key, not the stored value).
func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	_ = bases.PutUint(b, v, 8)
	return b
}
