// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"fmt"

	"github.com/jbk-format/jbk/lib/bases"
)

// Variant is one tail property list selectable by a layout's
// variant-id property.
type Variant struct {
	Properties []Property
}

// Layout is a self-describing entry-record descriptor: a common
// property list (parsed unconditionally for every entry), optionally
// ending in a variant-id property that selects one of Variants'
// tails. EntrySize is the fixed byte width every record occupies,
// regardless of which variant it carries.
type Layout struct {
	Common    []Property
	Variants  []Variant
	EntrySize int
}

// HasVariants reports whether this layout dispatches on a variant-id.
func (l Layout) HasVariants() bool {
	return len(l.Variants) > 0
}

// variantIDIndex returns the index of the variant-id property within
// Common, or -1 if the layout has no variants.
func (l Layout) variantIDIndex() int {
	for i, p := range l.Common {
		if p.Kind == KindVariantID {
			return i
		}
	}
	return -1
}

// commonWidth returns the total record width of the common property
// list (including the variant-id property, if present).
func commonWidth(props []Property) int {
	total := 0
	for _, p := range props {
		total += p.RecordWidth()
	}
	return total
}

// Validate checks the §4.5/§4.6 structural invariants: every variant
// path sums to EntrySize, and a present variant-id property is
// exactly 1 byte wide and positioned last in Common.
func (l Layout) Validate() error {
	base := commonWidth(l.Common)

	if idx := l.variantIDIndex(); idx >= 0 {
		if idx != len(l.Common)-1 {
			return fmt.Errorf("layout: variant-id property must be the last common property, found at index %d of %d", idx, len(l.Common))
		}
		if l.Common[idx].RecordWidth() != 1 {
			return fmt.Errorf("layout: variant-id property must be exactly 1 byte wide, got %d", l.Common[idx].RecordWidth())
		}
	} else if len(l.Variants) > 0 {
		return fmt.Errorf("layout: declares %d variants but has no variant-id property", len(l.Variants))
	}

	if len(l.Variants) == 0 {
		if base != l.EntrySize {
			return fmt.Errorf("layout: common property widths sum to %d, entrySize is %d", base, l.EntrySize)
		}
		return nil
	}

	for i, v := range l.Variants {
		total := base + commonWidth(v.Properties)
		if total != l.EntrySize {
			return fmt.Errorf("layout: variant %d's path sums to %d, entrySize is %d", i, total, l.EntrySize)
		}
	}
	return nil
}

// Encode renders the layout to its on-disk byte stream:
// u16 common-property-count, each common property, u8 variant-count,
// then for each variant u16 tail-property-count and its properties,
// and finally a u32 entrySize.
func (l Layout) Encode() ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	var out []byte
	out, _ = bases.AppendUint(out, uint64(len(l.Common)), 2)
	for _, p := range l.Common {
		enc, err := p.Encode()
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
		if p.HasDefault {
			out = append(out, p.Default...)
		}
	}

	out, _ = bases.AppendUint(out, uint64(len(l.Variants)), 1)
	for _, v := range l.Variants {
		out, _ = bases.AppendUint(out, uint64(len(v.Properties)), 2)
		for _, p := range v.Properties {
			enc, err := p.Encode()
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
			if p.HasDefault {
				out = append(out, p.Default...)
			}
		}
	}

	out, _ = bases.AppendUint(out, uint64(l.EntrySize), 4)
	return out, nil
}

// ParseLayout decodes a layout from buf, taking EntrySize from the
// trailing u32; [Layout.Validate] then checks it against the sum of
// the parsed property widths, matching invariant 5's "Σ property
// widths ... = entrySize" rule.
func ParseLayout(buf []byte) (Layout, error) {
	pos := 0
	readBytes := func(n int) ([]byte, error) {
		if pos+n > len(buf) {
			return nil, fmt.Errorf("layout: truncated at byte %d, need %d more", pos, n)
		}
		b := buf[pos : pos+n]
		pos += n
		return b, nil
	}

	parsePropertyList := func(count int) ([]Property, error) {
		props := make([]Property, count)
		for i := 0; i < count; i++ {
			p, n, err := ParseProperty(buf[pos:])
			if err != nil {
				return nil, fmt.Errorf("layout: property %d: %w", i, err)
			}
			props[i] = p
			pos += n
		}
		return props, nil
	}

	commonCountBytes, err := readBytes(2)
	if err != nil {
		return Layout{}, err
	}
	commonCount := int(commonCountBytes[0]) | int(commonCountBytes[1])<<8

	common, err := parsePropertyList(commonCount)
	if err != nil {
		return Layout{}, err
	}

	variantCountBytes, err := readBytes(1)
	if err != nil {
		return Layout{}, err
	}
	variantCount := int(variantCountBytes[0])

	variants := make([]Variant, variantCount)
	for i := 0; i < variantCount; i++ {
		tailCountBytes, err := readBytes(2)
		if err != nil {
			return Layout{}, err
		}
		tailCount := int(tailCountBytes[0]) | int(tailCountBytes[1])<<8
		props, err := parsePropertyList(tailCount)
		if err != nil {
			return Layout{}, err
		}
		variants[i] = Variant{Properties: props}
	}

	entrySizeBytes, err := readBytes(4)
	if err != nil {
		return Layout{}, err
	}
	entrySize := 0
	for i := 3; i >= 0; i-- {
		entrySize = (entrySize << 8) | int(entrySizeBytes[i])
	}

	layout := Layout{Common: common, Variants: variants, EntrySize: entrySize}
	if err := layout.Validate(); err != nil {
		return Layout{}, err
	}
	return layout, nil
}
