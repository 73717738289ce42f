// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import "fmt"

// PropertyKind is the property-type nibble (the high 4 bits of a
// property's first byte).
type PropertyKind byte

const (
	KindPadding           PropertyKind = 0b0000
	KindContentAddress    PropertyKind = 0b0001
	KindUnsignedInt       PropertyKind = 0b0010
	KindSignedInt         PropertyKind = 0b0011
	KindCharArray         PropertyKind = 0b0101
	KindVariantID         PropertyKind = 0b1000
	KindDeportedUnsigned  PropertyKind = 0b1010
	KindDeportedSigned    PropertyKind = 0b1011
)

func (k PropertyKind) String() string {
	switch k {
	case KindPadding:
		return "padding"
	case KindContentAddress:
		return "content-address"
	case KindUnsignedInt:
		return "unsigned-int"
	case KindSignedInt:
		return "signed-int"
	case KindCharArray:
		return "char-array"
	case KindVariantID:
		return "variant-id"
	case KindDeportedUnsigned:
		return "deported-unsigned"
	case KindDeportedSigned:
		return "deported-signed"
	default:
		return fmt.Sprintf("unknown(%#x)", byte(k))
	}
}

// hasDefaultFlag is the bit of a property's first byte marking a property
// whose value is a layout-inline default rather than a per-entry
// field; such a property contributes zero bytes to entrySize.
const hasDefaultFlag = 0x80

// Property is one entry in a layout's property list, already decoded
// from its on-disk byte(s) but not yet bound to any particular
// record's bytes.
type Property struct {
	Kind PropertyKind

	// Width is the property's byte width in the record (0 for
	// VariantID's dedicated 1-byte case is still 1; Padding's width is
	// the number of bytes skipped).
	Width int

	// PackIDWidth/ContentIDWidth are meaningful only for
	// KindContentAddress: the on-disk widths of the two halves of a
	// content address (1 or 2 bytes, and 1..4 bytes respectively).
	PackIDWidth    int
	ContentIDWidth int

	// FixedPartSize/VariableStoreID are meaningful only for
	// KindCharArray: the number of bytes stored inline in the record,
	// and the indexed value store holding the variable-length
	// remainder (0 if there is none and the char array is exactly
	// FixedPartSize bytes).
	FixedPartSize   int
	VariableStoreID int

	// KeyWidth/StoreID are meaningful only for KindDeportedUnsigned
	// and KindDeportedSigned: the in-record key's byte width used to
	// address the value store, and the value store's id.
	KeyWidth int
	StoreID  int

	// HasDefault marks a property whose value is the fixed Default
	// bytes rather than a per-record field.
	HasDefault bool
	Default    []byte
}

// RecordWidth returns how many bytes of the fixed-size record this
// property occupies. A defaulted property always occupies zero bytes.
func (p Property) RecordWidth() int {
	if p.HasDefault {
		return 0
	}
	switch p.Kind {
	case KindPadding, KindUnsignedInt, KindSignedInt:
		return p.Width
	case KindContentAddress:
		return p.PackIDWidth + p.ContentIDWidth
	case KindCharArray:
		return p.FixedPartSize
	case KindVariantID:
		return 1
	case KindDeportedUnsigned, KindDeportedSigned:
		return p.KeyWidth
	default:
		return 0
	}
}

// encodeByte1 renders the property's leading type/width byte. A
// second, complement byte follows for KindCharArray and the deported
// kinds (see [Property.Encode]).
func (p Property) encodeByte1() (byte, error) {
	switch p.Kind {
	case KindPadding, KindUnsignedInt, KindSignedInt:
		if p.Width < 1 || p.Width > 8 {
			return 0, fmt.Errorf("property %s: width %d out of range [1, 8]", p.Kind, p.Width)
		}
		return byte(p.Kind)<<4 | byte(p.Width-1), nil
	case KindContentAddress:
		if p.PackIDWidth < 1 || p.PackIDWidth > 2 {
			return 0, fmt.Errorf("content-address: packIdWidth %d out of range [1, 2]", p.PackIDWidth)
		}
		if p.ContentIDWidth < 1 || p.ContentIDWidth > 4 {
			return 0, fmt.Errorf("content-address: contentIdWidth %d out of range [1, 4]", p.ContentIDWidth)
		}
		low := byte(p.ContentIDWidth-1) << 1
		if p.PackIDWidth == 2 {
			low |= 0x01
		}
		return byte(p.Kind)<<4 | low, nil
	case KindCharArray:
		if p.FixedPartSize < 1 || p.FixedPartSize > 16 {
			return 0, fmt.Errorf("char-array: fixedPartSize %d out of range [1, 16]", p.FixedPartSize)
		}
		return byte(p.Kind)<<4 | byte(p.FixedPartSize-1), nil
	case KindVariantID:
		return byte(p.Kind) << 4, nil
	case KindDeportedUnsigned, KindDeportedSigned:
		if p.KeyWidth < 1 || p.KeyWidth > 8 {
			return 0, fmt.Errorf("deported property: keyWidth %d out of range [1, 8]", p.KeyWidth)
		}
		return byte(p.Kind)<<4 | byte(p.KeyWidth-1), nil
	default:
		return 0, fmt.Errorf("encode: unknown property kind %s", p.Kind)
	}
}

// Encode renders the property to its on-disk byte(s) (1 or 2 bytes,
// not counting any inline Default payload, which the layout writes
// separately once every property's header byte(s) are written).
func (p Property) Encode() ([]byte, error) {
	b1, err := p.encodeByte1()
	if err != nil {
		return nil, err
	}
	if p.HasDefault {
		b1 |= hasDefaultFlag
	}

	switch p.Kind {
	case KindContentAddress:
		return []byte{b1}, nil
	case KindCharArray:
		return []byte{b1, byte(p.VariableStoreID)}, nil
	case KindDeportedUnsigned, KindDeportedSigned:
		return []byte{b1, byte(p.StoreID)}, nil
	default:
		return []byte{b1}, nil
	}
}

// ParseProperty decodes one property from the start of buf, returning
// the property and the number of bytes consumed — including any
// inline Default payload, whose width is derived from the property's
// own decoded Kind/Width fields via [defaultByteWidth].
func ParseProperty(buf []byte) (Property, int, error) {
	if len(buf) < 1 {
		return Property{}, 0, fmt.Errorf("property: empty buffer")
	}
	b1 := buf[0]
	hasDefault := b1&hasDefaultFlag != 0
	b1 &^= hasDefaultFlag

	kind := PropertyKind(b1 >> 4)
	low := b1 & 0x0F

	var p Property
	p.Kind = kind
	p.HasDefault = hasDefault
	consumed := 1

	switch kind {
	case KindPadding, KindUnsignedInt, KindSignedInt:
		p.Width = int(low) + 1
	case KindContentAddress:
		p.ContentIDWidth = int((low>>1)&0x07) + 1
		if low&0x01 != 0 {
			p.PackIDWidth = 2
		} else {
			p.PackIDWidth = 1
		}
	case KindCharArray:
		if len(buf) < 2 {
			return Property{}, 0, fmt.Errorf("char-array property: missing complement byte")
		}
		p.FixedPartSize = int(low) + 1
		p.VariableStoreID = int(buf[1])
		consumed = 2
	case KindVariantID:
		p.Width = 1
	case KindDeportedUnsigned, KindDeportedSigned:
		if len(buf) < 2 {
			return Property{}, 0, fmt.Errorf("deported property: missing complement byte")
		}
		p.KeyWidth = int(low) + 1
		p.StoreID = int(buf[1])
		consumed = 2
	default:
		return Property{}, 0, fmt.Errorf("property: unknown type nibble %#x", byte(kind))
	}

	if hasDefault {
		width := defaultByteWidth(p)
		if len(buf) < consumed+width {
			return Property{}, 0, fmt.Errorf("property %s: truncated default value", kind)
		}
		p.Default = append([]byte(nil), buf[consumed:consumed+width]...)
		consumed += width
	}

	return p, consumed, nil
}

// defaultByteWidth returns how many inline bytes a defaulted
// property's value occupies in the layout stream, i.e. the width it
// would have contributed to entrySize had it not been defaulted.
func defaultByteWidth(p Property) int {
	switch p.Kind {
	case KindPadding, KindUnsignedInt, KindSignedInt:
		return p.Width
	case KindContentAddress:
		return p.PackIDWidth + p.ContentIDWidth
	case KindCharArray:
		return p.FixedPartSize
	case KindVariantID:
		return 1
	case KindDeportedUnsigned, KindDeportedSigned:
		return p.KeyWidth
	default:
		return 0
	}
}
