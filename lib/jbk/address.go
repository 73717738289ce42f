// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package jbk

import (
	"fmt"

	"github.com/jbk-format/jbk/lib/bases"
)

// ContentAddress identifies one blob by the pack it lives in and its
// ordinal within that pack (spec §3's "(packId, contentId)" pair).
// The on-disk byte widths of each half are a property of the owning
// layout, not of the address itself — see [DecodeContentAddress].
type ContentAddress struct {
	PackID    uint16
	ContentID uint32
}

// DecodeContentAddress splits a KindContentAddress property's raw
// bytes (as produced in [directory.Value.Bytes]) into its packId and
// contentId halves, little-endian, at the widths the owning layout's
// [directory.Property] declares (spec §3: "widths are declared in the
// owning layout").
func DecodeContentAddress(raw []byte, packIDWidth, contentIDWidth int) (ContentAddress, error) {
	if len(raw) != packIDWidth+contentIDWidth {
		return ContentAddress{}, fmt.Errorf(
			"jbk: content address is %d bytes, want %d (packId) + %d (contentId)",
			len(raw), packIDWidth, contentIDWidth)
	}
	region := bases.NewMemory(raw)
	packID, err := region.ReadUint(0, packIDWidth)
	if err != nil {
		return ContentAddress{}, fmt.Errorf("jbk: decoding content address packId: %w", err)
	}
	contentID, err := region.ReadUint(bases.Offset(packIDWidth), contentIDWidth)
	if err != nil {
		return ContentAddress{}, fmt.Errorf("jbk: decoding content address contentId: %w", err)
	}
	return ContentAddress{PackID: uint16(packID), ContentID: uint32(contentID)}, nil
}

// EncodeContentAddress renders addr to its on-disk form at the given
// widths, the inverse of [DecodeContentAddress]. packIDWidth must be 1
// or 2; contentIDWidth must be 1..4, matching the widths
// [directory.Property.encodeByte1] accepts for KindContentAddress.
func EncodeContentAddress(addr ContentAddress, packIDWidth, contentIDWidth int) ([]byte, error) {
	if packIDWidth < 1 || packIDWidth > 2 {
		return nil, fmt.Errorf("jbk: packIdWidth %d out of range [1, 2]", packIDWidth)
	}
	if contentIDWidth < 1 || contentIDWidth > 4 {
		return nil, fmt.Errorf("jbk: contentIdWidth %d out of range [1, 4]", contentIDWidth)
	}
	out := make([]byte, packIDWidth+contentIDWidth)
	if err := bases.PutUint(out[:packIDWidth], uint64(addr.PackID), packIDWidth); err != nil {
		return nil, fmt.Errorf("jbk: encoding content address packId: %w", err)
	}
	if err := bases.PutUint(out[packIDWidth:], uint64(addr.ContentID), contentIDWidth); err != nil {
		return nil, fmt.Errorf("jbk: encoding content address contentId: %w", err)
	}
	return out, nil
}
