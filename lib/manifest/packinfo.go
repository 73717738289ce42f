// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest implements the manifest pack: the table of
// PackInfo records describing every other pack in a jbk container (its
// UUID, size, check-tail position, and a locator string), checksum
// masking that keeps locator rewrites from invalidating the manifest's
// own Blake3 digest, and locator resolution against an enclosing
// container or the filesystem.
package manifest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/pack"
)

// PackInfoSize is the fixed on-disk size of one PackInfo record,
// including its trailing per-record CRC32 (spec §6, "Manifest
// PackInfo (252 bytes, per-record CRC32 at the end)").
const PackInfoSize = 252

// maxPackLocationLen is the number of data bytes available to
// [PackInfo.PackLocation] after its one-byte Pascal length prefix.
//
// spec §3 separately names a 218-byte packLocation field and a
// 252-byte total record; summing the rest of §3's named fields against
// the §6 total leaves 211 bytes for packLocation (1 length byte + 210
// data bytes), not 218. As with the pack header's free-data width
// (see lib/pack/header.go), the §6 byte total is treated as
// authoritative over §3's narrative field size.
const maxPackLocationLen = 210

// packInfoCRCOffset is the byte offset of a PackInfo record's CRC32
// field; the CRC covers bytes [0, packInfoCRCOffset) with
// packLocation's bytes zeroed.
const packInfoCRCOffset = PackInfoSize - 4

// packLocationOffset is the byte offset, within a PackInfo record, of
// the packLocation field (length byte followed by data).
const packLocationOffset = 16 + 8 + 8 + 2 + 1 + 1 + 1

// PackInfo describes one pack reachable from a manifest: its identity,
// size, and check-tail position (so a reader never has to open the
// target pack just to locate its digest), plus how to find its bytes.
type PackInfo struct {
	UUID             uuid.UUID
	PackSize         bases.Size
	PackCheckInfoPos bases.SizedOffset
	PackID           uint16
	PackKind         pack.Kind
	PackGroup        uint8
	FreeDataID       uint8
	// PackLocation is a relative/absolute filesystem path or a file:
	// URL, used only when the pack cannot be found inside an enclosing
	// container. Empty when the pack is expected to live in the
	// container alongside the manifest.
	PackLocation string
}

// Encode renders info to its 252-byte on-disk form including the
// trailing per-record CRC32, which is computed with packLocation's
// bytes zeroed (spec §4.8).
func (info PackInfo) Encode() ([PackInfoSize]byte, error) {
	var buf [PackInfoSize]byte
	if len(info.PackLocation) > maxPackLocationLen {
		return buf, fmt.Errorf("manifest: packLocation %q exceeds %d bytes", info.PackLocation, maxPackLocationLen)
	}

	copy(buf[0:16], info.UUID[:])
	_ = bases.PutUint(buf[16:24], uint64(info.PackSize), 8)
	_ = bases.PutSizedOffset(buf[24:32], info.PackCheckInfoPos)
	_ = bases.PutUint(buf[32:34], uint64(info.PackID), 2)
	buf[34] = byte(info.PackKind)
	buf[35] = info.PackGroup
	buf[36] = info.FreeDataID

	buf[packLocationOffset] = byte(len(info.PackLocation))
	copy(buf[packLocationOffset+1:packInfoCRCOffset], info.PackLocation)

	crc := computeMaskedCRC(buf[:packInfoCRCOffset])
	_ = bases.PutCRC32(buf[packInfoCRCOffset:], crc)
	return buf, nil
}

// computeMaskedCRC computes body's CRC32 with the packLocation field
// (relative to the start of a PackInfo record) treated as zero,
// without mutating body.
func computeMaskedCRC(body []byte) uint32 {
	masked := append([]byte(nil), body...)
	end := len(masked)
	if end > packInfoCRCOffset {
		end = packInfoCRCOffset
	}
	clear(masked[packLocationOffset:end])
	return bases.ComputeCRC32(masked)
}

// ParsePackInfo decodes one 252-byte PackInfo record from the start of
// buf, verifying its per-record CRC32.
func ParsePackInfo(buf []byte) (PackInfo, error) {
	if len(buf) < PackInfoSize {
		return PackInfo{}, fmt.Errorf("manifest: PackInfo record requires %d bytes, got %d", PackInfoSize, len(buf))
	}
	buf = buf[:PackInfoSize]

	id, err := uuid.FromBytes(buf[0:16])
	if err != nil {
		return PackInfo{}, fmt.Errorf("manifest: PackInfo uuid: %w", err)
	}

	region := bases.NewMemory(buf)
	r := region.NewReader(16)

	packSize, _ := r.ReadUint(8)
	checkInfoPos, _ := r.ReadUint(8)
	packID, _ := r.ReadUint(2)
	packKind, _ := r.ReadByte()
	packGroup, _ := r.ReadByte()
	freeDataID, _ := r.ReadByte()

	locLen, _ := r.ReadByte()
	if int(locLen) > maxPackLocationLen {
		return PackInfo{}, fmt.Errorf("manifest: PackInfo packLocation length %d exceeds %d", locLen, maxPackLocationLen)
	}
	locBytes, err := r.ReadBytes(int(locLen))
	if err != nil {
		return PackInfo{}, fmt.Errorf("manifest: PackInfo packLocation: %w", err)
	}

	storedCRC, _ := bases.NewMemory(buf[packInfoCRCOffset:]).ReadUint(0, 4)
	computedCRC := computeMaskedCRC(buf[:packInfoCRCOffset])
	if uint32(storedCRC) != computedCRC {
		return PackInfo{}, fmt.Errorf("manifest: PackInfo %s fails CRC32 check (stored %#08x, computed %#08x)",
			id, uint32(storedCRC), computedCRC)
	}

	return PackInfo{
		UUID:             id,
		PackSize:         bases.Size(packSize),
		PackCheckInfoPos: bases.UnpackSizedOffset(checkInfoPos),
		PackID:           uint16(packID),
		PackKind:         pack.Kind(packKind),
		PackGroup:        packGroup,
		FreeDataID:       freeDataID,
		PackLocation:     string(locBytes),
	}, nil
}
