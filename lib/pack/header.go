// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

// Package pack implements the framing common to every pack kind:
// the 64-byte header/tail pair, kind discrimination, check-tail
// integrity verification, and the typed format errors a corrupt or
// unsupported pack produces.
package pack

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
)

// Kind identifies which of the four pack layouts a header describes.
// Kind is the fourth magic byte.
type Kind byte

const (
	KindManifest  Kind = 'm'
	KindDirectory Kind = 'd'
	KindContent   Kind = 'c'
	KindContainer Kind = 'C'
)

func (k Kind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindDirectory:
		return "directory"
	case KindContent:
		return "content"
	case KindContainer:
		return "container"
	default:
		return fmt.Sprintf("unknown(%q)", byte(k))
	}
}

// HeaderSize is the fixed byte length of every pack header, and of its
// byte-swapped twin, the pack tail.
const HeaderSize = 64

// headerCRCOffset is the byte offset of the CRC32 field; the CRC
// itself covers bytes [0, headerCRCOffset).
const headerCRCOffset = 60

// magicPrefix is the first three bytes of every pack header.
var magicPrefix = [3]byte{0x6A, 0x62, 0x6B}

// CurrentMajorVersion is the only major version this implementation
// writes and the highest one it will open. The format is unstable at
// major version 0: layouts documented here are this implementation's
// concrete choice among the variants spec.md leaves open, not a
// negotiated wire contract.
const CurrentMajorVersion = 0

// freeDataSize is the combined size of the header bytes left over once
// PackCount and PacksPos (container-only fields that nonetheless
// occupy fixed positions in every header) are accounted for: 5 bytes
// at 27..32, plus 2 bytes at 58..60. Exposed to callers as a single
// contiguous free-data zone for forward-compatible per-pack metadata.
const freeDataSize = 7

// Header is the parsed form of a pack's 64-byte header (equivalently,
// its byte-swapped tail).
type Header struct {
	Kind         Kind
	AppVendorID  uint32
	MajorVersion uint8
	MinorVersion uint8
	UUID         uuid.UUID
	Flags        uint8
	PackSize     bases.Size
	CheckInfoPos bases.Offset

	// PackCount and PacksPos are only meaningful when Kind ==
	// KindContainer, but they occupy the same fixed byte positions in
	// every header (spec.md folds the container locator table pointer
	// into the generic 64-byte header rather than giving containers
	// their own header shape, unlike the original implementation).
	PackCount uint16
	PacksPos  bases.Offset

	// FreeData holds the header's 7 truly free reserved bytes,
	// available for forward-compatible application metadata. Zero on
	// write unless a caller supplies a payload; [ParseHeader] accepts
	// non-zero bytes here without a warning or error.
	FreeData [freeDataSize]byte
}

// Encode renders h into its 64-byte on-disk form, computing and
// writing the trailing CRC32 field.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	buf[0], buf[1], buf[2] = magicPrefix[0], magicPrefix[1], magicPrefix[2]
	buf[3] = byte(h.Kind)
	_ = bases.PutUint(buf[4:8], uint64(h.AppVendorID), 4)
	buf[8] = h.MajorVersion
	buf[9] = h.MinorVersion
	copy(buf[10:26], h.UUID[:])
	buf[26] = h.Flags
	copy(buf[27:32], h.FreeData[:5])
	_ = bases.PutUint(buf[32:40], uint64(h.PackSize), 8)
	_ = bases.PutUint(buf[40:48], uint64(h.CheckInfoPos), 8)
	_ = bases.PutUint(buf[48:50], uint64(h.PackCount), 2)
	_ = bases.PutUint(buf[50:58], uint64(h.PacksPos), 8)
	copy(buf[58:60], h.FreeData[5:7])

	crc := bases.ComputeCRC32(buf[:headerCRCOffset])
	_ = bases.PutCRC32(buf[60:64], crc)
	return buf
}

// Tail renders h's byte-swapped tail form: the 64 header bytes in
// reverse order.
func (h Header) Tail() [HeaderSize]byte {
	head := h.Encode()
	var tail [HeaderSize]byte
	for i, b := range head {
		tail[HeaderSize-1-i] = b
	}
	return tail
}

// ParseHeader decodes a 64-byte buffer as a pack header, validating
// the magic prefix and the header CRC32. It does not validate
// PackSize against any containing region; callers cross-check that
// separately once they know the region's length.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, newFormatError(ReasonTruncatedPack, uuid.Nil,
			fmt.Sprintf("header requires %d bytes, got %d", HeaderSize, len(buf)))
	}
	buf = buf[:HeaderSize]

	if buf[0] != magicPrefix[0] || buf[1] != magicPrefix[1] || buf[2] != magicPrefix[2] {
		return Header{}, newFormatError(ReasonMagicMismatch, uuid.Nil,
			fmt.Sprintf("got %02x %02x %02x", buf[0], buf[1], buf[2]))
	}

	kind := Kind(buf[3])
	switch kind {
	case KindManifest, KindDirectory, KindContent, KindContainer:
	default:
		return Header{}, newFormatError(ReasonMagicMismatch, uuid.Nil,
			fmt.Sprintf("unrecognized kind byte %q", buf[3]))
	}

	var h Header
	h.Kind = kind

	r := bases.NewMemory(buf).NewReader(4)
	appVendorID, _ := r.ReadUint(4)
	h.AppVendorID = uint32(appVendorID)

	major, _ := r.ReadByte()
	minor, _ := r.ReadByte()
	h.MajorVersion, h.MinorVersion = major, minor

	idBytes, _ := r.ReadBytes(16)
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return Header{}, newFormatError(ReasonMalformedLayout, uuid.Nil, "invalid uuid bytes")
	}
	h.UUID = id

	if h.MajorVersion > CurrentMajorVersion {
		return Header{}, newFormatError(ReasonMajorVersionUnsupported, h.UUID,
			fmt.Sprintf("major version %d > supported %d", h.MajorVersion, CurrentMajorVersion))
	}

	flags, _ := r.ReadByte()
	h.Flags = flags

	freeLo, _ := r.ReadBytes(5)
	copy(h.FreeData[0:5], freeLo)

	packSize, _ := r.ReadUint(8)
	h.PackSize = bases.Size(packSize)

	checkInfoPos, _ := r.ReadUint(8)
	h.CheckInfoPos = bases.Offset(checkInfoPos)

	packCount, _ := r.ReadUint(2)
	h.PackCount = uint16(packCount)

	packsPos, _ := r.ReadUint(8)
	h.PacksPos = bases.Offset(packsPos)

	freeHi, _ := r.ReadBytes(2)
	copy(h.FreeData[5:7], freeHi)

	storedCRC, _ := r.ReadCRC32()
	computedCRC := bases.ComputeCRC32(buf[:headerCRCOffset])
	if storedCRC != computedCRC {
		return Header{}, newFormatErrorRange(ReasonHeaderCRCMismatch, h.UUID, 0, headerCRCOffset,
			fmt.Sprintf("stored %#08x, computed %#08x", storedCRC, computedCRC))
	}

	return h, nil
}

// ReservedNonZero reports whether any of h's reserved (non free-data)
// bytes were non-zero on read. The current layout reserves no bytes
// beyond the free-data zone and the unused Flags bits, so this always
// returns false for a [Header] produced by [ParseHeader]; it exists so
// future minor-version fields added to the reserved region have a
// single choke point for the strict-mode policy.
func (h Header) ReservedNonZero() bool {
	return false
}
