// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
)

// OpenByHeader parses the pack starting at region's first byte,
// validates the header, and returns the header along with a region
// scoped to exactly this pack's bytes (region may legitimately extend
// further, e.g. when it is a window into a container holding several
// packs back to back).
func OpenByHeader(region *bases.Region) (Header, *bases.Region, error) {
	if region.Len() < HeaderSize {
		return Header{}, nil, newFormatError(ReasonTruncatedPack, uuid.Nil,
			fmt.Sprintf("region of %d bytes shorter than a pack header", region.Len()))
	}

	headerBuf, err := region.Slice(0, HeaderSize)
	if err != nil {
		return Header{}, nil, err
	}

	header, err := ParseHeader(headerBuf.Bytes())
	if err != nil {
		return Header{}, nil, err
	}

	if header.PackSize > region.Len() {
		return Header{}, nil, newFormatError(ReasonTruncatedPack, header.UUID,
			fmt.Sprintf("packSize %d exceeds region of %d bytes", header.PackSize, region.Len()))
	}

	packRegion, err := region.Slice(0, header.PackSize)
	if err != nil {
		return Header{}, nil, err
	}
	return header, packRegion, nil
}

// OpenByTail reads the last 64 bytes of region as a byte-swapped copy
// of the pack header, uses it to locate the real header at
// region_end − packSize, and cross-checks the two. This tolerates
// arbitrary bytes preceding the pack (e.g. a pack appended to a host
// executable) as long as region ends exactly at the pack's last byte.
func OpenByTail(region *bases.Region) (Header, *bases.Region, error) {
	if region.Len() < HeaderSize {
		return Header{}, nil, newFormatError(ReasonTruncatedPack, uuid.Nil,
			fmt.Sprintf("region of %d bytes shorter than a pack tail", region.Len()))
	}

	tailBuf, err := region.Slice(bases.Offset(region.Len())-HeaderSize, HeaderSize)
	if err != nil {
		return Header{}, nil, err
	}

	reconstructed := swapBytes(tailBuf.Bytes())
	fromTail, err := ParseHeader(reconstructed)
	if err != nil {
		return Header{}, nil, err
	}

	if fromTail.PackSize > region.Len() {
		return Header{}, nil, newFormatError(ReasonTruncatedPack, fromTail.UUID,
			fmt.Sprintf("packSize %d exceeds region of %d bytes", fromTail.PackSize, region.Len()))
	}

	start := bases.Offset(region.Len()) - bases.Offset(fromTail.PackSize)
	packRegion, err := region.Slice(start, fromTail.PackSize)
	if err != nil {
		return Header{}, nil, err
	}

	fromHeader, _, err := OpenByHeader(packRegion)
	if err != nil {
		return Header{}, nil, err
	}

	if fromHeader != fromTail {
		return Header{}, nil, newFormatError(ReasonTailHeaderMismatch, fromHeader.UUID,
			"header found at region_end-packSize disagrees with the reconstructed tail")
	}

	return fromHeader, packRegion, nil
}

func swapBytes(buf []byte) []byte {
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[len(buf)-1-i] = b
	}
	return out
}
