// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
	"github.com/zeebo/blake3"
)

// CheckKind identifies the variant of a pack's check tail.
type CheckKind byte

const (
	// CheckNone means the pack carries no integrity digest; checking
	// it always succeeds.
	CheckNone CheckKind = 0
	// CheckBlake3 means the check tail holds a 32-byte Blake3 digest
	// over bytes [0, checkInfoPos) of the pack.
	CheckBlake3 CheckKind = 1
)

// CheckTail is the parsed variant byte plus variant-specific payload
// found at a pack's checkInfoPos.
type CheckTail struct {
	Kind   CheckKind
	Digest [32]byte // meaningful only when Kind == CheckBlake3
}

// Size returns the on-disk byte length of t.
func (t CheckTail) Size() int {
	switch t.Kind {
	case CheckBlake3:
		return 1 + 32
	default:
		return 1
	}
}

// Encode renders t to its on-disk bytes.
func (t CheckTail) Encode() []byte {
	switch t.Kind {
	case CheckBlake3:
		buf := make([]byte, 1+32)
		buf[0] = byte(CheckBlake3)
		copy(buf[1:], t.Digest[:])
		return buf
	default:
		return []byte{byte(CheckNone)}
	}
}

// ParseCheckTail decodes a check tail from the start of buf.
func ParseCheckTail(buf []byte) (CheckTail, error) {
	if len(buf) < 1 {
		return CheckTail{}, newFormatError(ReasonTruncatedPack, uuid.Nil, "check tail: missing variant byte")
	}
	switch CheckKind(buf[0]) {
	case CheckNone:
		return CheckTail{Kind: CheckNone}, nil
	case CheckBlake3:
		if len(buf) < 1+32 {
			return CheckTail{}, newFormatError(ReasonTruncatedPack, uuid.Nil, "check tail: truncated blake3 digest")
		}
		var tail CheckTail
		tail.Kind = CheckBlake3
		copy(tail.Digest[:], buf[1:33])
		return tail, nil
	default:
		return CheckTail{}, newFormatError(ReasonMalformedLayout, uuid.Nil,
			fmt.Sprintf("unknown check tail variant %d", buf[0]))
	}
}

// ByteRange is a half-open byte interval [Start, End) that must be
// treated as zero when computing a masked digest, used by the
// manifest pack's checksum-masking rule for packLocation and
// per-record CRC32 fields.
type ByteRange struct {
	Start, End uint64
}

// ComputeBlake3Masked computes the Blake3 digest of data with every
// byte range in masks treated as zero. It builds the digest over a
// copy-on-write virtual view rather than mutating data in place.
func ComputeBlake3Masked(data []byte, masks []ByteRange) [32]byte {
	h := blake3.New()
	if len(masks) == 0 {
		h.Write(data)
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	}

	masked := append([]byte(nil), data...)
	for _, m := range masks {
		end := m.End
		if end > uint64(len(masked)) {
			end = uint64(len(masked))
		}
		if m.Start >= end {
			continue
		}
		clear(masked[m.Start:end])
	}
	h.Write(masked)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// CheckIntegrity verifies a pack's check tail against the pack's
// actual bytes. region must cover the whole pack starting at its
// header. masks, if non-nil, are the byte ranges to zero before
// hashing (used only by the manifest pack's masked digest).
func CheckIntegrity(region *bases.Region, header Header, masks []ByteRange) error {
	tailRegion, err := region.Slice(header.CheckInfoPos, region.Len()-bases.Size(header.CheckInfoPos))
	if err != nil {
		return newFormatError(ReasonTruncatedPack, header.UUID, "region too short for check tail")
	}

	tail, err := ParseCheckTail(tailRegion.Bytes())
	if err != nil {
		return err
	}

	if tail.Kind == CheckNone {
		return nil
	}

	digested, err := region.Slice(0, bases.Size(header.CheckInfoPos))
	if err != nil {
		return newFormatError(ReasonTruncatedPack, header.UUID, "region shorter than checkInfoPos")
	}

	got := ComputeBlake3Masked(digested.Bytes(), masks)
	if got != tail.Digest {
		return newFormatErrorRange(ReasonCheckFailed, header.UUID, 0, uint64(header.CheckInfoPos),
			fmt.Sprintf("stored %x, computed %x", tail.Digest, got))
	}
	return nil
}
