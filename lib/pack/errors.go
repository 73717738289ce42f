// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind of format error, used to classify a [FormatError] without
// string matching.
type Reason int

const (
	// ReasonMagicMismatch means the leading magic bytes did not match
	// any known pack kind.
	ReasonMagicMismatch Reason = iota
	// ReasonMajorVersionUnsupported means the pack's major version is
	// higher than this implementation understands.
	ReasonMajorVersionUnsupported
	// ReasonTruncatedPack means the region is shorter than the header
	// claims the pack to be.
	ReasonTruncatedPack
	// ReasonHeaderCRCMismatch means the header's CRC32 field does not
	// match the checksum of bytes 0..60.
	ReasonHeaderCRCMismatch
	// ReasonCheckFailed means the pack's check-tail digest (Blake3) did
	// not match the pack's actual contents.
	ReasonCheckFailed
	// ReasonTailHeaderMismatch means open_by_tail's reconstructed
	// header did not agree with the header found at the computed
	// start-of-pack offset.
	ReasonTailHeaderMismatch
	// ReasonMalformedLayout covers structural errors below the pack
	// header: bad property widths, illegal variant ids, out-of-bounds
	// cluster offsets.
	ReasonMalformedLayout
)

func (r Reason) String() string {
	switch r {
	case ReasonMagicMismatch:
		return "magic mismatch"
	case ReasonMajorVersionUnsupported:
		return "major version unsupported"
	case ReasonTruncatedPack:
		return "truncated pack"
	case ReasonHeaderCRCMismatch:
		return "header CRC32 mismatch"
	case ReasonCheckFailed:
		return "check-tail digest mismatch"
	case ReasonTailHeaderMismatch:
		return "tail/header cross-check mismatch"
	case ReasonMalformedLayout:
		return "malformed layout"
	default:
		return fmt.Sprintf("unknown reason(%d)", int(r))
	}
}

// FormatError reports a non-recoverable defect in a pack's bytes. It
// carries the offending pack's UUID (the zero UUID if the header
// itself could not be parsed) and, where known, the byte range the
// defect was found in.
type FormatError struct {
	Reason Reason
	UUID   uuid.UUID

	// HasRange reports whether Start/End are meaningful.
	HasRange bool
	Start    uint64
	End      uint64

	// Detail is an optional human-readable elaboration, e.g. the
	// expected vs. actual CRC32 value.
	Detail string
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("pack %s: %s", e.UUID, e.Reason)
	if e.HasRange {
		msg = fmt.Sprintf("%s (bytes %d..%d)", msg, e.Start, e.End)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// Is reports whether target is a FormatError with the same Reason,
// letting callers write errors.Is(err, &FormatError{Reason: ...}).
func (e *FormatError) Is(target error) bool {
	var other *FormatError
	if !errors.As(target, &other) {
		return false
	}
	return e.Reason == other.Reason
}

func newFormatError(reason Reason, id uuid.UUID, detail string) *FormatError {
	return &FormatError{Reason: reason, UUID: id, Detail: detail}
}

func newFormatErrorRange(reason Reason, id uuid.UUID, start, end uint64, detail string) *FormatError {
	return &FormatError{Reason: reason, UUID: id, HasRange: true, Start: start, End: end, Detail: detail}
}
