// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/pack"
)

func TestPackInfoEncodeParseRoundTrip(t *testing.T) {
	info := PackInfo{
		UUID:             uuid.New(),
		PackSize:         4096,
		PackCheckInfoPos: bases.SizedOffset{Offset: 4000, Size: 32},
		PackID:           7,
		PackKind:         pack.KindContent,
		PackGroup:        2,
		FreeDataID:       1,
		PackLocation:     "packs/content-7.jbkc",
	}

	buf, err := info.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := ParsePackInfo(buf[:])
	if err != nil {
		t.Fatalf("ParsePackInfo: %v", err)
	}
	if got != info {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, info)
	}
}

func TestPackInfoEmptyLocationRoundTrips(t *testing.T) {
	info := PackInfo{UUID: uuid.New(), PackID: 1, PackKind: pack.KindDirectory}
	buf, err := info.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ParsePackInfo(buf[:])
	if err != nil {
		t.Fatalf("ParsePackInfo: %v", err)
	}
	if got.PackLocation != "" {
		t.Fatalf("PackLocation = %q, want empty", got.PackLocation)
	}
}

func TestPackInfoEncodeRejectsOverlongLocation(t *testing.T) {
	info := PackInfo{UUID: uuid.New(), PackLocation: strings.Repeat("x", maxPackLocationLen+1)}
	if _, err := info.Encode(); err == nil {
		t.Fatal("Encode: want error for overlong packLocation, got nil")
	}
}

func TestParsePackInfoRejectsTruncatedBuffer(t *testing.T) {
	if _, err := ParsePackInfo(make([]byte, PackInfoSize-1)); err == nil {
		t.Fatal("ParsePackInfo: want error for short buffer, got nil")
	}
}

func TestParsePackInfoDetectsCorruption(t *testing.T) {
	info := PackInfo{UUID: uuid.New(), PackID: 3, PackKind: pack.KindContent, PackLocation: "x.jbkc"}
	buf, err := info.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf[0] ^= 0xFF // corrupt a byte covered by the CRC32

	if _, err := ParsePackInfo(buf[:]); err == nil {
		t.Fatal("ParsePackInfo: want CRC mismatch error, got nil")
	}
}

func TestUpdateLocatorPreservesCRC(t *testing.T) {
	info := PackInfo{UUID: uuid.New(), PackID: 9, PackKind: pack.KindContent, PackLocation: "old/path.jbkc"}
	updated, err := UpdateLocator(info, "new/path.jbkc")
	if err != nil {
		t.Fatalf("UpdateLocator: %v", err)
	}
	buf, err := updated.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := ParsePackInfo(buf[:])
	if err != nil {
		t.Fatalf("ParsePackInfo after UpdateLocator: %v", err)
	}
	if got.PackLocation != "new/path.jbkc" {
		t.Fatalf("PackLocation = %q, want %q", got.PackLocation, "new/path.jbkc")
	}
}

func TestUpdateLocatorRejectsOverlongLocation(t *testing.T) {
	info := PackInfo{UUID: uuid.New()}
	if _, err := UpdateLocator(info, strings.Repeat("y", maxPackLocationLen+1)); err == nil {
		t.Fatal("UpdateLocator: want error for overlong location, got nil")
	}
}
