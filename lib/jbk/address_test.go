// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package jbk

import "testing"

func TestContentAddressRoundTrip(t *testing.T) {
	cases := []struct {
		addr                     ContentAddress
		packIDWidth, contentIDWidth int
	}{
		{ContentAddress{PackID: 0, ContentID: 0}, 1, 1},
		{ContentAddress{PackID: 7, ContentID: 4096}, 1, 2},
		{ContentAddress{PackID: 65535, ContentID: 0xFFFFFFFF}, 2, 4},
	}
	for _, c := range cases {
		raw, err := EncodeContentAddress(c.addr, c.packIDWidth, c.contentIDWidth)
		if err != nil {
			t.Fatalf("EncodeContentAddress(%+v): %v", c.addr, err)
		}
		if len(raw) != c.packIDWidth+c.contentIDWidth {
			t.Fatalf("encoded length = %d, want %d", len(raw), c.packIDWidth+c.contentIDWidth)
		}
		got, err := DecodeContentAddress(raw, c.packIDWidth, c.contentIDWidth)
		if err != nil {
			t.Fatalf("DecodeContentAddress: %v", err)
		}
		if got != c.addr {
			t.Errorf("round trip = %+v, want %+v", got, c.addr)
		}
	}
}

func TestEncodeContentAddressRejectsOutOfRangeWidths(t *testing.T) {
	if _, err := EncodeContentAddress(ContentAddress{}, 0, 1); err == nil {
		t.Error("expected error for packIdWidth 0")
	}
	if _, err := EncodeContentAddress(ContentAddress{}, 3, 1); err == nil {
		t.Error("expected error for packIdWidth 3")
	}
	if _, err := EncodeContentAddress(ContentAddress{}, 1, 0); err == nil {
		t.Error("expected error for contentIdWidth 0")
	}
	if _, err := EncodeContentAddress(ContentAddress{}, 1, 5); err == nil {
		t.Error("expected error for contentIdWidth 5")
	}
}

func TestDecodeContentAddressRejectsWrongLength(t *testing.T) {
	if _, err := DecodeContentAddress([]byte{1, 2, 3}, 1, 4); err == nil {
		t.Error("expected error for mismatched raw length")
	}
}
