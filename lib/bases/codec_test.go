// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package bases

import "testing"

func TestPutUintRoundTrip(t *testing.T) {
	tests := []struct {
		v     uint64
		width int
	}{
		{0x01, 1},
		{0x0201, 2},
		{0x04030201, 4},
		{0x0807060504030201, 8},
	}
	for _, tt := range tests {
		buf := make([]byte, tt.width)
		if err := PutUint(buf, tt.v, tt.width); err != nil {
			t.Fatalf("PutUint: %v", err)
		}
		r := NewMemory(buf)
		got, err := r.ReadUint(0, tt.width)
		if err != nil {
			t.Fatalf("ReadUint: %v", err)
		}
		if got != tt.v {
			t.Errorf("round trip width=%d: got %#x, want %#x", tt.width, got, tt.v)
		}
	}
}

func TestPutUintBufferTooSmall(t *testing.T) {
	buf := make([]byte, 2)
	if err := PutUint(buf, 1, 4); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}

func TestSizedOffsetRoundTrip(t *testing.T) {
	tests := []SizedOffset{
		{Size: 0, Offset: 0},
		{Size: 1, Offset: MaxOffset},
		{Size: 0xFFFF, Offset: 0x0000_DEAD_BEEF},
	}
	for _, so := range tests {
		buf := make([]byte, 8)
		if err := PutSizedOffset(buf, so); err != nil {
			t.Fatalf("PutSizedOffset: %v", err)
		}
		r := NewMemory(buf)
		sr := r.NewReader(0)
		got, err := sr.ReadSizedOffset()
		if err != nil {
			t.Fatalf("ReadSizedOffset: %v", err)
		}
		if got != so {
			t.Errorf("round trip: got %+v, want %+v", got, so)
		}
	}
}

func TestSizedOffsetOffsetMasked(t *testing.T) {
	// Offset bits beyond the 48-bit window must never leak into Size.
	so := SizedOffset{Size: 7, Offset: Offset(1) << 50}
	packed := so.Pack()
	got := UnpackSizedOffset(packed)
	if got.Offset != 0 {
		t.Errorf("Offset = %#x, want 0 (bits beyond 48 must be masked out)", got.Offset)
	}
	if got.Size != 7 {
		t.Errorf("Size = %d, want 7", got.Size)
	}
}

func TestPascalStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "hello, jubako", string(make([]byte, MaxPascalStringLen))} {
		buf, err := AppendPascalString(nil, s)
		if err != nil {
			t.Fatalf("AppendPascalString(%q): %v", s, err)
		}
		got, n, err := DecodePascalString(buf)
		if err != nil {
			t.Fatalf("DecodePascalString: %v", err)
		}
		if got != s || n != len(buf) {
			t.Errorf("round trip: got %q (consumed %d), want %q (len %d)", got, n, s, len(buf))
		}
	}
}

func TestPascalStringTooLong(t *testing.T) {
	s := string(make([]byte, MaxPascalStringLen+1))
	if _, err := AppendPascalString(nil, s); err == nil {
		t.Fatal("expected ErrStringTooLong")
	}
}

func TestStreamReaderPascalString(t *testing.T) {
	buf, err := AppendPascalString([]byte{0xAA}, "content pack")
	if err != nil {
		t.Fatalf("AppendPascalString: %v", err)
	}
	r := NewMemory(buf)
	sr := r.NewReader(1) // skip the leading sentinel byte
	got, err := sr.ReadPascalString()
	if err != nil {
		t.Fatalf("ReadPascalString: %v", err)
	}
	if got != "content pack" {
		t.Errorf("ReadPascalString() = %q, want %q", got, "content pack")
	}
	if int(sr.Pos()) != len(buf) {
		t.Errorf("Pos() = %d, want %d", sr.Pos(), len(buf))
	}
}

func TestDecodePascalStringTruncated(t *testing.T) {
	if _, _, err := DecodePascalString([]byte{5, 'h', 'i'}); err == nil {
		t.Fatal("expected error: declared length exceeds available bytes")
	}
	if _, _, err := DecodePascalString(nil); err == nil {
		t.Fatal("expected error for empty buffer")
	}
}
