// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package bases

import "fmt"

// PutUint writes the width-byte little-endian encoding of v into buf.
// buf must be at least width bytes long.
func PutUint(buf []byte, v uint64, width int) error {
	if width < 1 || width > 8 {
		return fmt.Errorf("integer width %d out of range [1, 8]", width)
	}
	if len(buf) < width {
		return fmt.Errorf("buffer of %d bytes too small for a %d-byte integer", len(buf), width)
	}
	for i := 0; i < width; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return nil
}

// AppendUint appends the width-byte little-endian encoding of v to buf
// and returns the extended slice.
func AppendUint(buf []byte, v uint64, width int) ([]byte, error) {
	start := len(buf)
	buf = append(buf, make([]byte, width)...)
	if err := PutUint(buf[start:], v, width); err != nil {
		return nil, err
	}
	return buf, nil
}

// PutSizedOffset writes a SizedOffset's packed 8-byte encoding into buf.
func PutSizedOffset(buf []byte, so SizedOffset) error {
	return PutUint(buf, so.Pack(), 8)
}

// AppendPascalString appends s encoded as a Pascal string: one length
// byte followed by s's UTF-8 bytes. Returns [ErrStringTooLong] if s is
// longer than [MaxPascalStringLen] bytes.
func AppendPascalString(buf []byte, s string) ([]byte, error) {
	if len(s) > MaxPascalStringLen {
		return nil, ErrStringTooLong{Len: len(s)}
	}
	buf = append(buf, byte(len(s)))
	buf = append(buf, s...)
	return buf, nil
}

// DecodePascalString decodes a Pascal string (one length byte followed
// by that many UTF-8 bytes) from the start of data, returning the
// decoded string and the number of bytes consumed.
func DecodePascalString(data []byte) (string, int, error) {
	if len(data) < 1 {
		return "", 0, fmt.Errorf("pascal string: empty buffer, need at least 1 length byte")
	}
	n := int(data[0])
	if len(data) < 1+n {
		return "", 0, fmt.Errorf("pascal string: declared length %d but only %d bytes available", n, len(data)-1)
	}
	return string(data[1 : 1+n]), 1 + n, nil
}

// ReadPascalString reads a Pascal string from a [StreamReader],
// advancing the cursor past the length byte and the string bytes.
func (s *StreamReader) ReadPascalString() (string, error) {
	lengthByte, err := s.ReadByte()
	if err != nil {
		return "", fmt.Errorf("reading pascal string length: %w", err)
	}
	raw, err := s.ReadBytes(int(lengthByte))
	if err != nil {
		return "", fmt.Errorf("reading pascal string body: %w", err)
	}
	return string(raw), nil
}

// ReadSizedOffset reads a packed 8-byte [SizedOffset] from a
// [StreamReader].
func (s *StreamReader) ReadSizedOffset() (SizedOffset, error) {
	v, err := s.ReadUint(8)
	if err != nil {
		return SizedOffset{}, err
	}
	return UnpackSizedOffset(v), nil
}
