// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package bases

import (
	"fmt"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

// Region is a uniform, bounds-checked, zero-copy read view over a
// file, a memory map, or an in-memory buffer. Every sub-region derived
// from a Region shares the same backing bytes — slicing never copies.
//
// A Region is safe to share across goroutines: all methods are
// read-only. The backing store (the memory map or buffer) must outlive
// every Region derived from it; [Region.Close] unmaps a file-backed
// root region at once and invalidates every Region sliced from it.
// Derived Regions hold no reference that keeps the mapping alive.
type Region struct {
	data   []byte
	closer func() error
}

// NewMemory wraps an in-memory buffer as a root Region. The buffer is
// not copied; the caller must not mutate it while the Region (or any
// sub-region derived from it) is in use.
func NewMemory(data []byte) *Region {
	return &Region{data: data}
}

// OpenFile memory-maps the file at path read-only and returns a root
// Region over its full contents. The caller must call [Region.Close]
// when done.
func OpenFile(path string) (*Region, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("statting %s: %w", path, err)
	}

	if stat.Size == 0 {
		unix.Close(fd)
		return &Region{data: nil, closer: func() error { return nil }}, nil
	}

	data, err := unix.Mmap(fd, 0, int(stat.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memory-mapping %s: %w", path, err)
	}

	closed := false
	closer := func() error {
		if closed {
			return nil
		}
		closed = true
		mapErr := unix.Munmap(data)
		closeErr := unix.Close(fd)
		if mapErr != nil {
			return fmt.Errorf("unmapping %s: %w", path, mapErr)
		}
		if closeErr != nil {
			return fmt.Errorf("closing %s: %w", path, closeErr)
		}
		return nil
	}

	return &Region{data: data, closer: closer}, nil
}

// Close releases the resources held by a file-backed root Region.
// Calling Close on a Region returned by [NewMemory] or by
// [Region.Slice] is a safe no-op; only the root file-backed Region
// actually owns resources to release.
func (r *Region) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// Len returns the Region's length in bytes.
func (r *Region) Len() Size {
	return Size(len(r.data))
}

// Slice returns a zero-copy sub-region covering [offset, offset+size).
// Returns an error if the requested window falls outside the Region.
func (r *Region) Slice(offset Offset, size Size) (*Region, error) {
	start := uint64(offset)
	end := start + uint64(size)
	if end < start || end > uint64(len(r.data)) {
		return nil, fmt.Errorf("slice [%d, %d) out of bounds for region of length %d", start, end, len(r.data))
	}
	return &Region{data: r.data[start:end]}, nil
}

// Bytes returns the Region's entire backing slice. The returned slice
// aliases the Region's memory and must not be retained past the
// Region's lifetime (see [Region.Close]).
func (r *Region) Bytes() []byte {
	return r.data
}

// ReadUint reads a little-endian unsigned integer of the given width
// (1 to 8 bytes) starting at offset.
func (r *Region) ReadUint(offset Offset, width int) (uint64, error) {
	if width < 1 || width > 8 {
		return 0, fmt.Errorf("integer width %d out of range [1, 8]", width)
	}
	start := uint64(offset)
	end := start + uint64(width)
	if end > uint64(len(r.data)) {
		return 0, fmt.Errorf("reading %d-byte integer at offset %d: region has only %d bytes", width, start, len(r.data))
	}

	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = (v << 8) | uint64(r.data[start+uint64(i)])
	}
	return v, nil
}

// ReadAt copies len(p) bytes starting at off into p, matching
// io.ReaderAt. Guards against SIGBUS on a truncated or torn memory
// map so a storage failure returns an error instead of crashing the
// process.
func (r *Region) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off > int64(len(r.data)) {
		return 0, fmt.Errorf("read at offset %d out of bounds for region of length %d", off, len(r.data))
	}

	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page fault reading region at offset %d: %v", off, rec)
		}
	}()

	n = copy(p, r.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("short read at offset %d: got %d of %d bytes", off, n, len(p))
	}
	return n, nil
}

// NewReader returns a streaming reader over this Region starting at
// position. The reader tracks position and rejects any read that
// would run past the Region's end.
func (r *Region) NewReader(position Offset) *StreamReader {
	return &StreamReader{region: r, pos: position}
}

// StreamReader sequentially decodes bytes from a Region, tracking a
// read cursor. Used for parsing sequential on-disk structures (pack
// headers, manifest record arrays, index tables).
type StreamReader struct {
	region *Region
	pos    Offset
}

// Pos returns the reader's current byte offset within its Region.
func (s *StreamReader) Pos() Offset {
	return s.pos
}

// Seek repositions the reader's cursor to an absolute offset.
func (s *StreamReader) Seek(offset Offset) {
	s.pos = offset
}

// ReadUint decodes a little-endian unsigned integer of the given width
// and advances the cursor.
func (s *StreamReader) ReadUint(width int) (uint64, error) {
	v, err := s.region.ReadUint(s.pos, width)
	if err != nil {
		return 0, err
	}
	s.pos += Offset(width)
	return v, nil
}

// ReadBytes reads n raw bytes and advances the cursor. The returned
// slice aliases the Region's backing memory.
func (s *StreamReader) ReadBytes(n int) ([]byte, error) {
	sub, err := s.region.Slice(s.pos, Size(n))
	if err != nil {
		return nil, fmt.Errorf("reading %d bytes at offset %d: %w", n, s.pos, err)
	}
	s.pos += Offset(n)
	return sub.data, nil
}

// ReadByte reads a single byte and advances the cursor.
func (s *StreamReader) ReadByte() (byte, error) {
	b, err := s.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}
