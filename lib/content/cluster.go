// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"fmt"

	"github.com/jbk-format/jbk/lib/bases"
)

// MaxBlobsPerCluster is the largest number of blobs a single cluster
// may hold (spec §4.2).
const MaxBlobsPerCluster = 4096

// DefaultClusterSizeThreshold is the raw accumulated size at which a
// cluster builder closes the current cluster and starts a new one,
// even if [MaxBlobsPerCluster] has not been reached.
const DefaultClusterSizeThreshold = 1 << 20 // 1 MiB

// ClusterTail is a cluster's trailing metadata block: the compression
// kind, blob count, the width chosen for size/offset fields, the
// on-disk and decompressed sizes, and the within-cluster blob
// boundaries.
//
// On disk: {type:u8 (low 4 bits = codec), header:u16 (bits 0..11 =
// blobCount-1, bit 12 = pad, bits 13..15 = offsetSize), rawDataSize:uN,
// dataSize:uN, offset[1..blobCount-1]:uN} where N = 8*(offsetSize+1)
// bits. blobCount is stored as blobCount-1 so a full
// [MaxBlobsPerCluster]-blob cluster (the spec's inclusive upper bound)
// still fits the 12-bit field.
type ClusterTail struct {
	Codec       CompressionKind
	BlobCount   int
	OffsetSize  int // 1..8 bytes
	RawDataSize uint64
	DataSize    uint64
	// Offsets has length BlobCount+1: Offsets[0] == 0,
	// Offsets[BlobCount] == DataSize, each blob N occupies
	// Offsets[N]..Offsets[N+1] in the decompressed stream.
	Offsets []uint64
}

// offsetWidth returns the smallest byte width (1..8) able to hold v.
func offsetWidth(v uint64) int {
	for w := 1; w <= 8; w++ {
		if v < uint64(1)<<(8*w) {
			return w
		}
	}
	return 8
}

// Encode renders the tail's on-disk bytes.
func (t ClusterTail) Encode() ([]byte, error) {
	if t.BlobCount < 1 || t.BlobCount > MaxBlobsPerCluster {
		return nil, fmt.Errorf("cluster tail: blob count %d out of range [1, %d]", t.BlobCount, MaxBlobsPerCluster)
	}
	if t.OffsetSize < 1 || t.OffsetSize > 8 {
		return nil, fmt.Errorf("cluster tail: offset size %d out of range [1, 8]", t.OffsetSize)
	}
	if len(t.Offsets) != t.BlobCount+1 {
		return nil, fmt.Errorf("cluster tail: %d offsets, want %d", len(t.Offsets), t.BlobCount+1)
	}
	if t.Offsets[0] != 0 {
		return nil, fmt.Errorf("cluster tail: offsets[0] = %d, want 0", t.Offsets[0])
	}
	if t.Offsets[t.BlobCount] != t.DataSize {
		return nil, fmt.Errorf("cluster tail: offsets[%d] = %d, want dataSize %d", t.BlobCount, t.Offsets[t.BlobCount], t.DataSize)
	}

	n := t.OffsetSize
	out := make([]byte, 0, 3+2*n+(t.BlobCount-1)*n)
	out = append(out, byte(t.Codec)&0x0F)

	header := uint16(t.BlobCount-1) | uint16(t.OffsetSize-1)<<13
	out = append(out, byte(header), byte(header>>8))

	var err error
	out, err = bases.AppendUint(out, t.RawDataSize, n)
	if err != nil {
		return nil, err
	}
	out, err = bases.AppendUint(out, t.DataSize, n)
	if err != nil {
		return nil, err
	}
	for i := 1; i < t.BlobCount; i++ {
		out, err = bases.AppendUint(out, t.Offsets[i], n)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ParseClusterTail decodes a [ClusterTail] from the start of buf,
// returning the tail and the number of bytes consumed.
func ParseClusterTail(buf []byte) (ClusterTail, int, error) {
	if len(buf) < 3 {
		return ClusterTail{}, 0, fmt.Errorf("cluster tail: %d bytes too short for a 3-byte header", len(buf))
	}
	codec := CompressionKind(buf[0] & 0x0F)
	header := uint16(buf[1]) | uint16(buf[2])<<8
	blobCount := int(header&0x0FFF) + 1
	offsetSize := int((header>>13)&0x07) + 1

	region := bases.NewMemory(buf)
	r := region.NewReader(3)

	rawDataSize, err := r.ReadUint(offsetSize)
	if err != nil {
		return ClusterTail{}, 0, fmt.Errorf("cluster tail: rawDataSize: %w", err)
	}
	dataSize, err := r.ReadUint(offsetSize)
	if err != nil {
		return ClusterTail{}, 0, fmt.Errorf("cluster tail: dataSize: %w", err)
	}

	offsets := make([]uint64, blobCount+1)
	for i := 1; i < blobCount; i++ {
		v, err := r.ReadUint(offsetSize)
		if err != nil {
			return ClusterTail{}, 0, fmt.Errorf("cluster tail: offset[%d]: %w", i, err)
		}
		offsets[i] = v
	}
	offsets[blobCount] = dataSize

	for i := 1; i <= blobCount; i++ {
		if offsets[i] < offsets[i-1] {
			return ClusterTail{}, 0, fmt.Errorf("cluster tail: offsets not ascending at index %d (%d < %d)", i, offsets[i], offsets[i-1])
		}
	}

	return ClusterTail{
		Codec:       codec,
		BlobCount:   blobCount,
		OffsetSize:  offsetSize,
		RawDataSize: rawDataSize,
		DataSize:    dataSize,
		Offsets:     offsets,
	}, int(r.Pos()), nil
}

// Size returns the tail's encoded byte length.
func (t ClusterTail) Size() int {
	return 3 + 2*t.OffsetSize + (t.BlobCount-1)*t.OffsetSize
}

// ClusterBuilder accumulates blobs into a single cluster, closing it
// either when [MaxBlobsPerCluster] is reached or the accumulated raw
// size passes a threshold (spec §4.7's write path).
type ClusterBuilder struct {
	data       []byte
	boundaries []uint64 // length len(blobs)+1, boundaries[0] == 0
	threshold  int
}

// NewClusterBuilder creates an empty cluster builder. A zero
// threshold uses [DefaultClusterSizeThreshold].
func NewClusterBuilder(threshold int) *ClusterBuilder {
	if threshold <= 0 {
		threshold = DefaultClusterSizeThreshold
	}
	return &ClusterBuilder{boundaries: []uint64{0}, threshold: threshold}
}

// AddBlob appends a blob to the cluster, returning its within-cluster
// blob index and whether the cluster is now full (either bound
// reached) — the caller should call [ClusterBuilder.Finish] and start
// a new ClusterBuilder once full is true.
func (b *ClusterBuilder) AddBlob(data []byte) (blobIdx int, full bool) {
	idx := len(b.boundaries) - 1
	b.data = append(b.data, data...)
	b.boundaries = append(b.boundaries, uint64(len(b.data)))
	full = len(b.boundaries)-1 >= MaxBlobsPerCluster || len(b.data) >= b.threshold
	return idx, full
}

// BlobCount returns the number of blobs accumulated so far.
func (b *ClusterBuilder) BlobCount() int { return len(b.boundaries) - 1 }

// Empty reports whether the builder holds no blobs.
func (b *ClusterBuilder) Empty() bool { return b.BlobCount() == 0 }

// Finish compresses the accumulated stream (applying the entropy gate
// against configured, gated at entropyThreshold bits/byte — zero uses
// the package default [EntropyThreshold]) and renders the cluster's
// on-disk body: rawData followed by a 4-byte CRC32 of rawData followed
// by the tail. It also returns the length of the trailing tail, so the
// caller can form a cluster-pointer [bases.SizedOffset] for exactly
// that suffix.
func (b *ClusterBuilder) Finish(configured CompressionKind, entropyThreshold float64) (body []byte, tailLen int, err error) {
	if b.Empty() {
		return nil, 0, fmt.Errorf("content: cannot finish an empty cluster")
	}

	sampleLen := len(b.data)
	if sampleLen > EntropySampleSize {
		sampleLen = EntropySampleSize
	}
	codec := SelectCodec(configured, b.data[:sampleLen], entropyThreshold)

	rawData, err := Compress(codec, b.data)
	if err != nil {
		if IsIncompressible(err) {
			codec = CompressionNone
			rawData = b.data
		} else {
			return nil, 0, fmt.Errorf("content: compressing cluster: %w", err)
		}
	}

	offsetSize := offsetWidth(maxUint64(uint64(len(rawData)), uint64(len(b.data))))
	tail := ClusterTail{
		Codec:       codec,
		BlobCount:   b.BlobCount(),
		OffsetSize:  offsetSize,
		RawDataSize: uint64(len(rawData)),
		DataSize:    uint64(len(b.data)),
		Offsets:     b.boundaries,
	}
	tailBytes, err := tail.Encode()
	if err != nil {
		return nil, 0, fmt.Errorf("content: encoding cluster tail: %w", err)
	}

	body = make([]byte, 0, len(rawData)+4+len(tailBytes))
	body = append(body, rawData...)
	body, err = bases.AppendUint(body, uint64(bases.ComputeCRC32(rawData)), 4)
	if err != nil {
		return nil, 0, err
	}
	body = append(body, tailBytes...)

	return body, len(tailBytes), nil
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
