// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/pack"
	"github.com/zeebo/blake3"
)

// MaxClusters is the largest number of clusters a single content pack
// may hold (spec §4.2, 2^20).
const MaxClusters = 1 << 20

// entryInfoBlobBits is the width of an entry-info record's blob-index
// field; the remaining high bits hold the cluster index.
const entryInfoBlobBits = 12

// packEntryInfo packs a cluster index and blob index into one u32:
// cluster index in the high 20 bits, blob index in the low 12 bits
// (spec §4.2).
func packEntryInfo(clusterIdx uint32, blobIdx uint32) (uint32, error) {
	if blobIdx >= 1<<entryInfoBlobBits {
		return 0, fmt.Errorf("content: blob index %d exceeds %d-bit field", blobIdx, entryInfoBlobBits)
	}
	if clusterIdx >= MaxClusters {
		return 0, fmt.Errorf("content: cluster index %d exceeds %d cluster limit", clusterIdx, MaxClusters)
	}
	return clusterIdx<<entryInfoBlobBits | blobIdx, nil
}

func unpackEntryInfo(v uint32) (clusterIdx uint32, blobIdx uint32) {
	return v >> entryInfoBlobBits, v & (1<<entryInfoBlobBits - 1)
}

// Pack aggregates clusters of compressed blobs behind one checksummed
// pack: an entry-info table mapping a content address's ordinal to
// (cluster, blob), and a cluster-pointer table addressing each
// cluster's tail.
type Pack struct {
	Header pack.Header

	region          *bases.Region
	entryInfos      []uint32
	clusterPointers []bases.SizedOffset
	cache           *Cache
}

// Open parses a content pack's table of contents. Cluster bodies are
// not touched until [Pack.FetchBlob] asks for one.
func Open(region *bases.Region, cache *Cache) (*Pack, error) {
	header, packRegion, err := pack.OpenByHeader(region)
	if err != nil {
		return nil, err
	}
	if header.Kind != pack.KindContent {
		return nil, fmt.Errorf("content pack: header declares kind %s, want %s", header.Kind, pack.KindContent)
	}

	r := packRegion.NewReader(bases.Offset(pack.HeaderSize))

	entryCount, err := r.ReadUint(4)
	if err != nil {
		return nil, fmt.Errorf("content pack: entry count: %w", err)
	}
	clusterCount, err := r.ReadUint(4)
	if err != nil {
		return nil, fmt.Errorf("content pack: cluster count: %w", err)
	}

	entryInfos := make([]uint32, entryCount)
	for i := range entryInfos {
		v, err := r.ReadUint(4)
		if err != nil {
			return nil, fmt.Errorf("content pack: entry info %d: %w", i, err)
		}
		entryInfos[i] = uint32(v)
	}

	clusterPointers := make([]bases.SizedOffset, clusterCount)
	for i := range clusterPointers {
		so, err := r.ReadSizedOffset()
		if err != nil {
			return nil, fmt.Errorf("content pack: cluster pointer %d: %w", i, err)
		}
		clusterPointers[i] = so
	}

	if cache == nil {
		cache = NewCache(0)
	}

	return &Pack{
		Header:          header,
		region:          packRegion,
		entryInfos:      entryInfos,
		clusterPointers: clusterPointers,
		cache:           cache,
	}, nil
}

// EntryCount returns the number of addressable blobs in the pack.
func (p *Pack) EntryCount() int { return len(p.entryInfos) }

// ClusterCount returns the number of clusters in the pack.
func (p *Pack) ClusterCount() int { return len(p.clusterPointers) }

// CheckIntegrity verifies the content pack's check-tail digest.
func (p *Pack) CheckIntegrity() error {
	return pack.CheckIntegrity(p.region, p.Header, nil)
}

// FetchBlob returns the bytes of the blob at content entry entryIdx,
// decompressing (or reusing a cached decompression of) its containing
// cluster as needed.
func (p *Pack) FetchBlob(entryIdx bases.Idx) ([]byte, error) {
	if int(entryIdx) >= len(p.entryInfos) {
		return nil, fmt.Errorf("content pack: entry index %d out of range [0, %d)", entryIdx, len(p.entryInfos))
	}
	clusterIdx, blobIdx := unpackEntryInfo(p.entryInfos[entryIdx])
	if int(clusterIdx) >= len(p.clusterPointers) {
		return nil, fmt.Errorf("content pack: entry %d names cluster %d, pack has %d", entryIdx, clusterIdx, len(p.clusterPointers))
	}

	tail, rawData, err := p.readClusterTail(clusterIdx)
	if err != nil {
		return nil, err
	}
	if int(blobIdx) >= tail.BlobCount {
		return nil, fmt.Errorf("content pack: blob index %d out of range [0, %d) for cluster %d", blobIdx, tail.BlobCount, clusterIdx)
	}

	start, end := tail.Offsets[blobIdx], tail.Offsets[blobIdx+1]

	if tail.Codec == CompressionNone {
		if end > uint64(len(rawData)) {
			return nil, fmt.Errorf("content pack: blob %d range [%d,%d) exceeds cluster data of %d bytes", blobIdx, start, end, len(rawData))
		}
		return rawData[start:end], nil
	}

	key := ClusterKey{PackUUID: p.Header.UUID, ClusterIdx: clusterIdx}
	handle, err := p.cache.Acquire(key, func() ([]byte, error) {
		return Decompress(tail.Codec, rawData, int(tail.DataSize))
	})
	if err != nil {
		return nil, fmt.Errorf("content pack: decompressing cluster %d: %w", clusterIdx, err)
	}
	defer handle.Release()

	decoded := handle.Bytes()
	if end > uint64(len(decoded)) {
		return nil, fmt.Errorf("content pack: blob %d range [%d,%d) exceeds decompressed cluster of %d bytes", blobIdx, start, end, len(decoded))
	}
	// Copy out: the cache may evict and the backing array, while still
	// valid for as long as handle is held, should not be aliased past
	// Release.
	blob := make([]byte, end-start)
	copy(blob, decoded[start:end])
	return blob, nil
}

// readClusterTail parses clusterIdx's tail and returns it alongside
// the cluster's raw (possibly compressed) data bytes, verified against
// its stored CRC32.
func (p *Pack) readClusterTail(clusterIdx uint32) (ClusterTail, []byte, error) {
	so := p.clusterPointers[clusterIdx]
	tailRegion, err := p.region.Slice(so.Offset, so.Size)
	if err != nil {
		return ClusterTail{}, nil, fmt.Errorf("content pack: cluster %d tail region: %w", clusterIdx, err)
	}
	tail, _, err := ParseClusterTail(tailRegion.Bytes())
	if err != nil {
		return ClusterTail{}, nil, fmt.Errorf("content pack: cluster %d tail: %w", clusterIdx, err)
	}

	rawStart := so.Offset - bases.Offset(tail.RawDataSize) - 4
	rawData, err := p.region.Slice(rawStart, bases.Size(tail.RawDataSize))
	if err != nil {
		return ClusterTail{}, nil, fmt.Errorf("content pack: cluster %d raw data: %w", clusterIdx, err)
	}
	crcStored, err := p.region.ReadUint(so.Offset-4, 4)
	if err != nil {
		return ClusterTail{}, nil, fmt.Errorf("content pack: cluster %d crc: %w", clusterIdx, err)
	}
	if !bases.VerifyCRC32(rawData.Bytes(), uint32(crcStored)) {
		return ClusterTail{}, nil, fmt.Errorf("content pack: cluster %d raw data fails CRC32 check", clusterIdx)
	}

	return tail, rawData.Bytes(), nil
}

// Builder accumulates blobs into clusters and renders a complete
// content pack. AddBlob closes the current cluster (compressing and
// appending its rendered body) automatically once it's full, so the
// caller never manages cluster boundaries directly.
type Builder struct {
	appVendorID      uint32
	codec            CompressionKind
	threshold        int
	entropyThreshold float64

	current *ClusterBuilder

	clusterBodies   [][]byte // one finished, rendered cluster body per cluster
	clusterTailLens []int    // tail length within the matching clusterBodies entry
	entryInfos      []uint32
}

// NewBuilder creates an empty content pack builder. codec is the
// configured compressor; [SelectCodec]'s entropy gate may still
// downgrade a given cluster to [CompressionNone], gated at
// entropyThreshold bits/byte (zero uses the package default
// [EntropyThreshold]). A zero threshold uses
// [DefaultClusterSizeThreshold].
func NewBuilder(appVendorID uint32, codec CompressionKind, threshold int, entropyThreshold float64) *Builder {
	return &Builder{
		appVendorID:      appVendorID,
		codec:            codec,
		threshold:        threshold,
		entropyThreshold: entropyThreshold,
		current:          NewClusterBuilder(threshold),
	}
}

// AddBlob stores data as a new blob, returning the content entry
// index it can later be fetched at via [Pack.FetchBlob].
func (b *Builder) AddBlob(data []byte) (bases.Idx, error) {
	blobIdx, full := b.current.AddBlob(data)
	clusterIdx := len(b.clusterBodies)
	info, err := packEntryInfo(uint32(clusterIdx), uint32(blobIdx))
	if err != nil {
		return 0, err
	}
	entryIdx := bases.Idx(len(b.entryInfos))
	b.entryInfos = append(b.entryInfos, info)

	if full {
		if err := b.closeCluster(); err != nil {
			return 0, err
		}
	}
	return entryIdx, nil
}

// closeCluster compresses and appends the in-progress cluster, then
// starts a fresh one.
func (b *Builder) closeCluster() error {
	body, tailLen, err := b.current.Finish(b.codec, b.entropyThreshold)
	if err != nil {
		return fmt.Errorf("content pack: closing cluster %d: %w", len(b.clusterBodies), err)
	}
	b.clusterBodies = append(b.clusterBodies, body)
	b.clusterTailLens = append(b.clusterTailLens, tailLen)
	b.current = NewClusterBuilder(b.threshold)
	return nil
}

// EntryCount returns the number of blobs added so far.
func (b *Builder) EntryCount() int { return len(b.entryInfos) }

// Write renders the content pack to w: header, entry-info and
// cluster-pointer tables, cluster bodies, check tail, and header tail,
// following the same two-pass offset computation [directory.Builder]
// and [container.Builder] use — every length is known (clusters are
// already compressed) before any byte is written. Returns the pack's
// freshly-generated UUID, which the caller needs to record in a
// manifest PackInfo.
func (b *Builder) Write(w io.Writer) (uuid.UUID, error) {
	if !b.current.Empty() {
		if err := b.closeCluster(); err != nil {
			return uuid.Nil, err
		}
	}

	tocLen := 4 + 4 + len(b.entryInfos)*4 + len(b.clusterBodies)*8
	cursor := bases.Offset(pack.HeaderSize) + bases.Offset(tocLen)

	clusterPointers := make([]bases.SizedOffset, len(b.clusterBodies))
	for i, body := range b.clusterBodies {
		cursor += bases.Offset(len(body))
		tailStart := cursor - bases.Offset(b.clusterTailLens[i])
		clusterPointers[i] = bases.SizedOffset{Offset: tailStart, Size: bases.Size(b.clusterTailLens[i])}
	}

	checkInfoPos := cursor
	checkTail := pack.CheckTail{Kind: pack.CheckBlake3}
	cursor += bases.Offset(checkTail.Size())
	packSize := cursor + bases.Offset(pack.HeaderSize) // PackSize covers the trailing tail copy too

	var toc []byte
	var err error
	toc, err = bases.AppendUint(toc, uint64(len(b.entryInfos)), 4)
	if err != nil {
		return uuid.Nil, err
	}
	toc, err = bases.AppendUint(toc, uint64(len(b.clusterBodies)), 4)
	if err != nil {
		return uuid.Nil, err
	}
	for _, info := range b.entryInfos {
		toc, err = bases.AppendUint(toc, uint64(info), 4)
		if err != nil {
			return uuid.Nil, err
		}
	}
	for _, so := range clusterPointers {
		toc, err = bases.AppendUint(toc, so.Pack(), 8)
		if err != nil {
			return uuid.Nil, err
		}
	}
	if len(toc) != tocLen {
		return uuid.Nil, fmt.Errorf("content pack: internal error, toc length %d != reserved %d", len(toc), tocLen)
	}

	header := pack.Header{
		Kind:         pack.KindContent,
		AppVendorID:  b.appVendorID,
		UUID:         uuid.New(),
		PackSize:     bases.Size(packSize),
		CheckInfoPos: checkInfoPos,
	}
	h := blake3.New()
	hw := io.MultiWriter(w, h)
	head := header.Encode()
	if _, err := hw.Write(head[:]); err != nil {
		return uuid.Nil, err
	}
	if _, err := hw.Write(toc); err != nil {
		return uuid.Nil, err
	}
	for _, body := range b.clusterBodies {
		if _, err := hw.Write(body); err != nil {
			return uuid.Nil, err
		}
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	checkTail.Digest = digest
	if _, err := w.Write(checkTail.Encode()); err != nil {
		return uuid.Nil, err
	}
	tailBytes := header.Tail()
	if _, err := w.Write(tailBytes[:]); err != nil {
		return uuid.Nil, err
	}
	return header.UUID, nil
}
