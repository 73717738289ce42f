// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/pack"
	"github.com/zeebo/blake3"
)

// entryStoreDescriptor records which layout an entry store's records
// follow, alongside its byte range.
type entryStoreDescriptor struct {
	region     bases.SizedOffset
	layoutIdx  uint16
	entryCount uint32
}

// indexDescriptor records one sorted-index window over an entry
// store, by the name of the field it's ordered on (resolved against
// whatever [Schema] the caller binds the entry store's layout with).
type indexDescriptor struct {
	entryStoreIdx uint16
	keyField      string
	entryOffset   uint32
	entryCount    uint32
}

// DirectoryPack aggregates value stores, layouts, entry stores, and
// indexes behind one checksummed pack. It holds the pack's raw region
// and a table of contents; callers resolve stores/layouts/entry
// stores lazily by index rather than paying to materialize everything
// at Open time.
type DirectoryPack struct {
	Header pack.Header

	region      *bases.Region
	valueStores []bases.SizedOffset
	layouts     []bases.SizedOffset
	entryStores []entryStoreDescriptor
	indexes     []indexDescriptor
}

// Open parses a directory pack's table of contents. Store/layout/
// entry-store bytes are not decoded until a caller asks for them.
func Open(region *bases.Region) (*DirectoryPack, error) {
	header, packRegion, err := pack.OpenByHeader(region)
	if err != nil {
		return nil, err
	}
	if header.Kind != pack.KindDirectory {
		return nil, fmt.Errorf("directory pack: header declares kind %s, want %s", header.Kind, pack.KindDirectory)
	}

	r := packRegion.NewReader(bases.Offset(pack.HeaderSize))

	valueStores, err := readSizedOffsetTable(r)
	if err != nil {
		return nil, fmt.Errorf("directory pack: value store table: %w", err)
	}
	layouts, err := readSizedOffsetTable(r)
	if err != nil {
		return nil, fmt.Errorf("directory pack: layout table: %w", err)
	}

	entryStoreCountRaw, err := r.ReadUint(1)
	if err != nil {
		return nil, fmt.Errorf("directory pack: entry store count: %w", err)
	}
	entryStores := make([]entryStoreDescriptor, entryStoreCountRaw)
	for i := range entryStores {
		so, err := r.ReadSizedOffset()
		if err != nil {
			return nil, fmt.Errorf("directory pack: entry store %d region: %w", i, err)
		}
		layoutIdx, err := r.ReadUint(2)
		if err != nil {
			return nil, fmt.Errorf("directory pack: entry store %d layout index: %w", i, err)
		}
		entryCount, err := r.ReadUint(4)
		if err != nil {
			return nil, fmt.Errorf("directory pack: entry store %d entry count: %w", i, err)
		}
		entryStores[i] = entryStoreDescriptor{region: so, layoutIdx: uint16(layoutIdx), entryCount: uint32(entryCount)}
	}

	indexCountRaw, err := r.ReadUint(1)
	if err != nil {
		return nil, fmt.Errorf("directory pack: index count: %w", err)
	}
	indexes := make([]indexDescriptor, indexCountRaw)
	for i := range indexes {
		entryStoreIdx, err := r.ReadUint(2)
		if err != nil {
			return nil, fmt.Errorf("directory pack: index %d entry store index: %w", i, err)
		}
		keyField, err := r.ReadPascalString()
		if err != nil {
			return nil, fmt.Errorf("directory pack: index %d key field: %w", i, err)
		}
		entryOffset, err := r.ReadUint(4)
		if err != nil {
			return nil, fmt.Errorf("directory pack: index %d entry offset: %w", i, err)
		}
		entryCount, err := r.ReadUint(4)
		if err != nil {
			return nil, fmt.Errorf("directory pack: index %d entry count: %w", i, err)
		}
		indexes[i] = indexDescriptor{
			entryStoreIdx: uint16(entryStoreIdx),
			keyField:      keyField,
			entryOffset:   uint32(entryOffset),
			entryCount:    uint32(entryCount),
		}
	}

	return &DirectoryPack{
		Header:      header,
		region:      packRegion,
		valueStores: valueStores,
		layouts:     layouts,
		entryStores: entryStores,
		indexes:     indexes,
	}, nil
}

func readSizedOffsetTable(r *bases.StreamReader) ([]bases.SizedOffset, error) {
	countRaw, err := r.ReadUint(1)
	if err != nil {
		return nil, err
	}
	out := make([]bases.SizedOffset, countRaw)
	for i := range out {
		so, err := r.ReadSizedOffset()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = so
	}
	return out, nil
}

// ValueStoreCount, LayoutCount, EntryStoreCount, IndexCount report the
// table of contents' sizes.
func (p *DirectoryPack) ValueStoreCount() int { return len(p.valueStores) }
func (p *DirectoryPack) LayoutCount() int     { return len(p.layouts) }
func (p *DirectoryPack) EntryStoreCount() int { return len(p.entryStores) }
func (p *DirectoryPack) IndexCount() int      { return len(p.indexes) }

// CheckIntegrity verifies the directory pack's check-tail digest.
// Unlike the manifest pack, no byte range of a directory pack is ever
// rewritten in place, so no mask is needed.
func (p *DirectoryPack) CheckIntegrity() error {
	return pack.CheckIntegrity(p.region, p.Header, nil)
}

func (p *DirectoryPack) sliceSizedOffset(so bases.SizedOffset) ([]byte, error) {
	region, err := p.region.Slice(so.Offset, so.Size)
	if err != nil {
		return nil, err
	}
	return region.Bytes(), nil
}

// Layout returns the parsed layout at idx.
func (p *DirectoryPack) Layout(idx int) (Layout, error) {
	if idx < 0 || idx >= len(p.layouts) {
		return Layout{}, fmt.Errorf("directory pack: layout index %d out of range [0, %d)", idx, len(p.layouts))
	}
	buf, err := p.sliceSizedOffset(p.layouts[idx])
	if err != nil {
		return Layout{}, err
	}
	return ParseLayout(buf)
}

// ValueStore returns the parsed value store at idx, dispatching on its
// leading kind byte.
func (p *DirectoryPack) ValueStore(idx int) (ValueStore, error) {
	if idx < 0 || idx >= len(p.valueStores) {
		return nil, fmt.Errorf("directory pack: value store index %d out of range [0, %d)", idx, len(p.valueStores))
	}
	so := p.valueStores[idx]
	region, err := p.region.Slice(so.Offset, so.Size)
	if err != nil {
		return nil, err
	}
	if so.Size == 0 {
		return nil, fmt.Errorf("directory pack: value store %d is empty", idx)
	}
	kindByte, err := region.ReadUint(bases.Offset(region.Len())-1, 1)
	if err != nil {
		return nil, err
	}
	switch StoreKind(kindByte) {
	case StorePlain:
		store, err := ParsePlainStore(region)
		if err != nil {
			return nil, fmt.Errorf("directory pack: value store %d: %w", idx, err)
		}
		return store, nil
	case StoreIndexed:
		store, err := ParseIndexedStore(region)
		if err != nil {
			return nil, fmt.Errorf("directory pack: value store %d: %w", idx, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("directory pack: value store %d: unknown kind %d", idx, kindByte)
	}
}

// EntryStore returns the entry store at idx. Callers still need
// [Bind] with a [Schema] to read named fields out of it.
func (p *DirectoryPack) EntryStore(idx int) (*EntryStore, error) {
	if idx < 0 || idx >= len(p.entryStores) {
		return nil, fmt.Errorf("directory pack: entry store index %d out of range [0, %d)", idx, len(p.entryStores))
	}
	desc := p.entryStores[idx]
	layout, err := p.Layout(int(desc.layoutIdx))
	if err != nil {
		return nil, fmt.Errorf("directory pack: entry store %d: %w", idx, err)
	}
	data, err := p.sliceSizedOffset(desc.region)
	if err != nil {
		return nil, err
	}
	return NewEntryStore(layout, data)
}

// Index returns the descriptor for the index at idx. Callers combine
// it with [DirectoryPack.EntryStore] and a bound [Decoder] to build a
// usable [Index] via [NewIndex].
func (p *DirectoryPack) Index(idx int) (entryStoreIdx int, keyField string, entryOffset bases.Idx, entryCount bases.EntryCount, err error) {
	if idx < 0 || idx >= len(p.indexes) {
		return 0, "", 0, 0, fmt.Errorf("directory pack: index index %d out of range [0, %d)", idx, len(p.indexes))
	}
	d := p.indexes[idx]
	return int(d.entryStoreIdx), d.keyField, bases.Idx(d.entryOffset), bases.EntryCount(d.entryCount), nil
}

// Builder accumulates value stores, layouts, entry stores, and
// indexes for a new directory pack.
type Builder struct {
	appVendorID uint32
	valueStores [][]byte
	layouts     []Layout
	entryStores []entryStoreBuild
	indexes     []indexDescriptor
}

type entryStoreBuild struct {
	data       []byte
	layoutIdx  uint16
	entryCount uint32
}

// NewBuilder creates an empty directory pack builder.
func NewBuilder(appVendorID uint32) *Builder {
	return &Builder{appVendorID: appVendorID}
}

// AddValueStore appends an already-rendered value store (the output
// of a [PlainStoreBuilder] or [IndexedStoreBuilder]'s Write) and
// returns its index.
func (b *Builder) AddValueStore(rendered []byte) int {
	b.valueStores = append(b.valueStores, rendered)
	return len(b.valueStores) - 1
}

// AddLayout appends a layout and returns its index.
func (b *Builder) AddLayout(layout Layout) int {
	b.layouts = append(b.layouts, layout)
	return len(b.layouts) - 1
}

// AddEntryStore appends an entry store's rendered record bytes, bound
// to layoutIdx, and returns its index.
func (b *Builder) AddEntryStore(layoutIdx int, entryCount bases.EntryCount, data []byte) int {
	b.entryStores = append(b.entryStores, entryStoreBuild{data: data, layoutIdx: uint16(layoutIdx), entryCount: uint32(entryCount)})
	return len(b.entryStores) - 1
}

// AddIndex declares a sorted-index window over entryStoreIdx's
// records, ordered by keyField.
func (b *Builder) AddIndex(entryStoreIdx int, keyField string, entryOffset bases.Idx, entryCount bases.EntryCount) {
	b.indexes = append(b.indexes, indexDescriptor{
		entryStoreIdx: uint16(entryStoreIdx),
		keyField:      keyField,
		entryOffset:   uint32(entryOffset),
		entryCount:    uint32(entryCount),
	})
}

// Write renders the directory pack to w, computing every table's
// byte offsets in a first pass (mirroring [container.Builder.Write]'s
// two-pass strategy) before writing header, table of contents,
// bodies, check tail, and header tail in final order. Returns the
// pack's freshly-generated UUID, which the caller needs to record in a
// manifest PackInfo.
func (b *Builder) Write(w io.Writer) (uuid.UUID, error) {
	layoutBytes := make([][]byte, len(b.layouts))
	for i, l := range b.layouts {
		enc, err := l.Encode()
		if err != nil {
			return uuid.Nil, fmt.Errorf("directory pack: layout %d: %w", i, err)
		}
		layoutBytes[i] = enc
	}

	tocLen := tocLength(len(b.valueStores), len(b.layouts), len(b.entryStores), b.indexes)
	cursor := bases.Offset(pack.HeaderSize) + bases.Offset(tocLen)

	valueStoreOffsets := make([]bases.SizedOffset, len(b.valueStores))
	for i, vs := range b.valueStores {
		valueStoreOffsets[i] = bases.SizedOffset{Offset: cursor, Size: bases.Size(len(vs))}
		cursor += bases.Offset(len(vs))
	}
	layoutOffsets := make([]bases.SizedOffset, len(b.layouts))
	for i, lb := range layoutBytes {
		layoutOffsets[i] = bases.SizedOffset{Offset: cursor, Size: bases.Size(len(lb))}
		cursor += bases.Offset(len(lb))
	}
	entryStoreOffsets := make([]bases.SizedOffset, len(b.entryStores))
	for i, es := range b.entryStores {
		entryStoreOffsets[i] = bases.SizedOffset{Offset: cursor, Size: bases.Size(len(es.data))}
		cursor += bases.Offset(len(es.data))
	}

	checkInfoPos := cursor
	checkTail := pack.CheckTail{Kind: pack.CheckBlake3}
	cursor += bases.Offset(checkTail.Size())
	packSize := cursor + bases.Offset(pack.HeaderSize) // PackSize covers the trailing tail copy too

	toc, err := encodeTOC(valueStoreOffsets, layoutOffsets, entryStoreOffsets, b.entryStores, b.indexes)
	if err != nil {
		return uuid.Nil, err
	}
	if len(toc) != tocLen {
		return uuid.Nil, fmt.Errorf("directory pack: internal error, toc length %d != reserved %d", len(toc), tocLen)
	}

	header := pack.Header{
		Kind:         pack.KindDirectory,
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
	for _, vs := range b.valueStores {
		if _, err := hw.Write(vs); err != nil {
			return uuid.Nil, err
		}
	}
	for _, lb := range layoutBytes {
		if _, err := hw.Write(lb); err != nil {
			return uuid.Nil, err
		}
	}
	for _, es := range b.entryStores {
		if _, err := hw.Write(es.data); err != nil {
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

func tocLength(valueStoreCount, layoutCount, entryStoreCount int, indexes []indexDescriptor) int {
	n := 1 + valueStoreCount*8 // count byte + packed SizedOffset (8 bytes) each
	n += 1 + layoutCount*8
	n += 1 + entryStoreCount*(8+2+4) // SizedOffset + layoutIdx(u16) + entryCount(u32)
	n++                              // index count byte
	for _, idx := range indexes {
		n += 2 + 1 + len(idx.keyField) + 4 + 4
	}
	return n
}

func encodeTOC(valueStores, layouts, entryStores []bases.SizedOffset, entryStoreMeta []entryStoreBuild, indexes []indexDescriptor) ([]byte, error) {
	var out []byte
	var err error

	out, err = appendSizedOffsetTable(out, valueStores)
	if err != nil {
		return nil, err
	}
	out, err = appendSizedOffsetTable(out, layouts)
	if err != nil {
		return nil, err
	}

	out, err = bases.AppendUint(out, uint64(len(entryStores)), 1)
	if err != nil {
		return nil, err
	}
	for i, so := range entryStores {
		out, err = bases.AppendUint(out, so.Pack(), 8)
		if err != nil {
			return nil, err
		}
		out, err = bases.AppendUint(out, uint64(entryStoreMeta[i].layoutIdx), 2)
		if err != nil {
			return nil, err
		}
		out, err = bases.AppendUint(out, uint64(entryStoreMeta[i].entryCount), 4)
		if err != nil {
			return nil, err
		}
	}

	out, err = bases.AppendUint(out, uint64(len(indexes)), 1)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		out, err = bases.AppendUint(out, uint64(idx.entryStoreIdx), 2)
		if err != nil {
			return nil, err
		}
		out, err = bases.AppendPascalString(out, idx.keyField)
		if err != nil {
			return nil, err
		}
		out, err = bases.AppendUint(out, uint64(idx.entryOffset), 4)
		if err != nil {
			return nil, err
		}
		out, err = bases.AppendUint(out, uint64(idx.entryCount), 4)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func appendSizedOffsetTable(out []byte, table []bases.SizedOffset) ([]byte, error) {
	out, err := bases.AppendUint(out, uint64(len(table)), 1)
	if err != nil {
		return nil, err
	}
	for _, so := range table {
		out, err = bases.AppendUint(out, so.Pack(), 8)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
