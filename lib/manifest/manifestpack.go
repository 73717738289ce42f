// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/container"
	"github.com/jbk-format/jbk/lib/pack"
)

// manifestHeaderSize is the size, right after the 64-byte pack header,
// of the manifest's own small header: packCount (u16) plus a value
// store position (SizedOffset), matching the original implementation's
// ManifestPackHeader shape (spec §3 names "packCount, a value store
// offset" on the manifest pack).
const manifestHeaderSize = 2 + 8

// Pack is a parsed manifest pack: the directory pack's own PackInfo
// (always present, always first) plus one PackInfo per other pack the
// container holds.
type Pack struct {
	Header            pack.Header
	ValueStorePos     bases.SizedOffset
	DirectoryPackInfo PackInfo
	PackInfos         []PackInfo

	region *bases.Region
}

// Open parses a manifest pack's table of PackInfo records. It does not
// resolve or open any of the packs they describe; see [Resolve].
func Open(region *bases.Region) (*Pack, error) {
	header, packRegion, err := pack.OpenByHeader(region)
	if err != nil {
		return nil, err
	}
	if header.Kind != pack.KindManifest {
		return nil, fmt.Errorf("manifest pack: header declares kind %s, want %s", header.Kind, pack.KindManifest)
	}

	r := packRegion.NewReader(bases.Offset(pack.HeaderSize))
	packCount, err := r.ReadUint(2)
	if err != nil {
		return nil, fmt.Errorf("manifest pack: pack count: %w", err)
	}
	valueStorePos, err := r.ReadSizedOffset()
	if err != nil {
		return nil, fmt.Errorf("manifest pack: value store position: %w", err)
	}

	directoryInfoBuf, err := r.ReadBytes(PackInfoSize)
	if err != nil {
		return nil, fmt.Errorf("manifest pack: directory PackInfo: %w", err)
	}
	directoryInfo, err := ParsePackInfo(directoryInfoBuf)
	if err != nil {
		return nil, fmt.Errorf("manifest pack: directory PackInfo: %w", err)
	}

	packInfos := make([]PackInfo, packCount)
	for i := range packInfos {
		buf, err := r.ReadBytes(PackInfoSize)
		if err != nil {
			return nil, fmt.Errorf("manifest pack: PackInfo %d: %w", i, err)
		}
		info, err := ParsePackInfo(buf)
		if err != nil {
			return nil, fmt.Errorf("manifest pack: PackInfo %d: %w", i, err)
		}
		packInfos[i] = info
	}

	return &Pack{
		Header:            header,
		ValueStorePos:     valueStorePos,
		DirectoryPackInfo: directoryInfo,
		PackInfos:         packInfos,
		region:            packRegion,
	}, nil
}

// AllPackInfos returns every PackInfo the manifest carries, the
// directory pack's record first, matching on-disk order.
func (m *Pack) AllPackInfos() []PackInfo {
	return append([]PackInfo{m.DirectoryPackInfo}, m.PackInfos...)
}

// Find returns the PackInfo for packID. When two records share a
// packId (spec §3's "alternatives" rule) the earlier one in on-disk
// order wins.
func (m *Pack) Find(packID uint16) (PackInfo, bool) {
	for _, info := range m.AllPackInfos() {
		if info.PackID == packID {
			return info, true
		}
	}
	return PackInfo{}, false
}

// FindRecordByUUID returns the on-disk record index (0 for the
// directory pack's record, 1..len(PackInfos) for the others, matching
// [Pack.AllPackInfos]'s order) of the PackInfo whose UUID matches id,
// for a caller that needs [Pack.RecordOffset] to patch that record's
// packLocation in place.
func (m *Pack) FindRecordByUUID(id uuid.UUID) (PackInfo, int, bool) {
	for i, info := range m.AllPackInfos() {
		if info.UUID == id {
			return info, i, true
		}
	}
	return PackInfo{}, 0, false
}

// RecordOffset returns the byte offset, relative to the start of the
// manifest pack, of the recordIndex-th PackInfo record (as numbered by
// [Pack.FindRecordByUUID]) — where a caller must write a freshly
// [PackInfo.Encode]d record (e.g. the result of [UpdateLocator]) to
// rewrite it in place.
func (m *Pack) RecordOffset(recordIndex int) bases.Offset {
	base := bases.Offset(pack.HeaderSize) + manifestHeaderSize
	return base + bases.Offset(recordIndex)*PackInfoSize
}

// checkMasks returns the byte ranges, relative to the start of the
// pack, that the manifest's own Blake3 digest must treat as zero: each
// PackInfo record's packLocation field and its per-record CRC32 (spec
// §4.2's check_integrity masking rule).
func (m *Pack) checkMasks() []pack.ByteRange {
	base := bases.Offset(pack.HeaderSize) + manifestHeaderSize
	masks := make([]pack.ByteRange, 0, 2*(1+len(m.PackInfos)))
	for i := 0; i < 1+len(m.PackInfos); i++ {
		recordStart := uint64(base) + uint64(i)*PackInfoSize
		masks = append(masks,
			pack.ByteRange{Start: recordStart + packLocationOffset, End: recordStart + packInfoCRCOffset},
			pack.ByteRange{Start: recordStart + packInfoCRCOffset, End: recordStart + PackInfoSize},
		)
	}
	return masks
}

// CheckIntegrity verifies the manifest's own check-tail digest with
// the locator/per-record-CRC masking [Pack.checkMasks] describes.
func (m *Pack) CheckIntegrity() error {
	return pack.CheckIntegrity(m.region, m.Header, m.checkMasks())
}

// ResolvedPack is what [Resolve] returns for a successfully
// located pack: its parsed header and a region scoped to exactly its
// bytes.
type ResolvedPack struct {
	Header pack.Header
	Region *bases.Region
}

// Resolve locates the pack described by info, searching (a) enclosing
// (the container the manifest itself lives in, if any) then (b)
// info.PackLocation as a relative/absolute filesystem path or a file:
// URL, resolved against baseDir (spec §4.8). Absence is not an error:
// a pack that cannot be found anywhere resolves to [Missing].
func Resolve(info PackInfo, enclosing *container.Container, baseDir string) (Resolved[ResolvedPack], error) {
	if enclosing != nil {
		region, header, found, err := enclosing.Find(info.UUID)
		if err != nil {
			return Resolved[ResolvedPack]{}, fmt.Errorf("manifest: searching enclosing container for %s: %w", info.UUID, err)
		}
		if found {
			return Present(ResolvedPack{Header: header, Region: region}), nil
		}
	}

	if info.PackLocation == "" {
		return Missing[ResolvedPack](info), nil
	}

	path, err := resolveLocationPath(info.PackLocation, baseDir)
	if err != nil {
		return Resolved[ResolvedPack]{}, fmt.Errorf("manifest: malformed packLocation %q: %w", info.PackLocation, err)
	}

	region, err := bases.OpenFile(path)
	if err != nil {
		// Unopenable (missing file, permission denied, ...) is the
		// "absence is not fatal" case, not a format error.
		return Missing[ResolvedPack](info), nil
	}
	header, packRegion, err := pack.OpenByHeader(region)
	if err != nil {
		region.Close()
		return Resolved[ResolvedPack]{}, fmt.Errorf("manifest: pack at %s is malformed: %w", path, err)
	}
	return Present(ResolvedPack{Header: header, Region: packRegion}), nil
}

// resolveLocationPath turns a PackInfo's packLocation string into a
// filesystem path: a file: URL's path component, an absolute path
// unchanged, or a relative path joined against baseDir.
func resolveLocationPath(location, baseDir string) (string, error) {
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return "", err
		}
		return u.Path, nil
	}
	if filepath.IsAbs(location) {
		return location, nil
	}
	return filepath.Join(baseDir, location), nil
}

// UpdateLocator rewrites a PackInfo's packLocation, recomputing its
// per-record CRC32 in place. This is the sole supported in-place
// mutation (spec §4.8): because packLocation and the per-record CRC32
// are both masked out of the manifest's own Blake3 digest, rewriting
// them never invalidates [Pack.CheckIntegrity].
func UpdateLocator(info PackInfo, newLocation string) (PackInfo, error) {
	if len(newLocation) > maxPackLocationLen {
		return PackInfo{}, fmt.Errorf("manifest: new packLocation %q exceeds %d bytes", newLocation, maxPackLocationLen)
	}
	info.PackLocation = newLocation
	return info, nil
}

// Builder accumulates PackInfo records for a new manifest pack. The
// directory pack's record is always added first and always present,
// matching spec §3's "directory pack info, unconditionally, then
// packCount further records" ordering.
type Builder struct {
	appVendorID uint32
	directory   *PackInfo
	others      []PackInfo
	valueStore  []byte
}

// NewBuilder creates an empty manifest pack builder.
func NewBuilder(appVendorID uint32) *Builder {
	return &Builder{appVendorID: appVendorID}
}

// SetDirectoryPackInfo records the directory pack's own PackInfo, the
// record every manifest carries before any other.
func (b *Builder) SetDirectoryPackInfo(info PackInfo) {
	b.directory = &info
}

// AddPackInfo appends a PackInfo for a content or other pack and
// returns its index within the "further records" table (not counting
// the directory pack's record).
func (b *Builder) AddPackInfo(info PackInfo) int {
	b.others = append(b.others, info)
	return len(b.others) - 1
}

// SetValueStore attaches an already-rendered value store, written
// immediately after the PackInfo table (spec §3's manifest value
// store, used for extended per-pack metadata beyond PackInfo's fixed
// fields). Pass nil for a manifest with no value store.
func (b *Builder) SetValueStore(rendered []byte) {
	b.valueStore = rendered
}

// Write renders the manifest pack to w: header, packCount and a value
// store position, the directory pack's PackInfo, packCount further
// PackInfo records, an optional value store, and a Blake3 check tail
// masking every record's packLocation and per-record CRC32 (spec
// §4.8), then the byte-swapped header tail.
func (b *Builder) Write(w io.Writer) error {
	if b.directory == nil {
		return fmt.Errorf("manifest pack: no directory pack info set")
	}

	directoryBytes, err := b.directory.Encode()
	if err != nil {
		return fmt.Errorf("manifest pack: directory PackInfo: %w", err)
	}
	otherBytes := make([][PackInfoSize]byte, len(b.others))
	for i, info := range b.others {
		enc, err := info.Encode()
		if err != nil {
			return fmt.Errorf("manifest pack: PackInfo %d: %w", i, err)
		}
		otherBytes[i] = enc
	}

	cursor := bases.Offset(pack.HeaderSize) + manifestHeaderSize +
		bases.Offset(PackInfoSize)*bases.Offset(1+len(b.others))
	var valueStorePos bases.SizedOffset
	if len(b.valueStore) > 0 {
		valueStorePos = bases.SizedOffset{Offset: cursor, Size: bases.Size(len(b.valueStore))}
		cursor += bases.Offset(len(b.valueStore))
	}

	checkInfoPos := cursor
	packSize := checkInfoPos + bases.Offset(1+32) + bases.Offset(pack.HeaderSize)

	header := pack.Header{
		Kind:         pack.KindManifest,
		AppVendorID:  b.appVendorID,
		UUID:         uuid.New(),
		PackSize:     bases.Size(packSize),
		CheckInfoPos: checkInfoPos,
	}

	var body []byte
	body, err = bases.AppendUint(body, uint64(len(b.others)), 2)
	if err != nil {
		return err
	}
	body, err = bases.AppendUint(body, valueStorePos.Pack(), 8)
	if err != nil {
		return err
	}
	body = append(body, directoryBytes[:]...)
	for _, enc := range otherBytes {
		body = append(body, enc[:]...)
	}
	body = append(body, b.valueStore...)

	head := header.Encode()
	digestInput := append(append([]byte(nil), head[:]...), body...)
	masks := manifestCheckMasks(len(b.others))
	digest := pack.ComputeBlake3Masked(digestInput, masks)
	checkTail := pack.CheckTail{Kind: pack.CheckBlake3, Digest: digest}

	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if _, err := w.Write(checkTail.Encode()); err != nil {
		return err
	}
	tailBytes := header.Tail()
	if _, err := w.Write(tailBytes[:]); err != nil {
		return err
	}
	return nil
}

// manifestCheckMasks is [Pack.checkMasks]'s counterpart during
// writing, computed from a record count rather than a parsed [Pack].
func manifestCheckMasks(otherCount int) []pack.ByteRange {
	base := uint64(pack.HeaderSize) + uint64(manifestHeaderSize)
	masks := make([]pack.ByteRange, 0, 2*(1+otherCount))
	for i := 0; i < 1+otherCount; i++ {
		recordStart := base + uint64(i)*PackInfoSize
		masks = append(masks,
			pack.ByteRange{Start: recordStart + packLocationOffset, End: recordStart + packInfoCRCOffset},
			pack.ByteRange{Start: recordStart + packInfoCRCOffset, End: recordStart + PackInfoSize},
		)
	}
	return masks
}
