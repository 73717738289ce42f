// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

// Package jbk composes lib/bases, lib/pack, lib/container, lib/directory,
// lib/content, and lib/manifest into the two public entry points a
// caller actually wants: a reader that opens a container or a bare
// manifest pack and fetches entries/blobs by content address, and a
// writer that streams blobs and entries into a finished set of packs.
package jbk

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/config"
	"github.com/jbk-format/jbk/lib/container"
	"github.com/jbk-format/jbk/lib/content"
	"github.com/jbk-format/jbk/lib/directory"
	"github.com/jbk-format/jbk/lib/manifest"
	"github.com/jbk-format/jbk/lib/pack"
)

// Reader is an opened jbk container or bare manifest pack: the
// manifest's pack inventory, plus lazily-parsed/opened directory and
// content packs shared across every caller. Every method is safe to
// call from any number of goroutines concurrently (spec §4.9, §5).
type Reader struct {
	region         *bases.Region
	outerHeader    pack.Header
	outerContainer *container.Container
	manifestPack   *manifest.Pack
	baseDir        string
	cfg            *config.ReaderConfig
	cache          *content.Cache

	mu            sync.Mutex
	directoryPack *directory.DirectoryPack
	directoryErr  error
	contentPacks  map[uint16]*content.Pack
}

// Open opens the jbk file at path: a bare manifest pack, or a
// container pack holding one among its sub-packs. It tries
// [pack.OpenByTail] before [pack.OpenByHeader] so a pack appended to
// an arbitrary host file (e.g. a self-extracting executable) still
// opens, matching the original implementation's open strategy (§D
// "Open-by-tail prefix tolerance"). cfg may be nil to use
// [config.DefaultReaderConfig].
func Open(path string, cfg *config.ReaderConfig) (*Reader, error) {
	if cfg == nil {
		cfg = config.DefaultReaderConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("jbk: %w", err)
	}

	region, err := bases.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("jbk: opening %s: %w", path, err)
	}

	header, packRegion, err := pack.OpenByTail(region)
	if err != nil {
		header, packRegion, err = pack.OpenByHeader(region)
		if err != nil {
			region.Close()
			return nil, fmt.Errorf("jbk: %s is not a recognizable pack: %w", path, err)
		}
	}

	r := &Reader{
		region:       region,
		outerHeader:  header,
		baseDir:      filepath.Dir(path),
		cfg:          cfg,
		cache:        content.NewCache(cfg.CacheCapacity),
		contentPacks: make(map[uint16]*content.Pack),
	}

	manifestRegion := packRegion
	switch header.Kind {
	case pack.KindManifest:
		// manifestRegion is already packRegion.
	case pack.KindContainer:
		c, err := container.Open(packRegion)
		if err != nil {
			region.Close()
			return nil, fmt.Errorf("jbk: %s: %w", path, err)
		}
		r.outerContainer = c

		found := false
		for i := range c.Locators {
			sub, err := c.SubPackRegion(i)
			if err != nil {
				region.Close()
				return nil, fmt.Errorf("jbk: %s: sub-pack %d: %w", path, i, err)
			}
			subHeader, subPackRegion, err := pack.OpenByHeader(sub)
			if err != nil {
				region.Close()
				return nil, fmt.Errorf("jbk: %s: sub-pack %d: %w", path, i, err)
			}
			if subHeader.Kind == pack.KindManifest {
				manifestRegion = subPackRegion
				found = true
				break
			}
		}
		if !found {
			region.Close()
			return nil, fmt.Errorf("jbk: %s: container holds no manifest pack", path)
		}
	default:
		region.Close()
		return nil, fmt.Errorf("jbk: %s: outer pack has kind %s, want manifest or container", path, header.Kind)
	}

	m, err := manifest.Open(manifestRegion)
	if err != nil {
		region.Close()
		return nil, fmt.Errorf("jbk: %s: %w", path, err)
	}
	r.manifestPack = m

	return r, nil
}

// Close releases the reader's root byte region (the memory map backing
// the opened file). Regions resolved through a PackInfo's packLocation
// rather than the enclosing container are released when the process
// exits with the mapping, matching [manifest.Resolve]'s ownership model.
func (r *Reader) Close() error {
	return r.region.Close()
}

// Manifest returns the reader's parsed manifest pack.
func (r *Reader) Manifest() *manifest.Pack {
	return r.manifestPack
}

// Container returns the outer container pack, or nil if the reader was
// opened against a bare manifest pack.
func (r *Reader) Container() *container.Container {
	return r.outerContainer
}

// OuterHeader returns the header of the pack [Open] found at path
// (the container's, if there is one, otherwise the manifest's own).
func (r *Reader) OuterHeader() pack.Header {
	return r.outerHeader
}

// ResolvePack locates the pack info describes, the same way
// [Reader.Directory] and [Reader.FetchBlob] do internally: inside the
// enclosing container first, then by info.PackLocation. Exposed so a
// caller walking [manifest.Pack.AllPackInfos] (e.g. to check every
// pack's integrity) doesn't have to re-derive the reader's container
// and base directory.
func (r *Reader) ResolvePack(info manifest.PackInfo) (manifest.Resolved[manifest.ResolvedPack], error) {
	return manifest.Resolve(info, r.outerContainer, r.baseDir)
}

// Directory resolves and parses the container's one directory pack
// (spec §3 "one directory pack per container"), caching it for
// subsequent calls. Concurrent calls before the first successful parse
// share one resolution attempt.
func (r *Reader) Directory() (*directory.DirectoryPack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.directoryPack != nil {
		return r.directoryPack, nil
	}
	if r.directoryErr != nil {
		return nil, r.directoryErr
	}

	resolved, err := manifest.Resolve(r.manifestPack.DirectoryPackInfo, r.outerContainer, r.baseDir)
	if err != nil {
		r.directoryErr = fmt.Errorf("jbk: resolving directory pack: %w", err)
		return nil, r.directoryErr
	}
	rp, present := resolved.Get()
	if !present {
		r.directoryErr = fmt.Errorf("jbk: directory pack %s could not be located", r.manifestPack.DirectoryPackInfo.UUID)
		return nil, r.directoryErr
	}
	if rp.Header.Kind != pack.KindDirectory {
		r.directoryErr = fmt.Errorf("jbk: directory pack %s has kind %s, want directory", rp.Header.UUID, rp.Header.Kind)
		return nil, r.directoryErr
	}

	dp, err := directory.Open(rp.Region)
	if err != nil {
		r.directoryErr = fmt.Errorf("jbk: opening directory pack: %w", err)
		return nil, r.directoryErr
	}
	r.directoryPack = dp
	return dp, nil
}

// contentPack resolves, opens, and caches the content pack registered
// under packID in the manifest. A pack that cannot be located resolves
// to [manifest.Missing] rather than an error (spec §4.8, §7's
// "missing collaborator" category).
func (r *Reader) contentPack(packID uint16) (manifest.Resolved[*content.Pack], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cp, ok := r.contentPacks[packID]; ok {
		return manifest.Present(cp), nil
	}

	// Only content-pack records are searched: the directory pack's own
	// record also carries packId 0, so Find would return it for pack 0.
	var info manifest.PackInfo
	ok := false
	for _, candidate := range r.manifestPack.PackInfos {
		if candidate.PackID == packID {
			info, ok = candidate, true
			break
		}
	}
	if !ok {
		return manifest.Resolved[*content.Pack]{}, fmt.Errorf("jbk: no PackInfo for packId %d", packID)
	}

	resolved, err := manifest.Resolve(info, r.outerContainer, r.baseDir)
	if err != nil {
		return manifest.Resolved[*content.Pack]{}, fmt.Errorf("jbk: resolving pack %d: %w", packID, err)
	}
	rp, present := resolved.Get()
	if !present {
		missingInfo, _ := resolved.MissingInfo()
		return manifest.Missing[*content.Pack](missingInfo), nil
	}
	if rp.Header.Kind != pack.KindContent {
		return manifest.Resolved[*content.Pack]{}, fmt.Errorf("jbk: pack %d has kind %s, want content", packID, rp.Header.Kind)
	}

	cp, err := content.Open(rp.Region, r.cache)
	if err != nil {
		return manifest.Resolved[*content.Pack]{}, fmt.Errorf("jbk: opening content pack %d: %w", packID, err)
	}
	r.contentPacks[packID] = cp
	return manifest.Present(cp), nil
}

// FetchBlob returns the bytes a content address names, routing through
// the manifest to find and open the owning content pack. A pack that
// cannot be located resolves to [manifest.Missing] rather than an
// error; an address within a resolved pack that is itself out of range
// is a format error.
func (r *Reader) FetchBlob(addr ContentAddress) (manifest.Resolved[[]byte], error) {
	resolved, err := r.contentPack(addr.PackID)
	if err != nil {
		return manifest.Resolved[[]byte]{}, err
	}
	cp, present := resolved.Get()
	if !present {
		info, _ := resolved.MissingInfo()
		return manifest.Missing[[]byte](info), nil
	}

	blob, err := cp.FetchBlob(bases.Idx(addr.ContentID))
	if err != nil {
		return manifest.Resolved[[]byte]{}, fmt.Errorf("jbk: fetching blob %+v: %w", addr, err)
	}
	return manifest.Present(blob), nil
}

// FetchField is a convenience wrapper for the common case of reading a
// [directory.KindContentAddress] field out of an already-decoded entry
// and fetching the blob it points to: it recovers the field's
// packId/contentId widths via [directory.Decoder.FieldProperty] (not
// carried by [directory.Value] itself), splits the raw bytes, and
// calls [Reader.FetchBlob].
func (r *Reader) FetchField(decoder *directory.Decoder, fieldName string, values map[string]directory.Value) (manifest.Resolved[[]byte], error) {
	v, ok := values[fieldName]
	if !ok {
		return manifest.Resolved[[]byte]{}, fmt.Errorf("jbk: field %q not present in decoded entry", fieldName)
	}
	prop, ok := decoder.FieldProperty(fieldName)
	if !ok || prop.Kind != directory.KindContentAddress {
		return manifest.Resolved[[]byte]{}, fmt.Errorf("jbk: field %q is not a content-address property", fieldName)
	}
	addr, err := DecodeContentAddress(v.Bytes, prop.PackIDWidth, prop.ContentIDWidth)
	if err != nil {
		return manifest.Resolved[[]byte]{}, fmt.Errorf("jbk: field %q: %w", fieldName, err)
	}
	return r.FetchBlob(addr)
}
