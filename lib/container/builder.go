// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/pack"
	"github.com/zeebo/blake3"
)

// Builder assembles a container pack by concatenating pre-built
// sub-pack byte streams behind a single container header, followed by
// the locator table and the container's own check tail. Sub-packs are
// streamed through unmodified; the builder never re-parses or
// re-validates them.
//
// Offsets are computed in a first pass over the already-known
// sub-pack lengths, then written in a second pass — the two-pass
// strategy the format's own design notes call out as an acceptable
// way to back-patch positions that can only be known once everything
// preceding them has a final size.
type Builder struct {
	appVendorID uint32
	subPacks    [][]byte
	locators    []PackLocator
}

// NewBuilder creates an empty container builder.
func NewBuilder(appVendorID uint32) *Builder {
	return &Builder{appVendorID: appVendorID}
}

// AddPack appends a fully-sealed sub-pack's bytes to the container.
// subPackUUID and len(data) become that sub-pack's PackLocator entry;
// the caller is responsible for data already being a valid, sealed
// pack (header and tail written, check-tail computed).
func (b *Builder) AddPack(subPackUUID uuid.UUID, data []byte) {
	b.subPacks = append(b.subPacks, data)
	b.locators = append(b.locators, PackLocator{UUID: subPackUUID, PackSize: bases.Size(len(data))})
}

// Write finalizes the container: its own header, then every sub-pack
// in the order added, then the locator table, then the check tail,
// then the byte-swapped header tail. Returns the container's UUID.
func (b *Builder) Write(w io.Writer) (uuid.UUID, error) {
	if len(b.subPacks) == 0 {
		return uuid.Nil, fmt.Errorf("container.Builder: no sub-packs added")
	}

	cursor := bases.Offset(pack.HeaderSize)
	for i, data := range b.subPacks {
		b.locators[i].PackOffset = cursor
		cursor += bases.Offset(len(data))
	}

	packsPos := cursor
	cursor += bases.Offset(len(b.locators)) * LocatorSize

	checkInfoPos := cursor
	tail := pack.CheckTail{Kind: pack.CheckBlake3}
	cursor += bases.Offset(tail.Size())

	header := pack.Header{
		Kind:         pack.KindContainer,
		AppVendorID:  b.appVendorID,
		UUID:         uuid.New(),
		PackSize:     bases.Size(cursor) + pack.HeaderSize,
		CheckInfoPos: checkInfoPos,
		PackCount:    uint16(len(b.locators)),
		PacksPos:     packsPos,
	}

	h := blake3.New()
	hw := io.MultiWriter(w, h)

	headBytes := header.Encode()
	if _, err := hw.Write(headBytes[:]); err != nil {
		return uuid.Nil, fmt.Errorf("writing container header: %w", err)
	}

	for i, data := range b.subPacks {
		if _, err := hw.Write(data); err != nil {
			return uuid.Nil, fmt.Errorf("writing sub-pack %d: %w", i, err)
		}
	}

	for i, loc := range b.locators {
		enc := loc.Encode()
		if _, err := hw.Write(enc[:]); err != nil {
			return uuid.Nil, fmt.Errorf("writing locator %d: %w", i, err)
		}
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	tail.Digest = digest
	if _, err := w.Write(tail.Encode()); err != nil {
		return uuid.Nil, fmt.Errorf("writing check tail: %w", err)
	}

	tailBytes := header.Tail()
	if _, err := w.Write(tailBytes[:]); err != nil {
		return uuid.Nil, fmt.Errorf("writing container tail: %w", err)
	}

	return header.UUID, nil
}
