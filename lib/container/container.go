// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

// Package container implements the container pack: a table of
// locators describing sub-packs stored concatenated within the same
// file, letting a reader enumerate and verify them without a separate
// manifest lookup.
package container

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/pack"
)

// LocatorSize is the fixed on-disk size of one PackLocator record:
// a 16-byte UUID, an 8-byte size, and an 8-byte offset.
const LocatorSize = 32

// PackLocator points at one sub-pack stored inside a container.
type PackLocator struct {
	UUID       uuid.UUID
	PackSize   bases.Size
	PackOffset bases.Offset
}

// Encode renders a PackLocator to its 32-byte on-disk form.
func (l PackLocator) Encode() [LocatorSize]byte {
	var buf [LocatorSize]byte
	copy(buf[0:16], l.UUID[:])
	_ = bases.PutUint(buf[16:24], uint64(l.PackSize), 8)
	_ = bases.PutUint(buf[24:32], uint64(l.PackOffset), 8)
	return buf
}

// ParsePackLocator decodes one PackLocator from the start of buf.
func ParsePackLocator(buf []byte) (PackLocator, error) {
	if len(buf) < LocatorSize {
		return PackLocator{}, fmt.Errorf("pack locator requires %d bytes, got %d", LocatorSize, len(buf))
	}
	r := bases.NewMemory(buf).NewReader(0)
	idBytes, _ := r.ReadBytes(16)
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return PackLocator{}, fmt.Errorf("pack locator: invalid uuid: %w", err)
	}
	size, _ := r.ReadUint(8)
	offset, _ := r.ReadUint(8)
	return PackLocator{
		UUID:       id,
		PackSize:   bases.Size(size),
		PackOffset: bases.Offset(offset),
	}, nil
}

// Container is a parsed container pack: its header plus the locator
// table for every sub-pack it holds.
type Container struct {
	Header   pack.Header
	Locators []PackLocator

	region *bases.Region
}

// Open parses a container pack out of region, which must cover
// exactly one pack (the slice [pack.OpenByHeader] or [pack.OpenByTail]
// already produced).
func Open(region *bases.Region) (*Container, error) {
	header, packRegion, err := pack.OpenByHeader(region)
	if err != nil {
		return nil, err
	}
	if header.Kind != pack.KindContainer {
		return nil, fmt.Errorf("container.Open: pack %s has kind %s, want container", header.UUID, header.Kind)
	}

	locators, err := parseLocatorTable(packRegion, header)
	if err != nil {
		return nil, err
	}

	return &Container{Header: header, Locators: locators, region: packRegion}, nil
}

func parseLocatorTable(region *bases.Region, header pack.Header) ([]PackLocator, error) {
	tableSize := bases.Size(header.PackCount) * LocatorSize
	table, err := region.Slice(header.PacksPos, tableSize)
	if err != nil {
		return nil, fmt.Errorf("container %s: locator table at %d for %d packs out of bounds: %w",
			header.UUID, header.PacksPos, header.PackCount, err)
	}

	locators := make([]PackLocator, header.PackCount)
	raw := table.Bytes()
	for i := range locators {
		loc, err := ParsePackLocator(raw[i*LocatorSize:])
		if err != nil {
			return nil, fmt.Errorf("container %s: locator %d: %w", header.UUID, i, err)
		}
		locators[i] = loc
	}
	return locators, nil
}

// SubPackRegion returns the byte region for the i-th sub-pack, without
// parsing or verifying its header.
func (c *Container) SubPackRegion(i int) (*bases.Region, error) {
	if i < 0 || i >= len(c.Locators) {
		return nil, fmt.Errorf("container %s: locator index %d out of range [0, %d)", c.Header.UUID, i, len(c.Locators))
	}
	loc := c.Locators[i]
	return c.region.Slice(loc.PackOffset, loc.PackSize)
}

// VerifyLocators checks, for every locator, that the sub-pack found at
// its offset actually has the claimed UUID and PackSize — the
// invariant that `uuid`/`packSize` in a PackLocator agree with the
// pointed pack's own header.
func (c *Container) VerifyLocators() error {
	for i, loc := range c.Locators {
		sub, err := c.SubPackRegion(i)
		if err != nil {
			return err
		}
		subHeader, _, err := pack.OpenByHeader(sub)
		if err != nil {
			return fmt.Errorf("container %s: sub-pack %d: %w", c.Header.UUID, i, err)
		}
		if subHeader.UUID != loc.UUID {
			return fmt.Errorf("container %s: locator %d claims uuid %s, sub-pack header has %s",
				c.Header.UUID, i, loc.UUID, subHeader.UUID)
		}
		if subHeader.PackSize != loc.PackSize {
			return fmt.Errorf("container %s: locator %d claims packSize %d, sub-pack header has %d",
				c.Header.UUID, i, loc.PackSize, subHeader.PackSize)
		}
	}
	return nil
}

// CheckIntegrity verifies the container pack's own check-tail digest
// (the outer pack's, not any sub-pack's — callers check those
// individually once opened).
func (c *Container) CheckIntegrity() error {
	return pack.CheckIntegrity(c.region, c.Header, nil)
}

// Find returns the region and header for the sub-pack with the given
// UUID, or false if the container has no such pack.
func (c *Container) Find(id uuid.UUID) (*bases.Region, pack.Header, bool, error) {
	for i, loc := range c.Locators {
		if loc.UUID != id {
			continue
		}
		sub, err := c.SubPackRegion(i)
		if err != nil {
			return nil, pack.Header{}, false, err
		}
		header, subPack, err := pack.OpenByHeader(sub)
		if err != nil {
			return nil, pack.Header{}, false, err
		}
		return subPack, header, true, nil
	}
	return nil, pack.Header{}, false, nil
}
