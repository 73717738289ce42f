// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/container"
	"github.com/jbk-format/jbk/lib/manifest"
	"github.com/jbk-format/jbk/lib/pack"
)

// cmdLocate rewrites one pack's packLocation field in place, the
// split-file deployment operation spec §4.8 calls out as the sole
// supported in-place mutation: packLocation and its per-record CRC32
// are both masked out of the manifest's check-tail digest, so patching
// them on disk never invalidates the manifest's own integrity check.
//
// Only files where the outermost pack (a container or a bare manifest)
// begins at byte 0 are supported — the layout every pack this module
// writes uses. A host file with an open-by-tail prefix would need its
// manifest pack's offset recovered a different way; that's a reader
// concern ([jbk.Open] handles it), not this tool's.
func cmdLocate(logger *slog.Logger, args []string) int {
	positional := positionalArgs(args)
	if len(positional) != 3 {
		fmt.Fprintln(os.Stderr, "error: locate requires <file> <uuid> <new-location>")
		return 2
	}
	path, uuidArg, newLocation := positional[0], positional[1], positional[2]

	id, err := uuid.Parse(uuidArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid uuid %q: %v\n", uuidArg, err)
		return 2
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	manifestOffset, err := findManifestOffset(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	m, err := manifest.Open(bases.NewMemory(data[manifestOffset:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: parsing manifest pack: %v\n", err)
		return 2
	}

	packInfo, recordIndex, found := m.FindRecordByUUID(id)
	if !found {
		fmt.Fprintf(os.Stderr, "error: no pack with uuid %s in this manifest\n", id)
		return 2
	}

	updated, err := manifest.UpdateLocator(packInfo, newLocation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	encoded, err := updated.Encode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	recordOffset := manifestOffset + m.RecordOffset(recordIndex)
	copy(data[recordOffset:recordOffset+manifest.PackInfoSize], encoded[:])

	if err := os.WriteFile(path, data, info.Mode().Perm()); err != nil {
		fmt.Fprintf(os.Stderr, "error: writing %s: %v\n", path, err)
		return 2
	}

	logger.Info("rewrote pack locator", "uuid", id, "packId", packInfo.PackID, "location", newLocation)
	return 0
}

// findManifestOffset returns data's manifest pack's absolute byte
// offset: 0 if the outer pack is itself a bare manifest, or the offset
// of whichever sub-pack of an outer container pack has kind manifest.
func findManifestOffset(data []byte) (bases.Offset, error) {
	if len(data) < pack.HeaderSize {
		return 0, fmt.Errorf("file is too short to hold a pack header")
	}
	header, err := pack.ParseHeader(data[:pack.HeaderSize])
	if err != nil {
		return 0, fmt.Errorf("not a recognizable pack: %w", err)
	}

	switch header.Kind {
	case pack.KindManifest:
		return 0, nil
	case pack.KindContainer:
		tableStart := header.PacksPos
		for i := 0; i < int(header.PackCount); i++ {
			recordStart := int(tableStart) + i*container.LocatorSize
			if recordStart+container.LocatorSize > len(data) {
				return 0, fmt.Errorf("locator table entry %d out of bounds", i)
			}
			loc, err := container.ParsePackLocator(data[recordStart:])
			if err != nil {
				return 0, fmt.Errorf("locator %d: %w", i, err)
			}
			subOffset := int(loc.PackOffset)
			if subOffset+pack.HeaderSize > len(data) {
				return 0, fmt.Errorf("sub-pack %d out of bounds", i)
			}
			subHeader, err := pack.ParseHeader(data[subOffset : subOffset+pack.HeaderSize])
			if err != nil {
				return 0, fmt.Errorf("sub-pack %d header: %w", i, err)
			}
			if subHeader.Kind == pack.KindManifest {
				return bases.Offset(subOffset), nil
			}
		}
		return 0, fmt.Errorf("container holds no manifest pack")
	default:
		return 0, fmt.Errorf("outer pack has kind %s, want manifest or container", header.Kind)
	}
}

// positionalArgs returns every argument not recognized as a global
// flag, in order.
func positionalArgs(args []string) []string {
	var out []string
	for _, arg := range args {
		switch arg {
		case "-v", "--verbose", "-q", "--quiet":
			continue
		}
		out = append(out, arg)
	}
	return out
}
