// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/jbk-format/jbk/lib/bases"
	"github.com/jbk-format/jbk/lib/pack"
)

// buildFakeSubPack produces a minimal, well-formed sub-pack (header +
// zero body + CheckNone tail) so container tests don't need the
// directory or content packages.
func buildFakeSubPack(t *testing.T, kind pack.Kind, id uuid.UUID, packSize uint64) []byte {
	t.Helper()
	checkInfoPos := packSize - pack.HeaderSize - 1
	h := pack.Header{
		Kind:         kind,
		UUID:         id,
		PackSize:     bases.Size(packSize),
		CheckInfoPos: bases.Offset(checkInfoPos),
	}
	head := h.Encode()
	out := append([]byte{}, head[:]...)
	out = append(out, make([]byte, checkInfoPos-pack.HeaderSize)...)
	out = append(out, byte(pack.CheckNone))
	tail := h.Tail()
	out = append(out, tail[:]...)
	if uint64(len(out)) != packSize {
		t.Fatalf("buildFakeSubPack: built %d bytes, want %d", len(out), packSize)
	}
	return out
}

func TestBuilderRoundTrip(t *testing.T) {
	contentUUID := uuid.New()
	directoryUUID := uuid.New()

	b := NewBuilder(0xCAFE)
	b.AddPack(contentUUID, buildFakeSubPack(t, pack.KindContent, contentUUID, 129))
	b.AddPack(directoryUUID, buildFakeSubPack(t, pack.KindDirectory, directoryUUID, 192))

	var buf bytes.Buffer
	containerUUID, err := b.Write(&buf)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	region := bases.NewMemory(buf.Bytes())
	c, err := Open(region)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Header.UUID != containerUUID {
		t.Errorf("Header.UUID = %s, want %s", c.Header.UUID, containerUUID)
	}
	if len(c.Locators) != 2 {
		t.Fatalf("len(Locators) = %d, want 2", len(c.Locators))
	}

	if err := c.VerifyLocators(); err != nil {
		t.Fatalf("VerifyLocators: %v", err)
	}
	if err := pack.CheckIntegrity(region, c.Header, nil); err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}

	_, header, found, err := c.Find(directoryUUID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !found {
		t.Fatal("Find did not locate the directory sub-pack")
	}
	if header.Kind != pack.KindDirectory {
		t.Errorf("Find returned kind %v, want directory", header.Kind)
	}

	if _, _, found, err := c.Find(uuid.New()); err != nil || found {
		t.Errorf("Find on absent uuid: found=%v err=%v, want false/nil", found, err)
	}
}

func TestVerifyLocatorsDetectsTamperedUUID(t *testing.T) {
	id := uuid.New()
	b := NewBuilder(1)
	b.AddPack(id, buildFakeSubPack(t, pack.KindContent, id, 129))

	var buf bytes.Buffer
	if _, err := b.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	region := bases.NewMemory(buf.Bytes())
	c, err := Open(region)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.Locators[0].UUID = uuid.New()

	if err := c.VerifyLocators(); err == nil {
		t.Fatal("expected VerifyLocators to detect the tampered locator UUID")
	}
}

func TestOpenRejectsNonContainerKind(t *testing.T) {
	id := uuid.New()
	region := bases.NewMemory(buildFakeSubPack(t, pack.KindContent, id, 129))
	if _, err := Open(region); err == nil {
		t.Fatal("expected Open to reject a content pack")
	}
}

func TestPackLocatorEncodeParseRoundTrip(t *testing.T) {
	loc := PackLocator{UUID: uuid.New(), PackSize: 4096, PackOffset: 1024}
	enc := loc.Encode()
	got, err := ParsePackLocator(enc[:])
	if err != nil {
		t.Fatalf("ParsePackLocator: %v", err)
	}
	if got != loc {
		t.Errorf("round trip: got %+v, want %+v", got, loc)
	}
}
