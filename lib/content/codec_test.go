// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

	for _, kind := range []CompressionKind{CompressionLZ4, CompressionZstd, CompressionLZMA} {
		t.Run(kind.String(), func(t *testing.T) {
			compressed, err := Compress(kind, payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if len(compressed) >= len(payload) {
				t.Fatalf("compressed size %d not smaller than input %d", len(compressed), len(payload))
			}
			got, err := Decompress(kind, compressed, len(payload))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestCompressNoneIsIdentity(t *testing.T) {
	payload := []byte("raw bytes")
	compressed, err := Compress(CompressionNone, payload)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !bytes.Equal(compressed, payload) {
		t.Error("CompressionNone must return the input unchanged")
	}
}

func TestSampleEntropyUniformVsRepeated(t *testing.T) {
	repeated := bytes.Repeat([]byte{'x'}, EntropySampleSize)
	if got := SampleEntropy(repeated); got > 0.01 {
		t.Errorf("entropy of repeated byte = %f, want ~0", got)
	}

	random := make([]byte, 4096)
	for i := range random {
		random[i] = byte(i * 2654435761 >> 13)
	}
	if got := SampleEntropy(random); got < 6 {
		t.Errorf("entropy of dense pseudo-random sample = %f, want high entropy", got)
	}
}

func TestSelectCodecAppliesEntropyGate(t *testing.T) {
	dense := make([]byte, EntropySampleSize)
	for i := range dense {
		dense[i] = byte(i*2654435761 + i*i)
	}
	if got := SelectCodec(CompressionZstd, dense, 0); got != CompressionNone {
		t.Errorf("dense sample selected %s, want none", got)
	}

	text := bytes.Repeat([]byte("aaaaaaaaaa"), 1000)
	if got := SelectCodec(CompressionZstd, text[:EntropySampleSize], 0); got != CompressionZstd {
		t.Errorf("low-entropy sample selected %s, want zstd", got)
	}

	if got := SelectCodec(CompressionNone, text, 0); got != CompressionNone {
		t.Error("configured CompressionNone must never be overridden")
	}
}

func TestSelectCodecHonorsThresholdOverride(t *testing.T) {
	text := bytes.Repeat([]byte("ab"), 2048) // entropy ~1 bit/byte, never 0
	sample := text[:EntropySampleSize]
	entropy := SampleEntropy(sample)

	if got := SelectCodec(CompressionZstd, sample, entropy+1); got != CompressionZstd {
		t.Errorf("threshold above sample entropy selected %s, want zstd", got)
	}
	if got := SelectCodec(CompressionZstd, sample, entropy/2); got != CompressionNone {
		t.Errorf("threshold below sample entropy selected %s, want none", got)
	}
}

func TestParseCompressionKind(t *testing.T) {
	for _, name := range []string{"none", "lz4", "lzma", "zstd"} {
		kind, err := ParseCompressionKind(name)
		if err != nil {
			t.Fatalf("ParseCompressionKind(%q): %v", name, err)
		}
		if !strings.EqualFold(kind.String(), name) {
			t.Errorf("round trip: %q -> %s", name, kind)
		}
	}
	if _, err := ParseCompressionKind("brotli"); err == nil {
		t.Fatal("expected error for unknown codec name")
	}
}

func TestIsIncompressible(t *testing.T) {
	tiny := []byte{1}
	if _, err := Compress(CompressionZstd, tiny); err != nil && !IsIncompressible(err) {
		t.Errorf("unexpected error for tiny payload: %v", err)
	}
}
