// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

// Package content implements the cluster codec and content pack: the
// cluster compress/decompress dispatch and entropy gate, the bounded
// decompressed-cluster cache, and the content pack's entry-info and
// cluster-pointer tables.
package content

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// CompressionKind identifies the codec a cluster was compressed with.
// Values are protocol constants occupying the low 4 bits of a
// cluster tail's type byte.
type CompressionKind byte

const (
	CompressionNone CompressionKind = 0
	CompressionLZ4  CompressionKind = 1
	CompressionLZMA CompressionKind = 2
	CompressionZstd CompressionKind = 3
)

func (k CompressionKind) String() string {
	switch k {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionLZMA:
		return "lzma"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// ParseCompressionKind parses a codec name as accepted in writer
// configuration.
func ParseCompressionKind(name string) (CompressionKind, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "lzma":
		return CompressionLZMA, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression kind: %q", name)
	}
}

// EntropyThreshold is the Shannon entropy, in bits per byte, at or
// above which a cluster's sample is treated as already-dense data
// not worth spending a compression pass on (spec §4.7).
const EntropyThreshold = 7.0

// EntropySampleSize is the number of leading bytes of a cluster's
// accumulated decompressed stream sampled to compute entropy.
const EntropySampleSize = 4096

// SampleEntropy computes the Shannon entropy, in bits per byte, of
// data (the caller passes at most the first [EntropySampleSize]
// bytes of a cluster's accumulated stream).
func SampleEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var histogram [256]int
	for _, b := range data {
		histogram[b]++
	}
	total := float64(len(data))
	var entropy float64
	for _, count := range histogram {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// SelectCodec applies the entropy gate: a configured codec is used
// only when the cluster's sample entropy falls below threshold; dense
// samples are stored uncompressed rather than spending a compression
// pass that would not pay for itself. A threshold of zero or less
// uses the package default [EntropyThreshold].
func SelectCodec(configured CompressionKind, sample []byte, threshold float64) CompressionKind {
	if configured == CompressionNone || len(sample) == 0 {
		return CompressionNone
	}
	if threshold <= 0 {
		threshold = EntropyThreshold
	}
	if SampleEntropy(sample) >= threshold {
		return CompressionNone
	}
	return configured
}

// Compress encodes data with kind, returning the on-disk bytes
// ("rawData" in spec terms — this may be larger than data only for
// [CompressionNone], where it's returned unchanged).
func Compress(kind CompressionKind, data []byte) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	case CompressionLZMA:
		return compressLZMA(data)
	default:
		return nil, fmt.Errorf("content: unsupported compression kind %d", kind)
	}
}

// Decompress decodes rawData (compressed with kind) back to exactly
// decompressedSize bytes.
func Decompress(kind CompressionKind, rawData []byte, decompressedSize int) ([]byte, error) {
	switch kind {
	case CompressionNone:
		if len(rawData) != decompressedSize {
			return nil, fmt.Errorf("content: uncompressed cluster has %d bytes, want %d", len(rawData), decompressedSize)
		}
		return rawData, nil
	case CompressionLZ4:
		return decompressLZ4(rawData, decompressedSize)
	case CompressionZstd:
		return decompressZstd(rawData, decompressedSize)
	case CompressionLZMA:
		return decompressLZMA(rawData, decompressedSize)
	default:
		return nil, fmt.Errorf("content: unsupported compression kind %d", kind)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	dst := make([]byte, bound)
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, want %d", n, size)
	}
	return dst, nil
}

// zstdEncoder/zstdDecoder are reused across calls; both are safe for
// concurrent use by multiple goroutines.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("content: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("content: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, want %d", len(result), size)
	}
	return result, nil
}

// compressLZMA/decompressLZMA back the CompressionLZMA tag using the
// classic .lzma ("LZMA_Alone") stream format.
func compressLZMA(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lzma compress: %w", err)
	}
	if buf.Len() >= len(data) {
		return nil, errIncompressible
	}
	return buf.Bytes(), nil
}

func decompressLZMA(compressed []byte, size int) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("lzma decompress: %w", err)
	}
	dst := make([]byte, size)
	n, err := io.ReadFull(r, dst)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("lzma decompress: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("lzma decompress: got %d bytes, want %d", n, size)
	}
	return dst, nil
}

// errIncompressible is returned by a codec's compress path when its
// output would not be smaller than the input.
var errIncompressible = fmt.Errorf("content: data is incompressible")

// IsIncompressible reports whether err indicates a codec could not
// shrink the data — the caller should fall back to [CompressionNone].
func IsIncompressible(err error) bool {
	return err == errIncompressible
}
