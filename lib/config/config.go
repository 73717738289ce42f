// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for jbk's writer and
// reader orchestrators.
//
// Configuration is loaded from a single YAML file path supplied by the
// caller; there is no environment-variable fallback or automatic
// discovery, matching the format's "atomic, caller-driven" finalization
// philosophy. A [DefaultWriterConfig] or [DefaultReaderConfig] config
// is always valid on its own — the
// config file, when present, only overrides fields it names.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// WriterConfig tunes the writer orchestrator's cluster accumulation,
// compression, and concurrency behavior (spec §4.7, §4.10).
type WriterConfig struct {
	// AppVendorID is stamped into every pack header this writer
	// produces (spec §3 Pack.appVendorId).
	AppVendorID uint32 `yaml:"app_vendor_id"`

	// ClusterSizeThreshold is the raw decompressed byte size at which
	// a cluster is closed and a new one started, the other half of
	// the spec's "blob-count hits 4096 or raw size exceeds an
	// implementation-chosen threshold" rule.
	ClusterSizeThreshold int `yaml:"cluster_size_threshold"`

	// Compression names the codec applied to compressible clusters:
	// "none", "lz4", "lzma", or "zstd".
	Compression string `yaml:"compression"`

	// EntropyThreshold overrides [content.EntropyThreshold] (bits per
	// byte) at or above which a cluster's sample is stored uncompressed
	// rather than spending a compression pass on already-dense data.
	// Zero means use the package default.
	EntropyThreshold float64 `yaml:"entropy_threshold"`

	// WorkerCount bounds how many entry-store sorts and content-pack
	// seals the writer's Finalize runs concurrently. Clusters closed
	// while blobs are added are compressed on the adding goroutine;
	// only each content pack's last open cluster is compressed during
	// the concurrent seal. Zero means use [runtime.NumCPU].
	WorkerCount int `yaml:"worker_count"`
}

// ReaderConfig tunes the reader orchestrator's caching and validation
// strictness (spec §4.9, §7).
type ReaderConfig struct {
	// CacheCapacity bounds the decompressed-cluster LRU cache, in
	// bytes (spec §4.7's "bounded LRU with capacity configured by the
	// orchestrator").
	CacheCapacity int64 `yaml:"cache_capacity"`

	// Strict is loaded from the "strict" key. No reader code consults
	// it: non-zero reserved or free-data header bytes are accepted
	// without a warning and without a [*pack.FormatError], whatever
	// its value.
	Strict bool `yaml:"strict"`
}

// DefaultWriterConfig returns the default writer configuration: a 1 MiB cluster
// threshold, Zstd compression, the package's default entropy cutoff,
// and one worker per CPU.
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		AppVendorID:          0,
		ClusterSizeThreshold: 1 << 20,
		Compression:          "zstd",
		EntropyThreshold:     0,
		WorkerCount:          runtime.NumCPU(),
	}
}

// DefaultReaderConfig returns the default reader configuration: a
// 64 MiB decompressed-cluster cache and strict mode disabled.
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		CacheCapacity: 64 << 20,
		Strict:        false,
	}
}

// LoadWriterConfig loads a writer configuration from path, merging its
// YAML contents on top of [DefaultWriterConfig]. A field the file
// doesn't mention keeps its default value.
func LoadWriterConfig(path string) (*WriterConfig, error) {
	cfg := DefaultWriterConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading writer config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing writer config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadReaderConfig loads a reader configuration from path, merging its
// YAML contents on top of [DefaultReaderConfig].
func LoadReaderConfig(path string) (*ReaderConfig, error) {
	cfg := DefaultReaderConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading reader config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing reader config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks a writer configuration for internally-inconsistent
// values that would otherwise surface as a confusing failure deep
// inside cluster accumulation.
func (c *WriterConfig) Validate() error {
	var errs []error
	if c.ClusterSizeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("cluster_size_threshold must be positive, got %d", c.ClusterSizeThreshold))
	}
	switch c.Compression {
	case "none", "lz4", "lzma", "zstd":
	default:
		errs = append(errs, fmt.Errorf("compression must be one of none/lz4/lzma/zstd, got %q", c.Compression))
	}
	if c.EntropyThreshold < 0 || c.EntropyThreshold > 8 {
		errs = append(errs, fmt.Errorf("entropy_threshold must be within [0, 8], got %g", c.EntropyThreshold))
	}
	if c.WorkerCount < 0 {
		errs = append(errs, fmt.Errorf("worker_count must be non-negative, got %d", c.WorkerCount))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks a reader configuration for internally-inconsistent
// values.
func (c *ReaderConfig) Validate() error {
	if c.CacheCapacity < 0 {
		return fmt.Errorf("cache_capacity must be non-negative, got %d", c.CacheCapacity)
	}
	return nil
}

// EffectiveWorkerCount returns c.WorkerCount, or [runtime.NumCPU] if
// it is zero.
func (c *WriterConfig) EffectiveWorkerCount() int {
	if c.WorkerCount > 0 {
		return c.WorkerCount
	}
	return runtime.NumCPU()
}
