// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultWriterConfig(t *testing.T) {
	cfg := DefaultWriterConfig()

	if cfg.Compression != "zstd" {
		t.Errorf("Compression = %q, want zstd", cfg.Compression)
	}
	if cfg.ClusterSizeThreshold != 1<<20 {
		t.Errorf("ClusterSizeThreshold = %d, want %d", cfg.ClusterSizeThreshold, 1<<20)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on default config: %v", err)
	}
}

func TestDefaultReaderConfig(t *testing.T) {
	cfg := DefaultReaderConfig()

	if cfg.CacheCapacity != 64<<20 {
		t.Errorf("CacheCapacity = %d, want %d", cfg.CacheCapacity, 64<<20)
	}
	if cfg.Strict {
		t.Error("Strict = true, want false by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on default config: %v", err)
	}
}

func TestLoadWriterConfigMergesOverFields(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "writer.yaml")
	content := `
compression: lz4
cluster_size_threshold: 262144
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadWriterConfig(path)
	if err != nil {
		t.Fatalf("LoadWriterConfig: %v", err)
	}
	if cfg.Compression != "lz4" {
		t.Errorf("Compression = %q, want lz4", cfg.Compression)
	}
	if cfg.ClusterSizeThreshold != 262144 {
		t.Errorf("ClusterSizeThreshold = %d, want 262144", cfg.ClusterSizeThreshold)
	}
	// WorkerCount was not mentioned in the file, so the default survives.
	if cfg.WorkerCount != DefaultWriterConfig().WorkerCount {
		t.Errorf("WorkerCount = %d, want default %d", cfg.WorkerCount, DefaultWriterConfig().WorkerCount)
	}
}

func TestLoadReaderConfigMergesOverFields(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "reader.yaml")
	content := `
strict: true
cache_capacity: 1048576
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadReaderConfig(path)
	if err != nil {
		t.Fatalf("LoadReaderConfig: %v", err)
	}
	if !cfg.Strict {
		t.Error("Strict = false, want true")
	}
	if cfg.CacheCapacity != 1048576 {
		t.Errorf("CacheCapacity = %d, want 1048576", cfg.CacheCapacity)
	}
}

func TestLoadWriterConfigMissingFile(t *testing.T) {
	if _, err := LoadWriterConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadWriterConfig: want error for missing file, got nil")
	}
}

func TestWriterConfigValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*WriterConfig)
	}{
		{"zero threshold", func(c *WriterConfig) { c.ClusterSizeThreshold = 0 }},
		{"negative threshold", func(c *WriterConfig) { c.ClusterSizeThreshold = -1 }},
		{"unknown codec", func(c *WriterConfig) { c.Compression = "brotli" }},
		{"entropy out of range", func(c *WriterConfig) { c.EntropyThreshold = 9 }},
		{"negative workers", func(c *WriterConfig) { c.WorkerCount = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultWriterConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate(): want error, got nil")
			}
		})
	}
}

func TestReaderConfigValidateRejectsNegativeCapacity(t *testing.T) {
	cfg := DefaultReaderConfig()
	cfg.CacheCapacity = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate(): want error for negative cache capacity, got nil")
	}
}

func TestEffectiveWorkerCountFallsBackWhenZero(t *testing.T) {
	cfg := DefaultWriterConfig()
	cfg.WorkerCount = 0
	if got := cfg.EffectiveWorkerCount(); got <= 0 {
		t.Errorf("EffectiveWorkerCount() = %d, want positive", got)
	}
}
