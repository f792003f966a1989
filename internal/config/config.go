// Package config holds the one process-wide configuration spec §5 calls
// out ("the multichunk's MaxMultichunkSize is process-wide configuration,
// set once at initialization; sessions read it without synchronization"),
// mirroring pkg/config/config.go's Default/FromEnv/Validate shape with an
// env var prefix of FROSTCORE_ instead of DIFFKEEPER_.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config bundles every process-wide knob the chunker, multichunk
// container, and compression filter read at session-construction time.
type Config struct {
	// ChunkMinBytes is the minimum chunk size the TTTD chunker will emit.
	ChunkMinBytes int
	// ChunkAvgBytes is the target average chunk size.
	ChunkAvgBytes int
	// ChunkMaxBytes is the hard cap on a single chunk's size.
	ChunkMaxBytes int

	// MultichunkMaxBytes bounds a multichunk's packed data region (spec §3).
	MultichunkMaxBytes int

	// BlockSize is the block size handed to the streaming compressor.
	BlockSize int
	// CompressionLevel is the bzip2 coder's level (1-9; 0 selects its default).
	CompressionLevel int

	// EntropyThreshold is the normalized-entropy cutoff above which the
	// compression filter skips straight to identity (SPEC_FULL.md §5
	// "entropy-gated filter selection").
	EntropyThreshold float64
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		ChunkMinBytes:      2 * 1024,
		ChunkAvgBytes:      8 * 1024,
		ChunkMaxBytes:      11299, // matches pkg/chunk.MaxChunkSize
		MultichunkMaxBytes: 250 * 1024,
		BlockSize:          64 * 1024,
		CompressionLevel:   0,
		EntropyThreshold:   0.9,
	}
}

// FromEnv layers FROSTCORE_* environment overrides on top of Default.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("FROSTCORE_CHUNK_MIN_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkMinBytes = n
		}
	}
	if v := os.Getenv("FROSTCORE_CHUNK_AVG_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkAvgBytes = n
		}
	}
	if v := os.Getenv("FROSTCORE_CHUNK_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkMaxBytes = n
		}
	}
	if v := os.Getenv("FROSTCORE_MULTICHUNK_MAX_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MultichunkMaxBytes = n
		}
	}
	if v := os.Getenv("FROSTCORE_BLOCK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BlockSize = n
		}
	}
	if v := os.Getenv("FROSTCORE_COMPRESSION_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CompressionLevel = n
		}
	}
	if v := os.Getenv("FROSTCORE_ENTROPY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.EntropyThreshold = f
		}
	}

	return cfg
}

// Validate checks every field against the constraints the chunker,
// multichunk, and filter layers document as preconditions.
func (c *Config) Validate() error {
	if c.ChunkMinBytes <= 0 || c.ChunkAvgBytes <= 0 || c.ChunkMaxBytes <= 0 {
		return fmt.Errorf("config: chunk sizes must be positive (min=%d avg=%d max=%d)", c.ChunkMinBytes, c.ChunkAvgBytes, c.ChunkMaxBytes)
	}
	if c.ChunkMinBytes > c.ChunkAvgBytes {
		return fmt.Errorf("config: chunk min size cannot exceed average (min=%d avg=%d)", c.ChunkMinBytes, c.ChunkAvgBytes)
	}
	if c.ChunkAvgBytes > c.ChunkMaxBytes {
		return fmt.Errorf("config: chunk average size cannot exceed max (avg=%d max=%d)", c.ChunkAvgBytes, c.ChunkMaxBytes)
	}
	if c.MultichunkMaxBytes <= 0 {
		return fmt.Errorf("config: multichunk max bytes must be positive, got %d", c.MultichunkMaxBytes)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("config: block size must be positive, got %d", c.BlockSize)
	}
	if c.EntropyThreshold < 0 || c.EntropyThreshold > 1 {
		return fmt.Errorf("config: entropy threshold must be in [0,1], got %f", c.EntropyThreshold)
	}
	return nil
}
