// Package config provides construction-time configuration for the pipeline,
// its caches, and its fetch-frontend predictors.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// CacheGeometry describes the shape of a single set-associative cache.
type CacheGeometry struct {
	// NumSets is the number of sets. Must be a power of two.
	NumSets int `json:"num_sets"`
	// NumWays is the associativity. Must be a power of two.
	NumWays int `json:"num_ways"`
	// LineWidth is the cache line width in bytes. Must be a power of two.
	LineWidth int `json:"line_width"`
}

// Config holds every parameter the pipeline and its components consume at
// construction time. Nothing here changes after the pipeline is built.
type Config struct {
	// PAddrWidth is the physical address width in bits (32 or 64).
	PAddrWidth int `json:"paddr_width"`
	// CoreWidth is the register/ALU width in bits (32 for RV32I, 64 for RV64I).
	CoreWidth int `json:"core_width"`
	// MemWidth is the width in bytes of a single memory response. Must be
	// >= the widest cache line width.
	MemWidth int `json:"mem_width"`
	// RegCount is the number of architectural registers. Must be 32.
	RegCount int `json:"reg_count"`
	// ResetAddr is the PC value at reset.
	ResetAddr uint64 `json:"reset_addr"`

	// ICache is the instruction cache geometry.
	ICache CacheGeometry `json:"icache"`
	// DCache is the data cache geometry.
	DCache CacheGeometry `json:"dcache"`

	// BTBSize is the number of entries in the branch target buffer.
	BTBSize int `json:"btb_size"`
	// RASSize is the number of entries in the return-address stack.
	RASSize int `json:"ras_size"`
}

// Default returns an RV32I-sized configuration with a conventional reset
// address and modest cache/predictor geometry.
func Default() *Config {
	return &Config{
		PAddrWidth: 32,
		CoreWidth:  32,
		MemWidth:   128,
		RegCount:   32,
		ResetAddr:  0x1000,
		ICache: CacheGeometry{
			NumSets:   64,
			NumWays:   2,
			LineWidth: 128,
		},
		DCache: CacheGeometry{
			NumSets:   64,
			NumWays:   2,
			LineWidth: 128,
		},
		BTBSize: 256,
		RASSize: 8,
	}
}

// Default64 returns an RV64I-sized configuration, otherwise identical to
// Default.
func Default64() *Config {
	c := Default()
	c.PAddrWidth = 64
	c.CoreWidth = 64
	return c
}

// Load reads a Config from a JSON file, starting from Default() so omitted
// fields keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the Config to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize pipeline config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write pipeline config file: %w", err)
	}

	return nil
}

// Validate checks that every parameter is internally consistent.
func (c *Config) Validate() error {
	if c.RegCount != 32 {
		return fmt.Errorf("reg_count must be 32, got %d", c.RegCount)
	}
	if c.PAddrWidth != 32 && c.PAddrWidth != 64 {
		return fmt.Errorf("paddr_width must be 32 or 64, got %d", c.PAddrWidth)
	}
	if c.CoreWidth != 32 && c.CoreWidth != 64 {
		return fmt.Errorf("core_width must be 32 or 64, got %d", c.CoreWidth)
	}
	if err := c.ICache.validate("icache"); err != nil {
		return err
	}
	if err := c.DCache.validate("dcache"); err != nil {
		return err
	}
	if c.MemWidth < c.ICache.LineWidth || c.MemWidth < c.DCache.LineWidth {
		return fmt.Errorf("mem_width must be >= both cache line widths")
	}
	if !isPowerOfTwo(c.BTBSize) {
		return fmt.Errorf("btb_size must be a power of two, got %d", c.BTBSize)
	}
	if c.RASSize <= 0 {
		return fmt.Errorf("ras_size must be > 0, got %d", c.RASSize)
	}
	return nil
}

func (g CacheGeometry) validate(name string) error {
	if !isPowerOfTwo(g.NumSets) {
		return fmt.Errorf("%s.num_sets must be a power of two, got %d", name, g.NumSets)
	}
	if !isPowerOfTwo(g.NumWays) {
		return fmt.Errorf("%s.num_ways must be a power of two, got %d", name, g.NumWays)
	}
	if !isPowerOfTwo(g.LineWidth) {
		return fmt.Errorf("%s.line_width must be a power of two, got %d", name, g.LineWidth)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
