package emu

import (
	"encoding/json"
	"fmt"
	"os"
)

// RegionConfig is the JSON form of one region-table entry.
type RegionConfig struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
	Exec  bool   `json:"exec"`
}

// MemoryConfig describes a Memory instance so the driver's --memory-config
// flag can shape the address space without code changes: total size, the
// permission mode, an explicit region table, and the heap origin.
type MemoryConfig struct {
	// Size is the backing-store size in bytes.
	Size uint32 `json:"size"`

	// Strict selects the construction mode: true refuses any access no
	// region covers, false keeps the permissive legacy behavior.
	Strict bool `json:"strict"`

	// Regions is the ordered permission table. In permissive mode it is
	// appended after the built-in defaults; in strict mode it is the
	// whole table.
	Regions []RegionConfig `json:"regions"`

	// HeapBase overrides the initial heap pointer when non-zero.
	HeapBase uint32 `json:"heap_base"`
}

// DefaultMemoryConfig returns a permissive 4 MiB configuration.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{Size: 4 * 1024 * 1024}
}

// LoadMemoryConfig loads a MemoryConfig from a JSON file, starting from
// the defaults so a partial file only overrides what it specifies.
func LoadMemoryConfig(path string) (*MemoryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory config file: %w", err)
	}

	config := DefaultMemoryConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse memory config: %w", err)
	}
	return config, nil
}

// Validate checks the configuration for an empty or self-contradictory
// address space.
func (c *MemoryConfig) Validate() error {
	if c.Size == 0 {
		return fmt.Errorf("size must be > 0")
	}
	for i, r := range c.Regions {
		if r.End <= r.Start {
			return fmt.Errorf("region %d: end 0x%08x not past start 0x%08x", i, r.End, r.Start)
		}
	}
	return nil
}

// Build constructs the Memory this configuration describes.
func (c *MemoryConfig) Build() *Memory {
	var m *Memory
	if c.Strict {
		m = NewStrictMemory(c.Size)
	} else {
		m = NewMemory(c.Size)
	}
	for _, r := range c.Regions {
		var perm Permission
		if r.Read {
			perm |= PermRead
		}
		if r.Write {
			perm |= PermWrite
		}
		if r.Exec {
			perm |= PermExec
		}
		m.AddRegion(Region{Start: r.Start, End: r.End, Perm: perm})
	}
	if c.HeapBase != 0 {
		m.heapTop = c.HeapBase
	}
	return m
}
