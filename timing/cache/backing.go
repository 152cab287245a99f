// Package cache provides the set-associative cache hierarchy: L1
// instruction/data caches and an optional unified L2, all backed by
// emu.Memory and built on the Akita cache library's directory and LRU
// victim-finder abstractions.
package cache

import "github.com/vmips-go/vmips/emu"

// MemoryBacking adapts emu.Memory to the BackingStore interface a Cache
// fills from on miss and writes every store through to.
type MemoryBacking struct {
	memory *emu.Memory
}

// NewMemoryBacking creates a MemoryBacking over m.
func NewMemoryBacking(m *emu.Memory) *MemoryBacking {
	return &MemoryBacking{memory: m}
}

// Read fetches size bytes starting at addr from the backing memory.
func (m *MemoryBacking) Read(addr uint32, size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		b, _ := m.memory.ReadByte(addr + uint32(i))
		data[i] = b
	}
	return data
}

// Write stores data at addr in the backing memory, bypassing permission
// checks: the cache's write-through path already validated the access
// when the CPU-side write first reached it.
func (m *MemoryBacking) Write(addr uint32, data []byte) {
	for i, b := range data {
		m.memory.WriteByteInit(addr+uint32(i), b)
	}
}

// LevelBacking adapts a lower cache level to the BackingStore interface,
// so an L1 can fill from and write through to a unified L2.
type LevelBacking struct {
	next *Cache
}

// NewLevelBacking creates a LevelBacking over the next cache level down.
func NewLevelBacking(next *Cache) *LevelBacking {
	return &LevelBacking{next: next}
}

// Read fetches size bytes from the next level. Block fills arrive aligned
// and word-sized, so the transfer runs a word at a time.
func (b *LevelBacking) Read(addr uint32, size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i += 4 {
		n := size - i
		if n > 4 {
			n = 4
		}
		word := b.next.Read(addr+uint32(i), n).Data
		for j := 0; j < n; j++ {
			data[i+j] = byte(word >> (8 * j))
		}
	}
	return data
}

// Write propagates a write-through chunk to the next level.
func (b *LevelBacking) Write(addr uint32, data []byte) {
	for i := 0; i < len(data); i += 4 {
		n := len(data) - i
		if n > 4 {
			n = 4
		}
		var word uint32
		for j := 0; j < n; j++ {
			word |= uint32(data[i+j]) << (8 * j)
		}
		b.next.Write(addr+uint32(i), n, word)
	}
}
