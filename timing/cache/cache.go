package cache

import (
	"math/bits"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds the parameters of one cache level: size, associativity and
// block size determine the set count (sets = size / (assoc * block));
// hit/miss latency feed the timing models that charge cycles for an
// access.
type Config struct {
	Size          int
	Associativity int
	BlockSize     int
	HitLatency    uint64
	MissLatency   uint64
}

// DefaultL1IConfig returns a typical in-order classic-pipeline L1
// instruction cache: small, 2-way set-associative, single-cycle hit.
func DefaultL1IConfig() Config {
	return Config{Size: 16 * 1024, Associativity: 2, BlockSize: 32, HitLatency: 1, MissLatency: 20}
}

// DefaultL1DConfig returns a typical L1 data cache for the same core.
func DefaultL1DConfig() Config {
	return Config{Size: 16 * 1024, Associativity: 4, BlockSize: 32, HitLatency: 1, MissLatency: 20}
}

// DefaultL2Config returns a typical unified second-level cache backing
// both L1s.
func DefaultL2Config() Config {
	return Config{Size: 256 * 1024, Associativity: 8, BlockSize: 64, HitLatency: 10, MissLatency: 100}
}

// Sets returns the number of sets this config decomposes into.
func (c Config) Sets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// AccessResult reports the outcome of one cache access.
type AccessResult struct {
	Hit         bool
	Latency     uint64
	Data        uint32
	Evicted     bool
	EvictedAddr uint32
}

// Statistics accumulates per-cache access counters.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// BackingStore is the next level down: another Cache, or Memory via
// MemoryBacking.
type BackingStore interface {
	Read(addr uint32, size int) []byte
	Write(addr uint32, data []byte)
}

// Cache is a set-associative cache with LRU replacement, built on Akita's
// directory/victim-finder abstractions for tag and replacement-state
// bookkeeping, and a write-through, no-write-allocate write policy unless
// a caller opts into write-allocate for an L2 backing an already
// write-through L1 (see WithWriteAllocate).
type Cache struct {
	config        Config
	writeAllocate bool

	directory *akitacache.DirectoryImpl
	dataStore [][]byte

	stats   Statistics
	backing BackingStore
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithWriteAllocate switches a cache to write-allocate: a write miss
// fetches the line before writing it, rather than writing straight
// through to the backing store. Used for the L2 in a two-level hierarchy
// where the L1 above it is already write-through.
func WithWriteAllocate() Option {
	return func(c *Cache) { c.writeAllocate = true }
}

// New creates a Cache backed by the given BackingStore.
func New(config Config, backing BackingStore, opts ...Option) *Cache {
	numSets := config.Sets()
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	c := &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the cache's configuration.
func (c *Cache) Config() Config { return c.config }

// Stats returns a snapshot of the cache's access statistics.
func (c *Cache) Stats() Statistics { return c.stats }

// ResetStats clears the statistics counters without touching cache state.
func (c *Cache) ResetStats() { c.stats = Statistics{} }

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint32) uint32 {
	return (addr / uint32(c.config.BlockSize)) * uint32(c.config.BlockSize)
}

// AddressParts is the tag/set-index/offset decomposition of an address
// under this cache's geometry.
type AddressParts struct {
	Tag, SetIndex, Offset uint32
}

// DecodeAddress splits addr into tag, set index, and block offset, per
// offset_bits = log2(block_size), index_bits = log2(sets).
func (c *Cache) DecodeAddress(addr uint32) AddressParts {
	offsetBits := uint(bits.Len(uint(c.config.BlockSize)) - 1)
	indexBits := uint(bits.Len(uint(c.config.Sets())) - 1)
	offset := addr & ((1 << offsetBits) - 1)
	setIndex := (addr >> offsetBits) & ((1 << indexBits) - 1)
	tag := addr >> (offsetBits + indexBits)
	return AddressParts{Tag: tag, SetIndex: setIndex, Offset: offset}
}

// Read performs a cache read, filling from the backing store on miss.
func (c *Cache) Read(addr uint32, size int) AccessResult {
	c.stats.Reads++

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)

		offset := addr - blockAddr
		data := extractData(c.dataStore[c.blockIndex(block)], offset, size)
		return AccessResult{Hit: true, Latency: c.config.HitLatency, Data: data}
	}

	c.stats.Misses++
	return c.fill(addr, blockAddr, size)
}

// Write performs a write-through write: a hit updates the cached line and
// is always propagated to the backing store immediately (write-through,
// no-write-allocate unless WithWriteAllocate was set).
func (c *Cache) Write(addr uint32, size int, data uint32) AccessResult {
	c.stats.Writes++

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))

	var wordBuf [4]byte
	for i := 0; i < size; i++ {
		wordBuf[i] = byte(data >> (8 * i))
	}

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.directory.Visit(block)
		offset := addr - blockAddr
		storeData(c.dataStore[c.blockIndex(block)], offset, size, data)
		c.backing.Write(addr, wordBuf[:size])
		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}

	c.stats.Misses++
	if !c.writeAllocate {
		c.backing.Write(addr, wordBuf[:size])
		return AccessResult{Hit: false, Latency: c.config.MissLatency}
	}

	result := c.fill(addr, blockAddr, size)
	offset := addr - blockAddr
	block = c.directory.Lookup(0, uint64(blockAddr))
	storeData(c.dataStore[c.blockIndex(block)], offset, size, data)
	c.backing.Write(addr, wordBuf[:size])
	result.Hit = false
	return result
}

func (c *Cache) fill(addr, blockAddr uint32, size int) AccessResult {
	result := AccessResult{Hit: false, Latency: c.config.MissLatency}

	victim := c.directory.FindVictim(uint64(blockAddr))
	if victim == nil {
		return result
	}

	victimData := c.dataStore[c.blockIndex(victim)]
	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = uint32(victim.Tag)
	}

	newData := c.backing.Read(blockAddr, c.config.BlockSize)
	copy(victimData, newData)

	victim.Tag = uint64(blockAddr)
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim)

	offset := addr - blockAddr
	result.Data = extractData(victimData, offset, size)
	return result
}

// Invalidate marks the line covering addr as invalid, if present.
func (c *Cache) Invalidate(addr uint32) {
	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, uint64(blockAddr))
	if block != nil && block.IsValid {
		block.IsValid = false
	}
}

// Reset invalidates every line and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

func extractData(data []byte, offset uint32, size int) uint32 {
	if data == nil || int(offset)+size > len(data) {
		return 0
	}
	var result uint32
	for i := 0; i < size; i++ {
		result |= uint32(data[int(offset)+i]) << (8 * i)
	}
	return result
}

func storeData(data []byte, offset uint32, size int, value uint32) {
	if data == nil || int(offset)+size > len(data) {
		return
	}
	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (8 * i))
	}
}
