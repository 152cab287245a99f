package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vmips-go/vmips/emu"
	"github.com/vmips-go/vmips/timing/cache"
)

var _ = Describe("Cache", func() {
	var (
		memory  *emu.Memory
		backing *cache.MemoryBacking
	)

	BeforeEach(func() {
		memory = emu.NewMemory(64 * 1024)
		backing = cache.NewMemoryBacking(memory)
	})

	Describe("basic read path", func() {
		var c *cache.Cache

		BeforeEach(func() {
			c = cache.New(cache.Config{
				Size: 4 * 1024, Associativity: 4, BlockSize: 64,
				HitLatency: 1, MissLatency: 10,
			}, backing)
		})

		It("should miss cold and hit warm", func() {
			memory.WriteWord(0x1000, 0xcafebabe)

			first := c.Read(0x1000, 4)
			Expect(first.Hit).To(BeFalse())
			Expect(first.Latency).To(Equal(uint64(10)))
			Expect(first.Data).To(Equal(uint32(0xcafebabe)))

			second := c.Read(0x1000, 4)
			Expect(second.Hit).To(BeTrue())
			Expect(second.Latency).To(Equal(uint64(1)))
			Expect(second.Data).To(Equal(uint32(0xcafebabe)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(2)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(1)))
		})

		It("should hit across a filled block", func() {
			memory.WriteWord(0x1000, 0x11111111)
			memory.WriteWord(0x1020, 0x22222222)

			c.Read(0x1000, 4)
			result := c.Read(0x1020, 4)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Data).To(Equal(uint32(0x22222222)))
		})
	})

	Describe("write-through policy", func() {
		var c *cache.Cache

		BeforeEach(func() {
			c = cache.New(cache.Config{
				Size: 4 * 1024, Associativity: 4, BlockSize: 64,
				HitLatency: 1, MissLatency: 10,
			}, backing)
		})

		It("should propagate every write to the backing store", func() {
			c.Read(0x1000, 4)
			c.Write(0x1000, 4, 0x0badf00d)

			v, ok := memory.ReadWord(0x1000)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(0x0badf00d)))

			result := c.Read(0x1000, 4)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Data).To(Equal(uint32(0x0badf00d)))
		})

		It("should not allocate a line on a write miss", func() {
			c.Write(0x2000, 4, 0x12345678)

			v, _ := memory.ReadWord(0x2000)
			Expect(v).To(Equal(uint32(0x12345678)))

			result := c.Read(0x2000, 4)
			Expect(result.Hit).To(BeFalse())
		})

		It("should leave memory equal to the most recent store after a mixed sequence", func() {
			addrs := []uint32{0x100, 0x140, 0x180, 0x100, 0x1c0}
			for i, addr := range addrs {
				c.Write(addr, 4, uint32(i+1))
			}

			v, _ := memory.ReadWord(0x100)
			Expect(v).To(Equal(uint32(4)))
			v, _ = memory.ReadWord(0x1c0)
			Expect(v).To(Equal(uint32(5)))
		})
	})

	Describe("LRU replacement", func() {
		It("should evict the least recently used way", func() {
			// Two sets, two ways: 0x00, 0x20 and 0x40 all land in set 0.
			c := cache.New(cache.Config{
				Size: 64, Associativity: 2, BlockSize: 16,
				HitLatency: 1, MissLatency: 10,
			}, backing)

			memory.WriteWord(0x00, 1)
			memory.WriteWord(0x20, 2)
			memory.WriteWord(0x40, 3)

			c.Read(0x00, 4)
			c.Read(0x20, 4)
			Expect(c.Read(0x00, 4).Hit).To(BeTrue())

			// Set 0 is full and 0x20 is the least recently used line.
			result := c.Read(0x40, 4)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Evicted).To(BeTrue())

			Expect(c.Read(0x00, 4).Hit).To(BeTrue())
			Expect(c.Read(0x20, 4).Hit).To(BeFalse())
		})
	})

	Describe("strided miss pattern", func() {
		It("should miss on every access of a 128-byte stride through a 512-byte direct-mapped cache", func() {
			c := cache.New(cache.Config{
				Size: 512, Associativity: 1, BlockSize: 16,
				HitLatency: 1, MissLatency: 10,
			}, backing)

			distinctSets := map[uint32]bool{}
			for i := 0; i < 10; i++ {
				addr := uint32(i) * 128
				distinctSets[c.DecodeAddress(addr).SetIndex] = true
				result := c.Read(addr, 4)
				Expect(result.Hit).To(BeFalse())
			}

			stats := c.Stats()
			Expect(stats.Misses).To(Equal(uint64(10)))
			Expect(stats.Misses).To(Equal(uint64(len(distinctSets)) + stats.Evictions))
		})
	})

	Describe("DecodeAddress", func() {
		It("should split an address by block and set geometry", func() {
			c := cache.New(cache.Config{
				Size: 512, Associativity: 1, BlockSize: 16,
				HitLatency: 1, MissLatency: 10,
			}, backing)
			// 32 sets: 4 offset bits, 5 index bits.
			parts := c.DecodeAddress(0x1234)
			Expect(parts.Offset).To(Equal(uint32(0x4)))
			Expect(parts.SetIndex).To(Equal(uint32(0x03)))
			Expect(parts.Tag).To(Equal(uint32(0x1234 >> 9)))
		})
	})

	Describe("two-level hierarchy", func() {
		It("should fill the L1 from an L2 that filled from memory", func() {
			l2 := cache.New(cache.DefaultL2Config(), backing, cache.WithWriteAllocate())
			l1 := cache.New(cache.DefaultL1DConfig(), cache.NewLevelBacking(l2))

			memory.WriteWord(0x3000, 0x5a5a5a5a)

			result := l1.Read(0x3000, 4)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Data).To(Equal(uint32(0x5a5a5a5a)))

			Expect(l1.Read(0x3000, 4).Hit).To(BeTrue())
			Expect(l2.Stats().Misses).To(BeNumerically(">", uint64(0)))
		})
	})
})
