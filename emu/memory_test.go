package emu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vmips-go/vmips/emu"
	"github.com/vmips-go/vmips/simerr"
	"github.com/vmips-go/vmips/simlog"
)

// countingDevice records byte traffic through a mapped 4 KiB window.
type countingDevice struct {
	regs [emu.DeviceWindowSize]uint8
}

func (d *countingDevice) ReadByte(offset uint32) uint8     { return d.regs[offset] }
func (d *countingDevice) WriteByte(offset uint32, v uint8) { d.regs[offset] = v }

var _ = Describe("Memory", func() {
	Describe("permissive mode", func() {
		var m *emu.Memory

		BeforeEach(func() {
			m = emu.NewMemory(4 * 1024 * 1024)
		})

		It("should round-trip aligned words", func() {
			Expect(m.WriteWord(0x1000, 0xdeadbeef)).To(BeTrue())
			v, ok := m.ReadWord(0x1000)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(0xdeadbeef)))
		})

		It("should store words little-endian", func() {
			Expect(m.WriteWord(0x1000, 0x11223344)).To(BeTrue())
			b, ok := m.ReadByte(0x1000)
			Expect(ok).To(BeTrue())
			Expect(b).To(Equal(uint8(0x44)))
			b, _ = m.ReadByte(0x1003)
			Expect(b).To(Equal(uint8(0x11)))
		})

		It("should tolerate misaligned word and halfword accesses with a warning", func() {
			m.SetLogger(simlog.New(GinkgoWriter, simlog.LevelWarn))

			Expect(m.WriteWord(0x1002, 0xa1b2c3d4)).To(BeTrue())
			v, ok := m.ReadWord(0x1002)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(0xa1b2c3d4)))

			Expect(m.WriteHalfword(0x2001, 0xbeef)).To(BeTrue())
			h, ok := m.ReadHalfword(0x2001)
			Expect(ok).To(BeTrue())
			Expect(h).To(Equal(uint16(0xbeef)))
		})

		It("should fold high addresses back into the low 20 bits", func() {
			Expect(m.WriteWord(0x10000100, 42)).To(BeTrue())
			v, ok := m.ReadWord(0x100)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(42)))
		})

		It("should refuse out-of-bounds accesses", func() {
			small := emu.NewMemory(0x1000)
			Expect(small.WriteWord(0x2000, 1)).To(BeFalse())
			_, ok := small.ReadWord(0x2000)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("strict mode", func() {
		var m *emu.Memory

		BeforeEach(func() {
			m = emu.NewStrictMemory(0x10000)
		})

		It("should refuse accesses no region covers", func() {
			Expect(m.WriteWord(0x100, 1)).To(BeFalse())
			_, ok := m.ReadWord(0x100)
			Expect(ok).To(BeFalse())
		})

		It("should allow accesses a region grants", func() {
			m.AddRegion(emu.Region{Start: 0, End: 0x1000, Perm: emu.PermRead | emu.PermWrite})
			Expect(m.WriteWord(0x100, 7)).To(BeTrue())
			v, ok := m.ReadWord(0x100)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(7)))
		})

		It("should refuse misaligned word and halfword accesses", func() {
			m.AddRegion(emu.Region{Start: 0, End: 0x1000, Perm: emu.PermRead | emu.PermWrite})

			Expect(m.WriteWord(0x102, 1)).To(BeFalse())
			_, ok := m.ReadWord(0x102)
			Expect(ok).To(BeFalse())

			Expect(m.WriteHalfword(0x101, 1)).To(BeFalse())
			_, ok = m.ReadHalfword(0x101)
			Expect(ok).To(BeFalse())
		})

		It("should honour the first matching region's permissions", func() {
			m.AddRegion(emu.Region{Start: 0, End: 0x1000, Perm: emu.PermRead})
			m.AddRegion(emu.Region{Start: 0, End: 0x1000, Perm: emu.PermRead | emu.PermWrite})
			Expect(m.WriteWord(0x100, 7)).To(BeFalse())
			_, ok := m.ReadWord(0x100)
			Expect(ok).To(BeTrue())
		})

		It("should classify violations in the strict accessors", func() {
			m.AddRegion(emu.Region{Start: 0, End: 0x1000, Perm: emu.PermRead | emu.PermWrite})

			_, err := m.ReadWordStrict(0x102)
			var memErr *simerr.MemoryError
			Expect(errors.As(err, &memErr)).To(BeTrue())
			Expect(memErr.Kind).To(Equal(simerr.MemMisaligned))

			err = m.WriteWordStrict(0x2000, 1)
			Expect(errors.As(err, &memErr)).To(BeTrue())
			Expect(memErr.Kind).To(Equal(simerr.MemOutOfBounds))
		})
	})

	Describe("mapped devices", func() {
		It("should route accesses in a device window to the device", func() {
			m := emu.NewMemory(0x10000)
			dev := &countingDevice{}
			m.MapDevice(0x3000, dev)

			Expect(m.WriteByte(0x3004, 0xab)).To(BeTrue())
			Expect(dev.regs[4]).To(Equal(uint8(0xab)))

			dev.regs[8] = 0xcd
			b, ok := m.ReadByte(0x3008)
			Expect(ok).To(BeTrue())
			Expect(b).To(Equal(uint8(0xcd)))
		})
	})

	Describe("Sbrk", func() {
		It("should grow the heap monotonically and return the old break", func() {
			m := emu.NewMemory(4 * 1024 * 1024)
			old, ok := m.Sbrk(16)
			Expect(ok).To(BeTrue())
			Expect(old).To(Equal(uint32(0x200000)))

			old, ok = m.Sbrk(32)
			Expect(ok).To(BeTrue())
			Expect(old).To(Equal(uint32(0x200010)))
		})

		It("should refuse growth past the end of memory", func() {
			m := emu.NewMemory(4 * 1024 * 1024)
			_, ok := m.Sbrk(1 << 30)
			Expect(ok).To(BeFalse())
			Expect(m.HeapTop()).To(Equal(uint32(0x200000)))
		})
	})
})
