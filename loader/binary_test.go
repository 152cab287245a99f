package loader_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vmips-go/vmips/emu"
	"github.com/vmips-go/vmips/loader"
	"github.com/vmips-go/vmips/simerr"
)

var _ = Describe("Flat binary format", func() {
	It("should round-trip through encode and load", func() {
		data := []byte{1, 2, 3, 4, 5}
		text := []uint32{0x24020011, 0x0000000c}

		image := loader.EncodeBinary(data, text)
		prog, err := loader.LoadBinary(bytes.NewReader(image), 0x10000000, 0x1000, 0x1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.EntryPoint).To(Equal(uint32(0x1000)))
		Expect(prog.Segments).To(HaveLen(2))

		Expect(prog.Segments[0].VirtAddr).To(Equal(uint32(0x10000000)))
		Expect(prog.Segments[0].Data).To(Equal(data))
		Expect(prog.Segments[1].VirtAddr).To(Equal(uint32(0x1000)))
		Expect(prog.Segments[1].Data).To(HaveLen(8))
	})

	It("should omit empty sections", func() {
		image := loader.EncodeBinary(nil, []uint32{0})
		prog, err := loader.LoadBinary(bytes.NewReader(image), 0x10000000, 0x1000, 0x1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Segments).To(HaveLen(1))
	})

	It("should reject an image shorter than its header", func() {
		_, err := loader.LoadBinary(bytes.NewReader([]byte{1, 2, 3}), 0, 0, 0)
		var loadErr *simerr.LoaderError
		Expect(errors.As(err, &loadErr)).To(BeTrue())
		Expect(loadErr.Kind).To(Equal(simerr.LoaderInvalidFormat))
	})

	It("should reject a text size that is not word-aligned", func() {
		image := []byte{0, 0, 0, 0, 3, 0, 0, 0, 1, 2, 3}
		_, err := loader.LoadBinary(bytes.NewReader(image), 0, 0, 0)
		var loadErr *simerr.LoaderError
		Expect(errors.As(err, &loadErr)).To(BeTrue())
	})

	It("should reject a truncated image", func() {
		image := loader.EncodeBinary([]byte{1, 2, 3, 4}, []uint32{1, 2})
		_, err := loader.LoadBinary(bytes.NewReader(image[:len(image)-2]), 0, 0, 0)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("LoadInto", func() {
	It("should copy segments and zero-fill the BSS tail", func() {
		m := emu.NewMemory(0x10000)
		m.WriteByteInit(0x2004, 0xff)

		prog := &loader.Program{
			EntryPoint: 0x1000,
			Segments: []loader.Segment{
				{VirtAddr: 0x2000, Data: []byte{0xaa, 0xbb}, MemSize: 8},
			},
		}
		loader.LoadInto(m, prog)

		b, _ := m.ReadByte(0x2000)
		Expect(b).To(Equal(uint8(0xaa)))
		b, _ = m.ReadByte(0x2001)
		Expect(b).To(Equal(uint8(0xbb)))
		b, _ = m.ReadByte(0x2004)
		Expect(b).To(Equal(uint8(0)))
	})
})

var _ = Describe("ELF loader", func() {
	It("should reject a file that is not ELF", func() {
		f, err := writeTempFile([]byte("definitely not an ELF"))
		Expect(err).NotTo(HaveOccurred())
		_, err = loader.LoadELF(f)
		Expect(err).To(HaveOccurred())
	})
})
