package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vmips-go/vmips/insts"
)

// Encoding helpers mirroring the MIPS-I field layout.
func rType(funct uint32, rs, rt, rd, shamt uint32) uint32 {
	return rs<<21 | rt<<16 | rd<<11 | shamt<<6 | funct
}

func iType(opcode uint32, rs, rt uint32, imm uint16) uint32 {
	return opcode<<26 | rs<<21 | rt<<16 | uint32(imm)
}

func jType(opcode uint32, target uint32) uint32 {
	return opcode<<26 | (target & 0x3ffffff)
}

var _ = Describe("Decoder", func() {
	var d *insts.Decoder

	BeforeEach(func() {
		d = insts.NewDecoder()
	})

	It("should decode the all-zero word as NOP", func() {
		instr := d.Decode(0x00000000)
		Expect(instr.Op).To(Equal(insts.OpNop))
	})

	It("should decode R-type arithmetic", func() {
		instr := d.Decode(rType(0x20, 1, 2, 3, 0))
		Expect(instr.Op).To(Equal(insts.OpAdd))
		Expect(instr.Rs).To(Equal(uint8(1)))
		Expect(instr.Rt).To(Equal(uint8(2)))
		Expect(instr.Rd).To(Equal(uint8(3)))
	})

	It("should decode shifts with their shamt field", func() {
		instr := d.Decode(rType(0x00, 0, 5, 6, 12))
		Expect(instr.Op).To(Equal(insts.OpSll))
		Expect(instr.Rt).To(Equal(uint8(5)))
		Expect(instr.Rd).To(Equal(uint8(6)))
		Expect(instr.Shamt).To(Equal(uint8(12)))
	})

	It("should sign-extend the ADDIU immediate", func() {
		instr := d.Decode(iType(0x09, 2, 2, 0xffff))
		Expect(instr.Op).To(Equal(insts.OpAddiu))
		Expect(instr.Imm).To(Equal(int32(-1)))
	})

	It("should zero-extend the ORI immediate", func() {
		instr := d.Decode(iType(0x0d, 1, 2, 0xffff))
		Expect(instr.Op).To(Equal(insts.OpOri))
		Expect(instr.Imm).To(Equal(int32(0xffff)))
	})

	It("should decode loads and stores with sign-extended offsets", func() {
		lw := d.Decode(iType(0x23, 29, 8, 0xfffc))
		Expect(lw.Op).To(Equal(insts.OpLw))
		Expect(lw.Imm).To(Equal(int32(-4)))

		sw := d.Decode(iType(0x2b, 29, 8, 0x0010))
		Expect(sw.Op).To(Equal(insts.OpSw))
		Expect(sw.Imm).To(Equal(int32(16)))
	})

	It("should decode branches with word-scaled targets", func() {
		instr := d.Decode(iType(0x04, 1, 2, 0xfffe))
		Expect(instr.Op).To(Equal(insts.OpBeq))

		target, ok := instr.ImmediateTarget(0x100)
		Expect(ok).To(BeTrue())
		Expect(target).To(Equal(uint32(0x100 + 4 - 8)))
	})

	It("should decode jumps with region-preserving targets", func() {
		instr := d.Decode(jType(0x02, 0x40))
		Expect(instr.Op).To(Equal(insts.OpJ))
		Expect(instr.Target).To(Equal(uint32(0x100)))

		target, ok := instr.ImmediateTarget(0x30001000)
		Expect(ok).To(BeTrue())
		Expect(target).To(Equal(uint32(0x30000100)))
	})

	It("should decode REGIMM branches by their rt subcode", func() {
		Expect(d.Decode(iType(0x01, 3, 0x00, 8)).Op).To(Equal(insts.OpBltz))
		Expect(d.Decode(iType(0x01, 3, 0x01, 8)).Op).To(Equal(insts.OpBgez))
	})

	It("should default JALR's link register to $31", func() {
		instr := d.Decode(rType(0x09, 4, 0, 0, 0))
		Expect(instr.Op).To(Equal(insts.OpJalr))
		Expect(instr.Rd).To(Equal(uint8(31)))
	})

	It("should decode MULT/DIV and HI/LO moves", func() {
		Expect(d.Decode(rType(0x18, 1, 2, 0, 0)).Op).To(Equal(insts.OpMult))
		Expect(d.Decode(rType(0x1a, 1, 2, 0, 0)).Op).To(Equal(insts.OpDiv))
		Expect(d.Decode(rType(0x10, 0, 0, 7, 0)).Op).To(Equal(insts.OpMfhi))
		Expect(d.Decode(rType(0x12, 0, 0, 7, 0)).Op).To(Equal(insts.OpMflo))
	})

	It("should decode SYSCALL and BREAK", func() {
		Expect(d.Decode(rType(0x0c, 0, 0, 0, 0)).Op).To(Equal(insts.OpSyscall))
		Expect(d.Decode(rType(0x0d, 0, 0, 0, 0)).Op).To(Equal(insts.OpBreak))
	})

	It("should decode single-precision COP1 arithmetic as (ft, fs, fd)", func() {
		// ADD.S $f2, $f4, $f6: fmt=S ft=6 fs=4 fd=2.
		word := uint32(0x11)<<26 | uint32(0x10)<<21 | uint32(6)<<16 | uint32(4)<<11 | uint32(2)<<6
		instr := d.Decode(word)
		Expect(instr.Op).To(Equal(insts.OpAddS))
		Expect(instr.Rs).To(Equal(uint8(6)))
		Expect(instr.Rt).To(Equal(uint8(4)))
		Expect(instr.Rd).To(Equal(uint8(2)))
	})

	It("should decode BC1T/BC1F", func() {
		bc1t := uint32(0x11)<<26 | uint32(0x08)<<21 | uint32(1)<<16 | 0x0004
		bc1f := uint32(0x11)<<26 | uint32(0x08)<<21 | uint32(0)<<16 | 0x0004
		Expect(d.Decode(bc1t).Op).To(Equal(insts.OpBc1t))
		Expect(d.Decode(bc1f).Op).To(Equal(insts.OpBc1f))
	})

	It("should decode unknown opcodes as invalid", func() {
		Expect(d.Decode(uint32(0x3f)<<26 | 1).Op).To(Equal(insts.OpInvalid))
	})

	It("should decode unknown SPECIAL functs as invalid", func() {
		Expect(d.Decode(rType(0x3f, 1, 2, 3, 0)).Op).To(Equal(insts.OpInvalid))
	})

	It("should be deterministic over arbitrary words", func() {
		words := []uint32{0, 1, 0xdeadbeef, 0xffffffff, 0x8c220000, 0x00851820}
		for _, w := range words {
			Expect(d.Decode(w)).To(Equal(d.Decode(w)))
		}
	})
})
