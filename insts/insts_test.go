package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vmips-go/vmips/insts"
)

var _ = Describe("Instruction", func() {
	var d *insts.Decoder

	BeforeEach(func() {
		d = insts.NewDecoder()
	})

	Describe("SourceRegisters", func() {
		It("should report both operands of an R-type op", func() {
			instr := d.Decode(rType(0x20, 1, 2, 3, 0))
			Expect(instr.SourceRegisters()).To(ConsistOf(uint8(1), uint8(2)))
		})

		It("should report only the base register of a load", func() {
			instr := d.Decode(iType(0x23, 29, 8, 0))
			Expect(instr.SourceRegisters()).To(ConsistOf(uint8(29)))
		})

		It("should report base and data registers of a store", func() {
			instr := d.Decode(iType(0x2b, 29, 8, 0))
			Expect(instr.SourceRegisters()).To(ConsistOf(uint8(29), uint8(8)))
		})
	})

	Describe("DestinationRegister", func() {
		It("should report rd for R-type and rt for I-type", func() {
			add := d.Decode(rType(0x20, 1, 2, 3, 0))
			dest, ok := add.DestinationRegister()
			Expect(ok).To(BeTrue())
			Expect(dest).To(Equal(uint8(3)))

			addiu := d.Decode(iType(0x09, 1, 2, 5))
			dest, ok = addiu.DestinationRegister()
			Expect(ok).To(BeTrue())
			Expect(dest).To(Equal(uint8(2)))
		})

		It("should report $31 for JAL", func() {
			dest, ok := d.Decode(jType(0x03, 0x40)).DestinationRegister()
			Expect(ok).To(BeTrue())
			Expect(dest).To(Equal(uint8(31)))
		})

		It("should report no destination for stores and branches", func() {
			_, ok := d.Decode(iType(0x2b, 29, 8, 0)).DestinationRegister()
			Expect(ok).To(BeFalse())
			_, ok = d.Decode(iType(0x04, 1, 2, 4)).DestinationRegister()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("classification", func() {
		It("should classify control flow", func() {
			Expect(d.Decode(iType(0x05, 1, 2, 4)).IsBranchOrJump()).To(BeTrue())
			Expect(d.Decode(rType(0x08, 31, 0, 0, 0)).IsBranchOrJump()).To(BeTrue())
			Expect(d.Decode(rType(0x20, 1, 2, 3, 0)).IsBranchOrJump()).To(BeFalse())
		})

		It("should classify memory accesses and stores", func() {
			lw := d.Decode(iType(0x23, 29, 8, 0))
			Expect(lw.IsMemoryAccess()).To(BeTrue())
			Expect(lw.IsStore()).To(BeFalse())

			sb := d.Decode(iType(0x28, 29, 8, 0))
			Expect(sb.IsMemoryAccess()).To(BeTrue())
			Expect(sb.IsStore()).To(BeTrue())
		})

		It("should map operations onto functional-unit classes", func() {
			Expect(insts.ClassOf(insts.OpAdd)).To(Equal(insts.ClassIntALU))
			Expect(insts.ClassOf(insts.OpAddS)).To(Equal(insts.ClassFPAdd))
			Expect(insts.ClassOf(insts.OpMult)).To(Equal(insts.ClassFPMul))
			Expect(insts.ClassOf(insts.OpDivu)).To(Equal(insts.ClassFPDiv))
			Expect(insts.ClassOf(insts.OpSw)).To(Equal(insts.ClassLoadStore))
			Expect(insts.ClassOf(insts.OpJal)).To(Equal(insts.ClassBranch))
		})
	})

	Describe("ImmediateTarget", func() {
		It("should have no static target for register-indirect jumps", func() {
			_, ok := d.Decode(rType(0x08, 31, 0, 0, 0)).ImmediateTarget(0x1000)
			Expect(ok).To(BeFalse())
		})
	})
})
