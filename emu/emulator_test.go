package emu_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vmips-go/vmips/emu"
)

// Instruction encoders for building test programs.
func encRType(funct uint32, rs, rt, rd, shamt uint8) uint32 {
	return uint32(rs)<<21 | uint32(rt)<<16 | uint32(rd)<<11 | uint32(shamt)<<6 | funct
}

func encIType(opcode uint32, rs, rt uint8, imm int16) uint32 {
	return opcode<<26 | uint32(rs)<<21 | uint32(rt)<<16 | uint32(uint16(imm))
}

func encAdd(rd, rs, rt uint8) uint32          { return encRType(0x20, rs, rt, rd, 0) }
func encAddiu(rt, rs uint8, imm int16) uint32 { return encIType(0x09, rs, rt, imm) }
func encLw(rt, base uint8, off int16) uint32  { return encIType(0x23, base, rt, off) }
func encSw(rt, base uint8, off int16) uint32  { return encIType(0x2b, base, rt, off) }
func encBne(rs, rt uint8, off int16) uint32   { return encIType(0x05, rs, rt, off) }
func encBeq(rs, rt uint8, off int16) uint32   { return encIType(0x04, rs, rt, off) }
func encMult(rs, rt uint8) uint32             { return encRType(0x18, rs, rt, 0, 0) }
func encMflo(rd uint8) uint32                 { return encRType(0x12, 0, 0, rd, 0) }
func encJ(target uint32) uint32               { return 0x02<<26 | (target>>2)&0x3ffffff }
func encJal(target uint32) uint32             { return 0x03<<26 | (target>>2)&0x3ffffff }
func encJr(rs uint8) uint32                   { return encRType(0x08, rs, 0, 0, 0) }
func encSyscall() uint32                      { return encRType(0x0c, 0, 0, 0, 0) }

// loadWords writes a program image at base, bypassing permission checks
// the way the loaders do.
func loadWords(m *emu.Memory, base uint32, words []uint32) {
	for i, w := range words {
		m.WriteWordInit(base+uint32(i)*4, w)
	}
}

var _ = Describe("Simulator", func() {
	var (
		sim    *emu.Simulator
		stdout *bytes.Buffer
	)

	BeforeEach(func() {
		stdout = &bytes.Buffer{}
		sim = emu.NewSimulator(emu.WithStdout(stdout))
	})

	Describe("register file invariants", func() {
		It("should discard writes to register 0", func() {
			sim.RegFile().Write(0, 0xffffffff)
			Expect(sim.RegFile().Read(0)).To(Equal(uint32(0)))
		})

		It("should round-trip writes to every other register", func() {
			for r := uint8(1); r < 32; r++ {
				sim.RegFile().Write(r, uint32(r)*3)
				Expect(sim.RegFile().Read(r)).To(Equal(uint32(r) * 3))
			}
		})
	})

	Describe("Step", func() {
		It("should add modulo 2^32", func() {
			sim.RegFile().Write(1, 0xffffffff)
			sim.RegFile().Write(2, 2)
			loadWords(sim.Memory(), 0, []uint32{encAdd(3, 1, 2)})
			sim.SetPC(0)

			_, _, term := sim.Step()
			Expect(term).To(BeNil())
			Expect(sim.RegFile().Read(3)).To(Equal(uint32(1)))
			Expect(sim.PC()).To(Equal(uint32(4)))
		})

		It("should terminate on an invalid instruction", func() {
			loadWords(sim.Memory(), 0, []uint32{uint32(0x3f)<<26 | 1})
			sim.SetPC(0)

			_, _, term := sim.Step()
			Expect(term).NotTo(BeNil())
			Expect(term.Reason).To(ContainSubstring("invalid instruction"))
			Expect(term.PC).To(Equal(uint32(0)))
		})

		It("should terminate on a jump back to self", func() {
			loadWords(sim.Memory(), 0x40, []uint32{encJ(0x40)})
			sim.SetPC(0x40)

			_, _, term := sim.Step()
			Expect(term).NotTo(BeNil())
			Expect(term.Reason).To(ContainSubstring("jump back to self"))
		})
	})

	Describe("Run terminal conditions", func() {
		It("should stop when the instruction budget is exhausted and report hot PCs", func() {
			sim = emu.NewSimulator(emu.WithStdout(stdout), emu.WithMaxInstructions(50))
			loadWords(sim.Memory(), 0, []uint32{
				encAddiu(8, 8, 1),
				encBeq(0, 0, -2),
			})
			sim.SetPC(0)

			result := sim.Run()
			Expect(result.Exited).To(BeFalse())
			Expect(result.Exception).NotTo(BeNil())
			Expect(result.Exception.Reason).To(ContainSubstring("budget"))
			Expect(result.TopPCs).NotTo(BeEmpty())
			Expect(result.Instructions).To(Equal(uint64(50)))
		})

		It("should stop on a sustained NOP tail", func() {
			program := make([]uint32, 12)
			for i := range program {
				program[i] = encAddiu(8, 8, 1)
			}
			loadWords(sim.Memory(), 0, program)
			sim.SetPC(0)

			result := sim.Run()
			Expect(result.Exception).NotTo(BeNil())
			Expect(result.Exception.Reason).To(ContainSubstring("tail"))
			Expect(sim.RegFile().Read(8)).To(Equal(uint32(12)))
		})

		It("should stop cleanly on an exit syscall", func() {
			loadWords(sim.Memory(), 0, []uint32{
				encAddiu(2, 0, 17),
				encAddiu(4, 0, 9),
				encSyscall(),
			})
			sim.SetPC(0)

			result := sim.Run()
			Expect(result.Exited).To(BeTrue())
			Expect(result.ExitCode).To(Equal(int32(9)))
			Expect(result.Instructions).To(Equal(uint64(3)))
		})
	})

	Describe("end to end programs", func() {
		It("should sum two words through memory", func() {
			sim.Memory().WriteWordInit(0x1000, 21)
			sim.Memory().WriteWordInit(0x1004, 21)
			loadWords(sim.Memory(), 0, []uint32{
				encLw(2, 0, 0x1000),
				encLw(3, 0, 0x1004),
				encAdd(2, 2, 3),
				encSw(2, 0, 0x1008),
			})
			sim.SetPC(0)

			sim.Run()

			Expect(sim.RegFile().Read(2)).To(Equal(uint32(42)))
			v, ok := sim.Memory().ReadWord(0x1008)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(42)))
		})

		It("should return from a JAL call to the instruction after the call site", func() {
			// 0x00: JAL 0x20          calls the leaf routine
			// 0x04: ADDIU $8, $0, 7   runs only after the callee returns
			// 0x08: ADDIU $2, $0, 10  exit
			// 0x0c: SYSCALL
			// 0x20: ADDIU $9, $0, 1
			// 0x24: JR $31
			loadWords(sim.Memory(), 0, []uint32{
				encJal(0x20),
				encAddiu(8, 0, 7),
				encAddiu(2, 0, 10),
				encSyscall(),
			})
			loadWords(sim.Memory(), 0x20, []uint32{
				encAddiu(9, 0, 1),
				encJr(31),
			})
			sim.SetPC(0)

			result := sim.Run()

			Expect(result.Exited).To(BeTrue())
			Expect(sim.RegFile().Read(31)).To(Equal(uint32(4)))
			Expect(sim.RegFile().Read(9)).To(Equal(uint32(1)))
			Expect(sim.RegFile().Read(8)).To(Equal(uint32(7)))
		})

		It("should count down a loop to zero", func() {
			loadWords(sim.Memory(), 0, []uint32{
				encAddiu(2, 0, 10),
				encAddiu(2, 2, -1),
				encBne(2, 0, -2),
			})
			sim.SetPC(0)

			sim.Run()

			Expect(sim.RegFile().Read(2)).To(Equal(uint32(0)))
		})

		It("should compute Fibonacci by interleaved adds", func() {
			sim.RegFile().Write(2, 0)
			sim.RegFile().Write(3, 1)
			program := []uint32{}
			for i := 0; i < 9; i++ {
				if i%2 == 0 {
					program = append(program, encAdd(2, 2, 3))
				} else {
					program = append(program, encAdd(3, 3, 2))
				}
			}
			program = append(program, encSw(2, 0, 0x1000))
			loadWords(sim.Memory(), 0, program)
			sim.SetPC(0)

			sim.Run()

			v, ok := sim.Memory().ReadWord(0x1000)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(55)))
		})

		It("should multiply two 2x2 matrices", func() {
			a := []uint32{1, 2, 3, 4}
			b := []uint32{5, 6, 7, 8}
			for i, v := range a {
				sim.Memory().WriteWordInit(0x1000+uint32(i)*4, v)
			}
			for i, v := range b {
				sim.Memory().WriteWordInit(0x1100+uint32(i)*4, v)
			}

			var program []uint32
			for i := 0; i < 2; i++ {
				for j := 0; j < 2; j++ {
					program = append(program,
						encLw(8, 0, int16(0x1000+i*8)),
						encLw(9, 0, int16(0x1100+j*4)),
						encMult(8, 9),
						encMflo(10),
						encLw(8, 0, int16(0x1000+i*8+4)),
						encLw(9, 0, int16(0x1100+8+j*4)),
						encMult(8, 9),
						encMflo(11),
						encAdd(10, 10, 11),
						encSw(10, 0, int16(0x1200+i*8+j*4)),
					)
				}
			}
			Expect(program).To(HaveLen(40))
			loadWords(sim.Memory(), 0, program)
			sim.SetPC(0)

			sim.Run()

			want := []uint32{19, 22, 43, 50}
			for i, expected := range want {
				v, ok := sim.Memory().ReadWord(0x1200 + uint32(i)*4)
				Expect(ok).To(BeTrue())
				Expect(v).To(Equal(expected), "C[%d]", i)
			}
		})
	})
})
