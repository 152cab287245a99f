package tomasulo_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vmips-go/vmips/emu"
	"github.com/vmips-go/vmips/insts"
	"github.com/vmips-go/vmips/timing/tomasulo"
)

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
func encBeq(rs, rt uint8, off int16) uint32   { return encIType(0x04, rs, rt, off) }
func encMult(rs, rt uint8) uint32             { return encRType(0x18, rs, rt, 0, 0) }
func encMflo(rd uint8) uint32                 { return encRType(0x12, 0, 0, rd, 0) }
func encMfhi(rd uint8) uint32                 { return encRType(0x10, 0, 0, rd, 0) }
func encJal(target uint32) uint32             { return 0x03<<26 | (target>>2)&0x3ffffff }

var _ = Describe("Processor", func() {
	var (
		regFile *emu.RegFile
		fpFile  *emu.FPRegFile
		memory  *emu.Memory
		proc    *tomasulo.Processor
		decoder *insts.Decoder
	)

	BeforeEach(func() {
		regFile = emu.NewRegFile()
		fpFile = emu.NewFPRegFile()
		memory = emu.NewMemory(1024 * 1024)
		proc = tomasulo.NewProcessor(regFile, fpFile, memory,
			tomasulo.WithNumStations(16), tomasulo.WithROBSize(32))
		decoder = insts.NewDecoder()
	})

	// issue decodes word at pc with a sequential (not-taken) prediction.
	issue := func(word, pc uint32) bool {
		return proc.Issue(decoder.Decode(word), pc, pc+4)
	}

	// drain ticks until everything in flight has committed, collecting
	// any recovery the processor reported.
	drain := func() []tomasulo.TickResult {
		var results []tomasulo.TickResult
		for i := 0; i < 200 && proc.InFlight() > 0; i++ {
			results = append(results, proc.Tick())
		}
		Expect(proc.InFlight()).To(BeZero())
		return results
	}

	Describe("issue", func() {
		It("should rename destinations through the RAT", func() {
			Expect(issue(encAddiu(8, 0, 5), 0)).To(BeTrue())
			_, mapped := proc.RAT().Lookup(8)
			Expect(mapped).To(BeTrue())
		})

		It("should apply back-pressure when the stations fill up", func() {
			small := tomasulo.NewProcessor(regFile, fpFile, memory,
				tomasulo.WithNumStations(2), tomasulo.WithROBSize(32))
			Expect(small.Issue(decoder.Decode(encAddiu(8, 0, 1)), 0, 4)).To(BeTrue())
			Expect(small.Issue(decoder.Decode(encAddiu(9, 0, 2)), 4, 8)).To(BeTrue())
			Expect(small.Issue(decoder.Decode(encAddiu(10, 0, 3)), 8, 12)).To(BeFalse())
		})

		It("should apply back-pressure when the ROB fills up", func() {
			small := tomasulo.NewProcessor(regFile, fpFile, memory,
				tomasulo.WithNumStations(16), tomasulo.WithROBSize(2))
			Expect(small.Issue(decoder.Decode(encAddiu(8, 0, 1)), 0, 4)).To(BeTrue())
			Expect(small.Issue(decoder.Decode(encAddiu(9, 0, 2)), 4, 8)).To(BeTrue())
			Expect(small.Issue(decoder.Decode(encAddiu(10, 0, 3)), 8, 12)).To(BeFalse())
		})
	})

	Describe("dataflow through the CDB", func() {
		It("should deliver a producer's value to a dependent consumer", func() {
			Expect(issue(encAddiu(8, 0, 5), 0)).To(BeTrue())
			Expect(issue(encAdd(9, 8, 8), 4)).To(BeTrue())

			drain()

			Expect(regFile.Read(8)).To(Equal(uint32(5)))
			Expect(regFile.Read(9)).To(Equal(uint32(10)))
			Expect(proc.RAT().Empty()).To(BeTrue())
		})

		It("should execute independent chains out of order but commit in order", func() {
			// A long-latency multiply issued first, a quick add second:
			// the add finishes executing earlier yet must not commit
			// before the multiply.
			regFile.Write(2, 6)
			regFile.Write(3, 7)
			Expect(issue(encMult(2, 3), 0)).To(BeTrue())
			Expect(issue(encAddiu(8, 0, 1), 4)).To(BeTrue())

			sawAddCommitAlone := false
			for i := 0; i < 200 && proc.InFlight() > 0; i++ {
				r := proc.Tick()
				if r.Committed > 0 && proc.InFlight() == 1 {
					// Only the multiply can still be in flight here.
					sawAddCommitAlone = true
				}
			}
			Expect(sawAddCommitAlone).To(BeFalse())
			Expect(regFile.Read(8)).To(Equal(uint32(1)))
			_, lo := regFile.ReadHiLo()
			Expect(lo).To(Equal(uint32(42)))
		})

		It("should forward an in-flight MULT result to MFLO and MFHI", func() {
			regFile.Write(2, 0x10000)
			regFile.Write(3, 0x10000)
			Expect(issue(encMult(2, 3), 0)).To(BeTrue())
			Expect(issue(encMflo(8), 4)).To(BeTrue())
			Expect(issue(encMfhi(9), 8)).To(BeTrue())

			drain()

			Expect(regFile.Read(8)).To(Equal(uint32(0)))
			Expect(regFile.Read(9)).To(Equal(uint32(1)))
		})
	})

	Describe("loads and stores", func() {
		It("should satisfy a load-compute-store chain", func() {
			memory.WriteWordInit(0x1000, 21)
			Expect(issue(encLw(8, 0, 0x1000), 0)).To(BeTrue())
			Expect(issue(encAdd(9, 8, 8), 4)).To(BeTrue())
			Expect(issue(encSw(9, 0, 0x1004), 8)).To(BeTrue())

			drain()

			v, ok := memory.ReadWord(0x1004)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(42)))
		})

		It("should defer store data to commit", func() {
			regFile.Write(8, 42)
			Expect(issue(encSw(8, 0, 0x1000), 0)).To(BeTrue())

			// One tick dispatches, so nothing can have reached memory yet.
			proc.Tick()
			v, _ := memory.ReadWord(0x1000)
			Expect(v).To(BeZero())

			drain()
			v, _ = memory.ReadWord(0x1000)
			Expect(v).To(Equal(uint32(42)))
		})
	})

	Describe("calls", func() {
		It("should commit the link register as the instruction after the call", func() {
			jal := decoder.Decode(encJal(0x40))
			target, ok := jal.ImmediateTarget(0)
			Expect(ok).To(BeTrue())
			Expect(proc.Issue(jal, 0, target)).To(BeTrue())

			drain()

			Expect(regFile.Read(31)).To(Equal(uint32(4)))
			Expect(proc.Stats().BranchMispredictions).To(BeZero())
		})
	})

	Describe("misprediction recovery", func() {
		It("should flush speculative state after a mispredicted branch commits", func() {
			// Eight independent adds, then a taken branch predicted
			// not-taken.
			for i := uint8(0); i < 8; i++ {
				Expect(issue(encAddiu(8+i, 0, int16(i)+1), uint32(i)*4)).To(BeTrue())
			}
			branchPC := uint32(8 * 4)
			Expect(issue(encBeq(0, 0, 16), branchPC)).To(BeTrue())

			// Wrong-path work issued past the branch: it must never
			// commit.
			Expect(issue(encSw(8, 0, 0x1000), branchPC+4)).To(BeTrue())

			var recoveries []tomasulo.TickResult
			for _, r := range drain() {
				if r.Recovered {
					recoveries = append(recoveries, r)
				}
			}

			Expect(recoveries).To(HaveLen(1))
			Expect(recoveries[0].ResumePC).To(Equal(branchPC + 4 + 16*4))

			stats := proc.Stats()
			Expect(stats.BranchMispredictions).To(Equal(uint64(1)))
			Expect(proc.RAT().Empty()).To(BeTrue())

			for i := uint8(0); i < 8; i++ {
				Expect(regFile.Read(8 + i)).To(Equal(uint32(i) + 1))
			}

			// The wrong-path store was squashed.
			v, _ := memory.ReadWord(0x1000)
			Expect(v).To(BeZero())

			// 8 adds plus the branch committed; the squashed store did
			// not.
			Expect(stats.InstructionsCommitted).To(Equal(uint64(9)))
		})
	})

	Describe("statistics", func() {
		It("should report IPC and utilization over the run", func() {
			Expect(issue(encAddiu(8, 0, 5), 0)).To(BeTrue())
			drain()

			stats := proc.Stats()
			Expect(stats.InstructionsIssued).To(Equal(uint64(1)))
			Expect(stats.InstructionsExecuted).To(Equal(uint64(1)))
			Expect(stats.InstructionsCommitted).To(Equal(uint64(1)))
			Expect(stats.IPC()).To(BeNumerically(">", 0.0))
			Expect(stats.ROBUtilization()).To(BeNumerically(">", 0.0))
		})
	})

	Describe("Snapshot", func() {
		It("should expose in-flight state without aliasing it", func() {
			Expect(issue(encAddiu(8, 0, 5), 0)).To(BeTrue())
			snap := proc.Snapshot()
			Expect(snap.Stations).To(HaveLen(1))
			Expect(snap.ROB).To(HaveLen(1))
			Expect(snap.RAT).To(HaveKey(uint8(8)))

			drain()
			// The old snapshot still shows the pre-drain state.
			Expect(snap.ROB).To(HaveLen(1))
		})
	})
})
