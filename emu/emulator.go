// Package emu provides the functional simulator: the register file, byte
// addressed memory, decode-execute loop, and the syscall surface it exposes.
package emu

import (
	"fmt"
	"io"
	"os"

	"github.com/vmips-go/vmips/insts"
	"github.com/vmips-go/vmips/simerr"
)

// defaultInstructionBudget is the step ceiling the functional driver enforces
// when the caller has not set one explicitly.
const defaultInstructionBudget = 1000

// tailNopThreshold is how many consecutive Nop decodes (after the program
// has already made progress) the driver treats as having run off the end
// of the program into zero-filled memory.
const tailNopThreshold = 10

// pcHistogramCap bounds the PC frequency hint kept for budget-exhaustion
// diagnostics; the driver never grows it past this many distinct PCs.
const pcHistogramCap = 256

// Exception records the first fatal condition the functional driver hit,
// matching the error-handling design's "reason, PC, and (for memory errors)
// the offending address" contract.
type Exception struct {
	Reason  string
	PC      uint32
	Address uint32
	HasAddr bool
}

func (e *Exception) Error() string {
	if e.HasAddr {
		return fmt.Sprintf("%s at PC 0x%08x, address 0x%08x", e.Reason, e.PC, e.Address)
	}
	return fmt.Sprintf("%s at PC 0x%08x", e.Reason, e.PC)
}

// RunResult reports how a functional run ended.
type RunResult struct {
	// Exited is true when a syscall asked the driver to halt.
	Exited bool
	// ExitCode is the exit status when Exited is true.
	ExitCode int32
	// Exception is set when the run ended on a terminal condition other
	// than a clean exit syscall (invalid instruction, program tail, budget
	// exhaustion, self-jump).
	Exception *Exception
	// Instructions is the number of instructions executed.
	Instructions uint64
	// TopPCs lists the most frequently re-executed PCs. It is populated
	// when the run ended on budget exhaustion or on a terminal exception
	// raised by a step; it is empty after a clean exit or a program-tail
	// stop.
	TopPCs []PCFrequency
}

// PCFrequency pairs a program counter with how many times it was fetched.
type PCFrequency struct {
	PC    uint32
	Count uint32
}

// Simulator is the functional engine: it executes one instruction at a
// time, mutating architectural state, with no timing model. It is the
// semantic oracle the timing engines are checked against.
type Simulator struct {
	regFile *RegFile
	fpFile  *FPRegFile
	memory  *Memory
	decoder *insts.Decoder

	alu        *ALU
	fpu        *FPU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit
	fpBranch   *FPBranchUnit

	syscallHandler SyscallHandler

	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	instructionCount uint64
	maxInstructions  uint64
	pcHistogram      map[uint32]uint32
}

// Option configures a Simulator at construction time.
type Option func(*Simulator)

// WithStdout overrides the writer print_string/print_int/... write to.
func WithStdout(w io.Writer) Option {
	return func(s *Simulator) { s.stdout = w }
}

// WithStderr overrides the writer diagnostic messages are written to.
func WithStderr(w io.Writer) Option {
	return func(s *Simulator) { s.stderr = w }
}

// WithStdin overrides the reader read_int/read_string/read_char consume.
func WithStdin(r io.Reader) Option {
	return func(s *Simulator) { s.stdin = r }
}

// WithSyscallHandler overrides the default syscall handler, e.g. for tests
// that want to script syscall behaviour deterministically.
func WithSyscallHandler(h SyscallHandler) Option {
	return func(s *Simulator) { s.syscallHandler = h }
}

// WithMaxInstructions sets the instruction budget terminal condition. Zero
// selects the default of 1000.
func WithMaxInstructions(max uint64) Option {
	return func(s *Simulator) {
		if max == 0 {
			max = defaultInstructionBudget
		}
		s.maxInstructions = max
	}
}

// WithMemory wires a pre-built Memory (already loaded with a program)
// instead of the default permissive one.
func WithMemory(m *Memory) Option {
	return func(s *Simulator) { s.memory = m }
}

// NewSimulator constructs a functional simulator with a fresh register
// file and, unless overridden via WithMemory, a default permissive 4 MiB
// memory.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		regFile:         NewRegFile(),
		fpFile:          NewFPRegFile(),
		memory:          NewMemory(4 * 1024 * 1024),
		decoder:         insts.NewDecoder(),
		stdout:          os.Stdout,
		stderr:          os.Stderr,
		stdin:           os.Stdin,
		maxInstructions: defaultInstructionBudget,
		pcHistogram:     make(map[uint32]uint32),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wireUnits()
	if s.syscallHandler == nil {
		s.syscallHandler = NewDefaultSyscallHandler(s.regFile, s.fpFile, s.memory, s.stdin, s.stdout, s.stderr)
	}
	return s
}

func (s *Simulator) wireUnits() {
	s.alu = NewALU(s.regFile)
	s.fpu = NewFPU(s.fpFile)
	s.lsu = NewLoadStoreUnit(s.regFile, s.fpFile, s.memory)
	s.branchUnit = NewBranchUnit(s.regFile)
	s.fpBranch = NewFPBranchUnit(s.fpFile)
}

// RegFile returns the integer register file.
func (s *Simulator) RegFile() *RegFile { return s.regFile }

// FPRegFile returns the floating point register file.
func (s *Simulator) FPRegFile() *FPRegFile { return s.fpFile }

// Memory returns the backing memory.
func (s *Simulator) Memory() *Memory { return s.memory }

// InstructionCount returns the number of instructions executed so far.
func (s *Simulator) InstructionCount() uint64 { return s.instructionCount }

// SetPC sets the program counter, used by loaders to set the entry point.
func (s *Simulator) SetPC(pc uint32) { s.regFile.PC = pc }

// PC returns the current program counter.
func (s *Simulator) PC() uint32 { return s.regFile.PC }

// Step decodes and executes exactly one instruction, returning whether a
// syscall asked the run to halt and, if so, the exit code.
func (s *Simulator) Step() (exited bool, exitCode int32, term *Exception) {
	pc := s.regFile.PC
	word, ok := s.memory.ReadWord(pc)
	if !ok {
		return false, 0, &Exception{Reason: simerr.ExecInvalidBranchTarget.String(), PC: pc, Address: pc, HasAddr: true}
	}

	instr := s.decoder.Decode(word)
	if instr.Op == insts.OpInvalid {
		return false, 0, &Exception{Reason: simerr.ExecInvalidInstruction.String(), PC: pc}
	}

	s.instructionCount++
	s.recordPC(pc)

	nextPC := pc + 4
	selfJump := false

	switch instr.Op {
	case insts.OpNop:
		// no-op

	case insts.OpAdd, insts.OpAddu:
		s.alu.Add(instr.Rd, instr.Rs, instr.Rt)
	case insts.OpSub, insts.OpSubu:
		s.alu.Sub(instr.Rd, instr.Rs, instr.Rt)
	case insts.OpAnd:
		s.alu.And(instr.Rd, instr.Rs, instr.Rt)
	case insts.OpOr:
		s.alu.Or(instr.Rd, instr.Rs, instr.Rt)
	case insts.OpXor:
		s.alu.Xor(instr.Rd, instr.Rs, instr.Rt)
	case insts.OpNor:
		s.alu.Nor(instr.Rd, instr.Rs, instr.Rt)
	case insts.OpSlt:
		s.alu.Slt(instr.Rd, instr.Rs, instr.Rt)
	case insts.OpSltu:
		s.alu.Sltu(instr.Rd, instr.Rs, instr.Rt)
	case insts.OpSll:
		s.alu.Sll(instr.Rd, instr.Rt, instr.Shamt)
	case insts.OpSrl:
		s.alu.Srl(instr.Rd, instr.Rt, instr.Shamt)
	case insts.OpSra:
		s.alu.Sra(instr.Rd, instr.Rt, instr.Shamt)
	case insts.OpSllv:
		s.alu.Sllv(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpSrlv:
		s.alu.Srlv(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpSrav:
		s.alu.Srav(instr.Rd, instr.Rt, instr.Rs)

	case insts.OpAddi, insts.OpAddiu:
		s.alu.Addi(instr.Rt, instr.Rs, instr.Imm)
	case insts.OpAndi:
		s.alu.Andi(instr.Rt, instr.Rs, instr.Imm)
	case insts.OpOri:
		s.alu.Ori(instr.Rt, instr.Rs, instr.Imm)
	case insts.OpXori:
		s.alu.Xori(instr.Rt, instr.Rs, instr.Imm)
	case insts.OpSlti:
		s.alu.Slti(instr.Rt, instr.Rs, instr.Imm)
	case insts.OpSltiu:
		s.alu.Sltiu(instr.Rt, instr.Rs, instr.Imm)
	case insts.OpLui:
		s.alu.Lui(instr.Rt, instr.Imm)

	case insts.OpLw:
		if !s.lsu.LW(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}
	case insts.OpLh:
		if !s.lsu.LH(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}
	case insts.OpLhu:
		if !s.lsu.LHU(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}
	case insts.OpLb:
		if !s.lsu.LB(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}
	case insts.OpLbu:
		if !s.lsu.LBU(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}
	case insts.OpSw:
		if !s.lsu.SW(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}
	case insts.OpSh:
		if !s.lsu.SH(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}
	case insts.OpSb:
		if !s.lsu.SB(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}
	case insts.OpLwc1:
		if !s.lsu.LWC1(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}
	case insts.OpSwc1:
		if !s.lsu.SWC1(instr.Rt, instr.Rs, instr.Imm) {
			return false, 0, s.memFault(pc, instr)
		}

	case insts.OpBeq:
		if t, taken := s.branchUnit.Beq(pc, instr.Rs, instr.Rt, instr.Imm); taken {
			nextPC, selfJump = t, t == pc
		}
	case insts.OpBne:
		if t, taken := s.branchUnit.Bne(pc, instr.Rs, instr.Rt, instr.Imm); taken {
			nextPC, selfJump = t, t == pc
		}
	case insts.OpBlez:
		if t, taken := s.branchUnit.Blez(pc, instr.Rs, instr.Imm); taken {
			nextPC, selfJump = t, t == pc
		}
	case insts.OpBgtz:
		if t, taken := s.branchUnit.Bgtz(pc, instr.Rs, instr.Imm); taken {
			nextPC, selfJump = t, t == pc
		}
	case insts.OpBltz:
		if t, taken := s.branchUnit.Bltz(pc, instr.Rs, instr.Imm); taken {
			nextPC, selfJump = t, t == pc
		}
	case insts.OpBgez:
		if t, taken := s.branchUnit.Bgez(pc, instr.Rs, instr.Imm); taken {
			nextPC, selfJump = t, t == pc
		}
	case insts.OpJ:
		nextPC = s.branchUnit.J(pc, instr.Target)
		selfJump = nextPC == pc
	case insts.OpJal:
		target, link := s.branchUnit.Jal(pc, instr.Target)
		s.regFile.Write(31, link)
		nextPC, selfJump = target, target == pc
	case insts.OpJr:
		nextPC = s.branchUnit.Jr(instr.Rs)
		selfJump = nextPC == pc
	case insts.OpJalr:
		target, link := s.branchUnit.Jalr(pc, instr.Rs)
		s.regFile.Write(instr.Rd, link)
		nextPC, selfJump = target, target == pc

	case insts.OpMult:
		s.alu.Mult(instr.Rs, instr.Rt)
	case insts.OpMultu:
		s.alu.Multu(instr.Rs, instr.Rt)
	case insts.OpDiv:
		s.alu.Div(instr.Rs, instr.Rt)
	case insts.OpDivu:
		s.alu.Divu(instr.Rs, instr.Rt)
	case insts.OpMfhi:
		s.alu.Mfhi(instr.Rd)
	case insts.OpMflo:
		s.alu.Mflo(instr.Rd)
	case insts.OpMthi:
		s.alu.Mthi(instr.Rs)
	case insts.OpMtlo:
		s.alu.Mtlo(instr.Rs)

	case insts.OpSyscall:
		result := s.syscallHandler.Handle()
		if result.Exited {
			return true, result.ExitCode, nil
		}

	case insts.OpBreak:
		return false, 0, &Exception{Reason: "BREAK", PC: pc}

	case insts.OpAddS:
		s.fpu.AddS(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpSubS:
		s.fpu.SubS(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpMulS:
		s.fpu.MulS(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpDivS:
		s.fpu.DivS(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpAbsS:
		s.fpu.AbsS(instr.Rd, instr.Rt)
	case insts.OpNegS:
		s.fpu.NegS(instr.Rd, instr.Rt)
	case insts.OpMovS:
		s.fpu.MovS(instr.Rd, instr.Rt)
	case insts.OpCvtSW:
		s.fpu.CvtSW(instr.Rd, instr.Rt)
	case insts.OpCvtWS:
		s.fpu.CvtWS(instr.Rd, instr.Rt)
	case insts.OpCEqS:
		s.fpu.CEqS(instr.Rt, instr.Rs)
	case insts.OpCLtS:
		s.fpu.CLtS(instr.Rt, instr.Rs)
	case insts.OpCLeS:
		s.fpu.CLeS(instr.Rt, instr.Rs)
	case insts.OpBc1t:
		if t, taken := s.fpBranch.Bc1t(pc, instr.Imm); taken {
			nextPC, selfJump = t, t == pc
		}
	case insts.OpBc1f:
		if t, taken := s.fpBranch.Bc1f(pc, instr.Imm); taken {
			nextPC, selfJump = t, t == pc
		}

	default:
		return false, 0, &Exception{Reason: simerr.ExecInvalidInstruction.String(), PC: pc}
	}

	if selfJump {
		return false, 0, &Exception{Reason: "jump back to self", PC: pc}
	}

	s.regFile.PC = nextPC
	return false, 0, nil
}

func (s *Simulator) memFault(pc uint32, instr insts.Instruction) *Exception {
	addr := uint32(int64(s.regFile.Read(instr.Rs)) + int64(instr.Imm))
	return &Exception{Reason: simerr.MemOutOfBounds.String(), PC: pc, Address: addr, HasAddr: true}
}

func (s *Simulator) recordPC(pc uint32) {
	if _, ok := s.pcHistogram[pc]; !ok && len(s.pcHistogram) >= pcHistogramCap {
		return
	}
	s.pcHistogram[pc]++
}

func (s *Simulator) topPCs(n int) []PCFrequency {
	freqs := make([]PCFrequency, 0, len(s.pcHistogram))
	for pc, count := range s.pcHistogram {
		freqs = append(freqs, PCFrequency{PC: pc, Count: count})
	}
	for i := 1; i < len(freqs); i++ {
		for j := i; j > 0 && freqs[j].Count > freqs[j-1].Count; j-- {
			freqs[j], freqs[j-1] = freqs[j-1], freqs[j]
		}
	}
	if len(freqs) > n {
		freqs = freqs[:n]
	}
	return freqs
}

// Run repeatedly steps the simulator until a terminal condition holds:
// an InvalidInstruction decode, a sustained run of Nop
// decodes after the program has made progress (falling off the end into
// zero-filled memory), the instruction budget is exhausted, or control
// jumps back to the instruction that is currently executing.
func (s *Simulator) Run() RunResult {
	var consecutiveNops uint64

	for {
		if s.instructionCount >= s.maxInstructions {
			return RunResult{
				Exception:    &Exception{Reason: "instruction budget exhausted", PC: s.regFile.PC},
				Instructions: s.instructionCount,
				TopPCs:       s.topPCs(8),
			}
		}

		pcBefore := s.regFile.PC
		word, ok := s.memory.ReadWord(pcBefore)
		isNop := ok && word == 0

		exited, exitCode, term := s.Step()
		if exited {
			return RunResult{Exited: true, ExitCode: exitCode, Instructions: s.instructionCount}
		}
		if term != nil {
			return RunResult{Exception: term, Instructions: s.instructionCount, TopPCs: s.topPCs(8)}
		}

		if isNop && s.instructionCount >= tailNopThreshold {
			consecutiveNops++
		} else {
			consecutiveNops = 0
		}
		if consecutiveNops >= tailNopThreshold {
			return RunResult{
				Exception:    &Exception{Reason: "program tail (sustained NOP)", PC: pcBefore},
				Instructions: s.instructionCount,
			}
		}
	}
}
