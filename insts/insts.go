// Package insts defines the instruction set: a tagged variant type covering
// the supported MIPS-I-derived opcodes, and the pure decoder that turns a
// 32-bit instruction word into one.
//
// The decoder is the single source of truth for instruction semantics: every
// other package (the functional emulator, the in-order pipeline, the
// Tomasulo core) decodes through insts.Decoder and branches on insts.Op
// rather than re-deriving bit fields from the raw word.
package insts

// Op identifies the operation an Instruction performs.
type Op int

const (
	// OpNop is the all-zero encoding.
	OpNop Op = iota
	OpInvalid

	// R-type arithmetic/logical.
	OpAdd
	OpAddu
	OpSub
	OpSubu
	OpAnd
	OpOr
	OpXor
	OpNor
	OpSlt
	OpSltu
	OpSll
	OpSrl
	OpSra
	OpSllv
	OpSrlv
	OpSrav

	// I-type arithmetic/logical.
	OpAddi
	OpAddiu
	OpAndi
	OpOri
	OpXori
	OpSlti
	OpSltiu
	OpLui

	// Loads/stores.
	OpLw
	OpLh
	OpLhu
	OpLb
	OpLbu
	OpSw
	OpSh
	OpSb

	// Control flow.
	OpBeq
	OpBne
	OpBlez
	OpBgtz
	OpBltz
	OpBgez
	OpJ
	OpJal
	OpJr
	OpJalr

	// Multiply/divide and HI/LO moves.
	OpMult
	OpMultu
	OpDiv
	OpDivu
	OpMfhi
	OpMflo
	OpMthi
	OpMtlo

	// Syscall / break.
	OpSyscall
	OpBreak

	// Floating point (single precision subset).
	OpAddS
	OpSubS
	OpMulS
	OpDivS
	OpAbsS
	OpNegS
	OpMovS
	OpCvtSW
	OpCvtWS
	OpCEqS
	OpCLtS
	OpCLeS
	OpLwc1
	OpSwc1
	OpBc1t
	OpBc1f
)

// String returns a mnemonic for the operation, used in diagnostics.
func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "UNKNOWN"
}

var opNames = map[Op]string{
	OpNop: "NOP", OpInvalid: "INVALID",
	OpAdd: "ADD", OpAddu: "ADDU", OpSub: "SUB", OpSubu: "SUBU",
	OpAnd: "AND", OpOr: "OR", OpXor: "XOR", OpNor: "NOR",
	OpSlt: "SLT", OpSltu: "SLTU",
	OpSll: "SLL", OpSrl: "SRL", OpSra: "SRA",
	OpSllv: "SLLV", OpSrlv: "SRLV", OpSrav: "SRAV",
	OpAddi: "ADDI", OpAddiu: "ADDIU",
	OpAndi: "ANDI", OpOri: "ORI", OpXori: "XORI",
	OpSlti: "SLTI", OpSltiu: "SLTIU", OpLui: "LUI",
	OpLw: "LW", OpLh: "LH", OpLhu: "LHU", OpLb: "LB", OpLbu: "LBU",
	OpSw: "SW", OpSh: "SH", OpSb: "SB",
	OpBeq: "BEQ", OpBne: "BNE", OpBlez: "BLEZ", OpBgtz: "BGTZ",
	OpBltz: "BLTZ", OpBgez: "BGEZ",
	OpJ: "J", OpJal: "JAL", OpJr: "JR", OpJalr: "JALR",
	OpMult: "MULT", OpMultu: "MULTU", OpDiv: "DIV", OpDivu: "DIVU",
	OpMfhi: "MFHI", OpMflo: "MFLO", OpMthi: "MTHI", OpMtlo: "MTLO",
	OpSyscall: "SYSCALL", OpBreak: "BREAK",
	OpAddS: "ADD.S", OpSubS: "SUB.S", OpMulS: "MUL.S", OpDivS: "DIV.S",
	OpAbsS: "ABS.S", OpNegS: "NEG.S", OpMovS: "MOV.S",
	OpCvtSW: "CVT.S.W", OpCvtWS: "CVT.W.S",
	OpCEqS: "C.EQ.S", OpCLtS: "C.LT.S", OpCLeS: "C.LE.S",
	OpLwc1: "LWC1", OpSwc1: "SWC1", OpBc1t: "BC1T", OpBc1f: "BC1F",
}

// Class groups operations by how they are dispatched downstream (functional
// unit selection in the Tomasulo core, hazard classification in the
// pipeline).
type Class int

const (
	ClassNone Class = iota
	ClassIntALU
	ClassFPAdd
	ClassFPMul
	ClassFPDiv
	ClassLoadStore
	ClassBranch
)

// ClassOf returns the functional classification for an operation, matching
// the functional-unit table: Integer ALU, FP Adder, FP Multiplier,
// FP Divider, Load/Store, Branch.
func ClassOf(op Op) Class {
	switch op {
	case OpAdd, OpAddu, OpSub, OpSubu, OpAnd, OpOr, OpXor, OpNor,
		OpSlt, OpSltu, OpSll, OpSrl, OpSra, OpSllv, OpSrlv, OpSrav,
		OpAddi, OpAddiu, OpAndi, OpOri, OpXori, OpSlti, OpSltiu, OpLui,
		OpMfhi, OpMflo, OpMthi, OpMtlo:
		return ClassIntALU
	case OpAddS, OpSubS:
		return ClassFPAdd
	case OpMulS, OpMult, OpMultu:
		return ClassFPMul
	case OpDivS, OpDiv, OpDivu:
		return ClassFPDiv
	case OpLw, OpLh, OpLhu, OpLb, OpLbu, OpSw, OpSh, OpSb, OpLwc1, OpSwc1:
		return ClassLoadStore
	case OpBeq, OpBne, OpBlez, OpBgtz, OpBltz, OpBgez, OpJ, OpJal, OpJr, OpJalr,
		OpBc1t, OpBc1f:
		return ClassBranch
	default:
		return ClassNone
	}
}

// Instruction is an immutable, cheap-to-copy tagged variant: exactly the
// fields needed for Op are meaningful, the rest are zero.
type Instruction struct {
	Op Op

	Rs, Rt, Rd uint8
	Shamt      uint8

	// Imm is the raw 16-bit immediate field, sign- or zero-extended into a
	// 32-bit value according to Op at decode time (ADDI/ADDIU/SLTI/SLTIU/
	// loads/stores/branches sign-extend; ANDI/ORI/XORI zero-extend; LUI
	// keeps the raw 16 bits, and the shift left by 16 happens at execution).
	Imm int32

	// Target is the 26-bit jump target (J/JAL), already shifted left 2.
	Target uint32

	// Raw is the original 32-bit word, kept for diagnostics.
	Raw uint32
}

// SourceRegisters returns the GPR indices this instruction reads, in no
// particular order, excluding the implicit HI/LO pair.
func (i Instruction) SourceRegisters() []uint8 {
	switch i.Op {
	case OpAdd, OpAddu, OpSub, OpSubu, OpAnd, OpOr, OpXor, OpNor,
		OpSlt, OpSltu, OpSllv, OpSrlv, OpSrav,
		OpMult, OpMultu, OpDiv, OpDivu:
		return []uint8{i.Rs, i.Rt}
	case OpSll, OpSrl, OpSra:
		return []uint8{i.Rt}
	case OpAddi, OpAddiu, OpAndi, OpOri, OpXori, OpSlti, OpSltiu,
		OpLw, OpLh, OpLhu, OpLb, OpLbu, OpLwc1, OpJr, OpMthi, OpMtlo:
		return []uint8{i.Rs}
	case OpSw, OpSh, OpSb, OpSwc1:
		return []uint8{i.Rs, i.Rt}
	case OpBeq, OpBne:
		return []uint8{i.Rs, i.Rt}
	case OpBlez, OpBgtz, OpBltz, OpBgez:
		return []uint8{i.Rs}
	case OpJalr:
		return []uint8{i.Rs}
	default:
		return nil
	}
}

// DestinationRegister returns the GPR this instruction writes, if any.
// HI/LO-only destinations (MULT/DIV/MTHI/MTLO) are not reported here; callers
// that care about the HI/LO pair use WritesHiLo/ReadsHiLo.
func (i Instruction) DestinationRegister() (uint8, bool) {
	switch i.Op {
	case OpAdd, OpAddu, OpSub, OpSubu, OpAnd, OpOr, OpXor, OpNor,
		OpSlt, OpSltu, OpSll, OpSrl, OpSra, OpSllv, OpSrlv, OpSrav,
		OpMfhi, OpMflo:
		return i.Rd, true
	case OpAddi, OpAddiu, OpAndi, OpOri, OpXori, OpSlti, OpSltiu, OpLui,
		OpLw, OpLh, OpLhu, OpLb, OpLbu:
		return i.Rt, true
	case OpJal:
		return 31, true
	case OpJalr:
		return i.Rd, true
	default:
		return 0, false
	}
}

// WritesHiLo reports whether the instruction writes the HI/LO register pair.
func (i Instruction) WritesHiLo() bool {
	switch i.Op {
	case OpMult, OpMultu, OpDiv, OpDivu, OpMthi, OpMtlo:
		return true
	default:
		return false
	}
}

// ReadsHiLo reports whether the instruction reads the HI/LO register pair.
func (i Instruction) ReadsHiLo() bool {
	switch i.Op {
	case OpMfhi, OpMflo:
		return true
	default:
		return false
	}
}

// IsBranchOrJump reports whether this instruction can redirect the program
// counter.
func (i Instruction) IsBranchOrJump() bool {
	return ClassOf(i.Op) == ClassBranch
}

// IsMemoryAccess reports whether this instruction touches Memory.
func (i Instruction) IsMemoryAccess() bool {
	switch i.Op {
	case OpLw, OpLh, OpLhu, OpLb, OpLbu, OpSw, OpSh, OpSb, OpLwc1, OpSwc1:
		return true
	default:
		return false
	}
}

// IsStore reports whether this instruction writes Memory (as opposed to
// reading it).
func (i Instruction) IsStore() bool {
	switch i.Op {
	case OpSw, OpSh, OpSb, OpSwc1:
		return true
	default:
		return false
	}
}

// ImmediateTarget returns the branch/jump target encoded in the instruction
// relative to pc (the address of this instruction), if one can be computed
// purely from the encoding (i.e. not a register-indirect jump).
func (i Instruction) ImmediateTarget(pc uint32) (uint32, bool) {
	switch i.Op {
	case OpBeq, OpBne, OpBlez, OpBgtz, OpBltz, OpBgez, OpBc1t, OpBc1f:
		return uint32(int64(pc) + 4 + int64(i.Imm)*4), true
	case OpJ, OpJal:
		return ((pc + 4) & 0xF0000000) | i.Target, true
	default:
		return 0, false
	}
}

// FunctionalClass returns the functional-unit class for this instruction,
// used by the Tomasulo core to pick a unit and latency.
func (i Instruction) FunctionalClass() Class {
	return ClassOf(i.Op)
}
