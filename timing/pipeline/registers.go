// Package pipeline provides a 5-stage in-order pipeline model for
// cycle-accurate timing simulation of the MIPS-I-derived core.
package pipeline

import "github.com/vmips-go/vmips/insts"

// IFIDRegister holds state between Fetch and Decode stages.
type IFIDRegister struct {
	Valid bool
	PC    uint32
	Word  uint32
}

// IDEXRegister holds state between Decode and Execute stages.
type IDEXRegister struct {
	Valid bool
	PC    uint32
	Instr insts.Instruction

	RsValue uint32
	RtValue uint32

	RegWrite bool
	MemRead  bool
	MemWrite bool
	IsBranch bool

	CyclesRemaining uint64
}

// EXMEMRegister holds state between Execute and Memory stages.
type EXMEMRegister struct {
	Valid bool
	PC    uint32
	Instr insts.Instruction

	ALUResult  uint32
	StoreValue uint32

	RegWrite bool
	MemRead  bool
	MemWrite bool

	BranchTaken  bool
	BranchTarget uint32

	CyclesRemaining uint64
}

// MEMWBRegister holds state between Memory and Writeback stages.
type MEMWBRegister struct {
	Valid bool
	PC    uint32
	Instr insts.Instruction

	ALUResult uint32
	MemData   uint32

	RegWrite bool
	MemToReg bool

	CyclesRemaining uint64
}

// Clear resets the IFID register.
func (r *IFIDRegister) Clear() { *r = IFIDRegister{} }

// Clear resets the IDEX register.
func (r *IDEXRegister) Clear() { *r = IDEXRegister{} }

// Clear resets the EXMEM register.
func (r *EXMEMRegister) Clear() { *r = EXMEMRegister{} }

// Clear resets the MEMWB register.
func (r *MEMWBRegister) Clear() { *r = MEMWBRegister{} }

// destReg returns the architectural register this latch's instruction
// writes, and whether it writes one at all (HI/LO-only destinations like
// MULT/DIV are reported separately via WritesHiLo).
func destReg(instr insts.Instruction) (uint8, bool) {
	return instr.DestinationRegister()
}
