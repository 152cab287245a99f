package emu

// BranchUnit implements control transfer: compare-and-branch, unconditional
// jumps, and register-indirect jumps. Branches compare register contents
// directly; there is no condition-flag state to consult.
type BranchUnit struct {
	regFile *RegFile
}

// NewBranchUnit creates a BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// branchTarget computes the PC-relative target: PC+4 plus the sign-extended
// immediate scaled by 4 (word-aligned branch displacement).
func branchTarget(pc uint32, imm int32) uint32 {
	return uint32(int64(pc) + 4 + int64(imm)*4)
}

// Beq evaluates BEQ: branch if rs == rt.
func (b *BranchUnit) Beq(pc uint32, rs, rt uint8, imm int32) (uint32, bool) {
	if b.regFile.Read(rs) == b.regFile.Read(rt) {
		return branchTarget(pc, imm), true
	}
	return 0, false
}

// Bne evaluates BNE: branch if rs != rt.
func (b *BranchUnit) Bne(pc uint32, rs, rt uint8, imm int32) (uint32, bool) {
	if b.regFile.Read(rs) != b.regFile.Read(rt) {
		return branchTarget(pc, imm), true
	}
	return 0, false
}

// Blez evaluates BLEZ: branch if rs <= 0 (signed).
func (b *BranchUnit) Blez(pc uint32, rs uint8, imm int32) (uint32, bool) {
	if int32(b.regFile.Read(rs)) <= 0 {
		return branchTarget(pc, imm), true
	}
	return 0, false
}

// Bgtz evaluates BGTZ: branch if rs > 0 (signed).
func (b *BranchUnit) Bgtz(pc uint32, rs uint8, imm int32) (uint32, bool) {
	if int32(b.regFile.Read(rs)) > 0 {
		return branchTarget(pc, imm), true
	}
	return 0, false
}

// Bltz evaluates BLTZ: branch if rs < 0 (signed).
func (b *BranchUnit) Bltz(pc uint32, rs uint8, imm int32) (uint32, bool) {
	if int32(b.regFile.Read(rs)) < 0 {
		return branchTarget(pc, imm), true
	}
	return 0, false
}

// Bgez evaluates BGEZ: branch if rs >= 0 (signed).
func (b *BranchUnit) Bgez(pc uint32, rs uint8, imm int32) (uint32, bool) {
	if int32(b.regFile.Read(rs)) >= 0 {
		return branchTarget(pc, imm), true
	}
	return 0, false
}

// J computes J's target: the region-preserving jump (top 4 bits of PC+4
// kept, 26-bit target already shifted left 2 by the decoder).
func (b *BranchUnit) J(pc uint32, target uint32) uint32 {
	return (pc+4)&0xf0000000 | target
}

// Jal computes JAL's target like J, and returns the link address to be
// written to $ra by the caller. Without a delay slot the instruction a
// callee returns to is the one immediately after the call, at PC+4.
func (b *BranchUnit) Jal(pc uint32, target uint32) (newPC uint32, link uint32) {
	return b.J(pc, target), pc + 4
}

// Jr returns the register-indirect target for JR.
func (b *BranchUnit) Jr(rs uint8) uint32 {
	return b.regFile.Read(rs)
}

// Jalr returns the register-indirect target and link address for JALR.
func (b *BranchUnit) Jalr(pc uint32, rs uint8) (newPC uint32, link uint32) {
	return b.regFile.Read(rs), pc + 4
}

// FPBranchUnit implements BC1T/BC1F, which branch on the FP condition code
// rather than a GPR comparison.
type FPBranchUnit struct {
	fpFile *FPRegFile
}

// NewFPBranchUnit creates an FPBranchUnit over the given FP register file.
func NewFPBranchUnit(fpFile *FPRegFile) *FPBranchUnit {
	return &FPBranchUnit{fpFile: fpFile}
}

// Bc1t branches if the FP condition code is set.
func (b *FPBranchUnit) Bc1t(pc uint32, imm int32) (uint32, bool) {
	if b.fpFile.CC {
		return branchTarget(pc, imm), true
	}
	return 0, false
}

// Bc1f branches if the FP condition code is clear.
func (b *FPBranchUnit) Bc1f(pc uint32, imm int32) (uint32, bool) {
	if !b.fpFile.CC {
		return branchTarget(pc, imm), true
	}
	return 0, false
}
