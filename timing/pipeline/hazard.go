package pipeline

import "github.com/vmips-go/vmips/insts"

// HazardUnit detects data, control, and structural hazards across the
// live pipeline stages and decides on forwarding versus stalling, per the
// fixed order: data hazards first, then control, then structural.
type HazardUnit struct{}

// NewHazardUnit creates a new hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// ForwardSource identifies where a forwarded operand came from.
type ForwardSource uint8

const (
	ForwardNone ForwardSource = iota
	ForwardFromEXMEM
	ForwardFromMEMWB
)

// Forwarding holds the forwarding decision for both ID/EX source operands.
type Forwarding struct {
	Rs ForwardSource
	Rt ForwardSource
}

// sourceRegs returns instr's live source registers (register 0 excluded:
// it is wired to the constant zero and never a hazard source).
func sourceRegs(instr insts.Instruction) []uint8 {
	var regs []uint8
	for _, r := range instr.SourceRegisters() {
		if r != 0 {
			regs = append(regs, r)
		}
	}
	return regs
}

// readsFPRegisters reports whether op consumes the floating point file,
// which the latch-based forwarding paths do not cover.
func readsFPRegisters(op insts.Op) bool {
	switch op {
	case insts.OpAddS, insts.OpSubS, insts.OpMulS, insts.OpDivS,
		insts.OpAbsS, insts.OpNegS, insts.OpMovS,
		insts.OpCvtSW, insts.OpCvtWS,
		insts.OpCEqS, insts.OpCLtS, insts.OpCLeS,
		insts.OpSwc1:
		return true
	default:
		return false
	}
}

func contains(regs []uint8, r uint8) bool {
	for _, x := range regs {
		if x == r {
			return true
		}
	}
	return false
}

// DetectForwarding implements the RAW remedy: for each source register of
// the instruction in ID/EX, prefer the most recent producer (EX/MEM, then
// MEM/WB) whose destination matches.
func (h *HazardUnit) DetectForwarding(idex *IDEXRegister, exmem *EXMEMRegister, memwb *MEMWBRegister) Forwarding {
	var fw Forwarding
	if !idex.Valid {
		return fw
	}

	rs, rt := idex.Instr.Rs, idex.Instr.Rt
	srcs := sourceRegs(idex.Instr)

	resolve := func(reg uint8) ForwardSource {
		if reg == 0 || !contains(srcs, reg) {
			return ForwardNone
		}
		if exmem.Valid && exmem.RegWrite {
			if d, ok := destReg(exmem.Instr); ok && d == reg {
				return ForwardFromEXMEM
			}
		}
		if memwb.Valid && memwb.RegWrite {
			if d, ok := destReg(memwb.Instr); ok && d == reg {
				return ForwardFromMEMWB
			}
		}
		return ForwardNone
	}

	fw.Rs = resolve(rs)
	fw.Rt = resolve(rt)
	return fw
}

// ForwardedValue resolves source to its forwarded value, falling back to
// the value ID/EX already captured from the register file.
func (h *HazardUnit) ForwardedValue(source ForwardSource, original uint32, exmem *EXMEMRegister, memwb *MEMWBRegister) uint32 {
	switch source {
	case ForwardFromEXMEM:
		return exmem.resultValue()
	case ForwardFromMEMWB:
		return memwb.resultValue()
	default:
		return original
	}
}

// resultValue returns the value an EX/MEM-resident instruction will
// ultimately produce, for forwarding purposes.
func (r *EXMEMRegister) resultValue() uint32 {
	if r.Instr.IsMemoryAccess() && r.Instr.IsStore() {
		return r.StoreValue
	}
	return r.ALUResult
}

// resultValue returns the value a MEM/WB-resident instruction will
// ultimately produce, for forwarding purposes.
func (r *MEMWBRegister) resultValue() uint32 {
	if r.MemToReg {
		return r.MemData
	}
	return r.ALUResult
}

// DetectLoadUse reports a RAW hazard that forwarding cannot resolve: a
// load in ID/EX whose destination is a live source of the instruction
// still in IF/ID (not yet decoded into operand values).
func (h *HazardUnit) DetectLoadUse(loadDest uint8, nextSources []uint8) bool {
	if loadDest == 0 {
		return false
	}
	return contains(nextSources, loadDest)
}

// DetectWARWAW reports a write-after-read or write-after-write hazard:
// an earlier (younger, closer to Fetch) stage's destination collides
// with a later (older) stage's source or destination list. The in-order,
// single-issue pipeline used here never actually produces WAR/WAW
// hazards between its own stages (operands are read once at Decode and
// everything commits in program order), but the check is kept to honour
// the full hazard taxonomy and to catch the pathological case of a
// back-to-back write to the same destination racing writeback order.
func (h *HazardUnit) DetectWARWAW(earlierDest uint8, earlierValid bool, laterSources []uint8, laterDest uint8, laterDestValid bool) bool {
	if !earlierValid || earlierDest == 0 {
		return false
	}
	if contains(laterSources, earlierDest) {
		return true
	}
	return laterDestValid && laterDest == earlierDest
}

// DetectStructural reports more than one Busy stage issuing a memory
// access in the same cycle (the classic pipeline has a single-ported
// cache, so Fetch and a concurrent Memory-stage load/store collide).
func (h *HazardUnit) DetectStructural(fetchBusy bool, memStageBusy bool) bool {
	return fetchBusy && memStageBusy
}

// StallPlan describes the stall/flush actions ComputeStalls decided on.
type StallPlan struct {
	// StallFetch holds the IF/ID latch and the PC.
	StallFetch bool
	// StallDecode holds the current ID/EX contents for another cycle.
	StallDecode bool
	// BubbleDecode keeps IF/ID undecoded and injects a bubble into ID/EX
	// while the instruction already in ID/EX proceeds: the load-use
	// remedy, which must let the load advance so its data becomes
	// forwardable.
	BubbleDecode bool
	// BubbleExec injects a bubble into EX/MEM, holding the ID/EX
	// instruction in place while older stages drain.
	BubbleExec bool

	FlushFetch  bool
	FlushDecode bool
}

// ComputeStalls folds the detected hazards into a StallPlan, applying the
// standard remedies: RAW stalls only when forwarding cannot help (load-use);
// WAR/WAW always stall; control hazards flush on a taken prediction;
// structural hazards stall.
func (h *HazardUnit) ComputeStalls(loadUse, warWaw, structural, controlTaken bool) StallPlan {
	var plan StallPlan

	if loadUse {
		plan.StallFetch = true
		plan.BubbleDecode = true
	}

	if warWaw || structural {
		plan.StallFetch = true
		plan.StallDecode = true
		plan.BubbleDecode = false
		plan.BubbleExec = true
	}

	if controlTaken {
		plan.FlushFetch = true
		plan.FlushDecode = true
	}

	return plan
}
