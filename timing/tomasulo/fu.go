package tomasulo

import "github.com/vmips-go/vmips/insts"

// FunctionalUnit executes one dispatched station's instruction over a
// fixed number of cycles. The pool is typed: an integer add never occupies
// the divider, and a ready station waits until a unit of its class is
// idle.
type FunctionalUnit struct {
	Type            insts.Class
	Busy            bool
	StationID       int
	CyclesRemaining uint64
}

// NewFunctionalUnit creates an idle unit of the given class.
func NewFunctionalUnit(class insts.Class) *FunctionalUnit {
	return &FunctionalUnit{Type: class, StationID: -1}
}

// Start seeds the unit with a dispatched station and its latency.
func (u *FunctionalUnit) Start(stationID int, latency uint64) {
	u.Busy = true
	u.StationID = stationID
	u.CyclesRemaining = latency
}

// Tick advances the unit by one cycle and reports whether its computation
// has finished. A finished unit stays busy until Reset: if the CDB is
// already claimed this cycle, the result waits in the unit for a later
// broadcast slot.
func (u *FunctionalUnit) Tick() bool {
	if !u.Busy {
		return false
	}
	if u.CyclesRemaining > 0 {
		u.CyclesRemaining--
	}
	return u.CyclesRemaining == 0
}

// Reset returns the unit to the idle pool.
func (u *FunctionalUnit) Reset() {
	u.Busy = false
	u.StationID = -1
	u.CyclesRemaining = 0
}

// defaultUnitPool is the functional-unit mix the processor is built with:
// two integer ALUs and one each of the FP adder, FP multiplier, FP
// divider, load/store unit, and branch unit.
func defaultUnitPool() []*FunctionalUnit {
	return []*FunctionalUnit{
		NewFunctionalUnit(insts.ClassIntALU),
		NewFunctionalUnit(insts.ClassIntALU),
		NewFunctionalUnit(insts.ClassFPAdd),
		NewFunctionalUnit(insts.ClassFPMul),
		NewFunctionalUnit(insts.ClassFPDiv),
		NewFunctionalUnit(insts.ClassLoadStore),
		NewFunctionalUnit(insts.ClassBranch),
	}
}

// unitClassFor maps an instruction to the unit class that executes it.
// Instructions outside the table (NOP, SYSCALL, BREAK) occupy an integer
// ALU slot for their single cycle.
func unitClassFor(instr insts.Instruction) insts.Class {
	if class := instr.FunctionalClass(); class != insts.ClassNone {
		return class
	}
	return insts.ClassIntALU
}
