// Package latency provides the per-instruction-class cycle counts the
// in-order pipeline and the Tomasulo core both consult: one stage latency
// per functional-unit class, configurable via TimingConfig and persisted
// as JSON so a --config file can override any subset of them.
package latency

import "github.com/vmips-go/vmips/insts"

// Table resolves an instruction to its functional-unit latency.
type Table struct {
	config *TimingConfig
}

// NewTable creates a Table with default latency values.
func NewTable() *Table {
	return &Table{config: DefaultTimingConfig()}
}

// NewTableWithConfig creates a Table backed by a caller-supplied config,
// e.g. one loaded from a --config JSON file.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{config: config}
}

// Config returns the underlying TimingConfig.
func (t *Table) Config() *TimingConfig { return t.config }

// GetLatency returns the cycle count for op's functional-unit class, per
// the functional-unit table: Integer ALU 1, FP Adder 3, FP
// Multiplier 5, FP Divider 10, Load/Store 2, Branch 1. The in-order
// pipeline's Execute stage uses the same table.
func (t *Table) GetLatency(op insts.Op) uint64 {
	if op == insts.OpSyscall {
		return t.config.SyscallLatency
	}
	switch insts.ClassOf(op) {
	case insts.ClassIntALU:
		return t.config.ALULatency
	case insts.ClassFPAdd:
		return t.config.FPAddLatency
	case insts.ClassFPMul:
		return t.config.FPMulLatency
	case insts.ClassFPDiv:
		return t.config.FPDivLatency
	case insts.ClassLoadStore:
		return t.config.LoadStoreLatency
	case insts.ClassBranch:
		return t.config.BranchLatency
	default:
		return 1
	}
}

// IsMemoryOp reports whether op is a load or store.
func IsMemoryOp(op insts.Op) bool {
	return insts.ClassOf(op) == insts.ClassLoadStore
}

// IsBranchOp reports whether op is a branch or jump.
func IsBranchOp(op insts.Op) bool {
	return insts.ClassOf(op) == insts.ClassBranch
}
