package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds the per-functional-unit-class latency values used by
// both the in-order pipeline and the Tomasulo core, following the
// shared functional-unit table.
type TimingConfig struct {
	// ALULatency is the Integer ALU latency (add/sub/and/or/shift/...).
	// Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the Branch unit latency (BEQ/BNE/J/JAL/JR/...).
	// Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// BranchMispredictPenalty is the configured misprediction cost in
	// cycles. Default: 3 cycles (the classic 5-stage pipeline's IF/ID/EX
	// flush depth). Neither timing engine reads it: the pipeline's flush
	// and the Tomasulo recovery add no cycles of their own.
	BranchMispredictPenalty uint64 `json:"branch_mispredict_penalty"`

	// LoadStoreLatency is the Load/Store unit latency (LW/SW/LB/SB/...).
	// Default: 2 cycles.
	LoadStoreLatency uint64 `json:"load_store_latency"`

	// FPAddLatency is the FP Adder latency (ADD.S/SUB.S). Default: 3.
	FPAddLatency uint64 `json:"fp_add_latency"`

	// FPMulLatency is the FP Multiplier latency (MUL.S/MULT/MULTU).
	// Default: 5 cycles.
	FPMulLatency uint64 `json:"fp_mul_latency"`

	// FPDivLatency is the FP Divider latency (DIV.S/DIV/DIVU).
	// Default: 10 cycles.
	FPDivLatency uint64 `json:"fp_div_latency"`

	// SyscallLatency is the latency charged for a SYSCALL instruction.
	// Default: 1 cycle (the handler itself runs off the timing model).
	SyscallLatency uint64 `json:"syscall_latency"`
}

// DefaultTimingConfig returns the standard functional-unit latencies.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:              1,
		BranchLatency:           1,
		BranchMispredictPenalty: 3,
		LoadStoreLatency:        2,
		FPAddLatency:            3,
		FPMulLatency:            5,
		FPDivLatency:            10,
		SyscallLatency:          1,
	}
}

// LoadConfig loads a TimingConfig from a JSON file, starting from the
// defaults so a partial file only overrides what it specifies.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}
	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}
	return nil
}

// Validate checks that every functional-unit latency and the syscall
// latency are positive. It does not check BranchMispredictPenalty or the
// relative ordering of the latencies.
func (c *TimingConfig) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.LoadStoreLatency == 0 {
		return fmt.Errorf("load_store_latency must be > 0")
	}
	if c.FPAddLatency == 0 || c.FPMulLatency == 0 || c.FPDivLatency == 0 {
		return fmt.Errorf("fp_*_latency values must be > 0")
	}
	if c.SyscallLatency == 0 {
		return fmt.Errorf("syscall_latency must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	cp := *c
	return &cp
}
