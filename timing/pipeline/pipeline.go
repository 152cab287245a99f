// Package pipeline provides a 5-stage in-order pipeline model for
// cycle-accurate timing simulation of the MIPS-I-derived core: Fetch,
// Decode, Execute, Memory, Writeback, connected by latched pipeline
// registers with forwarding, load-use stalls, control-hazard flushes on
// taken branches (each outcome scored against a bimodal/global-history
// branch predictor), and stalls for multi-cycle functional units and cache
// misses.
package pipeline

import (
	"github.com/vmips-go/vmips/emu"
	"github.com/vmips-go/vmips/insts"
	"github.com/vmips-go/vmips/timing/cache"
	"github.com/vmips-go/vmips/timing/latency"
)

// Pipeline is a 5-stage in-order core.
type Pipeline struct {
	fetchStage     *FetchStage
	decodeStage    *DecodeStage
	executeStage   *ExecuteStage
	memoryStage    *MemoryStage
	writebackStage *WritebackStage

	hazardUnit *HazardUnit
	predictor  *BranchPredictor
	latencies  *latency.Table

	ifid  IFIDRegister
	idex  IDEXRegister
	exmem EXMEMRegister
	memwb MEMWBRegister

	nextIfid  IFIDRegister
	nextIdex  IDEXRegister
	nextExmem EXMEMRegister
	nextMemwb MEMWBRegister

	regFile *emu.RegFile
	memory  *emu.Memory
	pc      uint32

	// extraStallCycles models a multi-cycle functional unit or a cache
	// miss: the whole pipeline holds for this many additional cycles
	// before the stage that requested it is allowed to complete.
	extraStallCycles uint64

	syscallHandler emu.SyscallHandler
	halted         bool
	exitCode       int32

	stats Statistics
}

// Statistics accumulates the per-cycle hazard and throughput counters.
type Statistics struct {
	CycleCount       uint64
	InstructionCount uint64

	StallCount           uint64
	DataStallCount       uint64
	ControlStallCount    uint64
	StructuralStallCount uint64

	ForwardingUsed       uint64
	BranchMispredictions uint64
	CacheStallCycles     uint64
}

// CPI returns cycles per committed instruction.
func (s Statistics) CPI() float64 {
	if s.InstructionCount == 0 {
		return 0
	}
	return float64(s.CycleCount) / float64(s.InstructionCount)
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithSyscallHandler overrides the default syscall handler.
func WithSyscallHandler(h emu.SyscallHandler) Option {
	return func(p *Pipeline) { p.syscallHandler = h }
}

// WithCaches wires an instruction and data cache into Fetch and Memory.
func WithCaches(icache, dcache *cache.Cache) Option {
	return func(p *Pipeline) {
		p.fetchStage = NewFetchStageWithCache(p.memory, icache)
		p.memoryStage = NewMemoryStageWithCache(p.memory, dcache)
	}
}

// WithLatencyTable overrides the default functional-unit latency table.
func WithLatencyTable(t *latency.Table) Option {
	return func(p *Pipeline) { p.latencies = t }
}

// NewPipeline creates a 5-stage pipeline over regFile/fpFile/memory.
func NewPipeline(regFile *emu.RegFile, fpFile *emu.FPRegFile, memory *emu.Memory, opts ...Option) *Pipeline {
	predictor := NewBranchPredictor()
	p := &Pipeline{
		fetchStage:     NewFetchStage(memory),
		decodeStage:    NewDecodeStage(regFile, fpFile),
		executeStage:   NewExecuteStage(regFile, fpFile, predictor),
		memoryStage:    NewMemoryStage(memory),
		writebackStage: NewWritebackStage(regFile, fpFile),
		hazardUnit:     NewHazardUnit(),
		predictor:      predictor,
		latencies:      latency.NewTable(),
		regFile:        regFile,
		memory:         memory,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.syscallHandler == nil {
		p.syscallHandler = emu.NewDefaultSyscallHandler(regFile, fpFile, memory, nil, nil, nil)
	}

	return p
}

// SetPC sets the program counter.
func (p *Pipeline) SetPC(pc uint32) {
	p.pc = pc
	p.regFile.PC = pc
}

// PC returns the current program counter.
func (p *Pipeline) PC() uint32 { return p.pc }

// Halted reports whether the pipeline has exited.
func (p *Pipeline) Halted() bool { return p.halted }

// ExitCode returns the exit code recorded when the pipeline halted.
func (p *Pipeline) ExitCode() int32 { return p.exitCode }

// Stats returns the pipeline's accumulated statistics.
func (p *Pipeline) Stats() Statistics { return p.stats }

// Predictor exposes the branch predictor for inspection/testing.
func (p *Pipeline) Predictor() *BranchPredictor { return p.predictor }

// Snapshot is a point-in-time view of the pipeline's latches, intended
// for visualization tooling.
type Snapshot struct {
	PC    uint32
	IFID  IFIDRegister
	IDEX  IDEXRegister
	EXMEM EXMEMRegister
	MEMWB MEMWBRegister
	Stats Statistics
}

// Snapshot captures the pipeline's current latch contents.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		PC:    p.pc,
		IFID:  p.ifid,
		IDEX:  p.idex,
		EXMEM: p.exmem,
		MEMWB: p.memwb,
		Stats: p.stats,
	}
}

// Tick advances the pipeline by exactly one cycle, in a fixed
// order: (1) honor any outstanding stall cycles, (2) compute hazards,
// (3) apply remedies while advancing every stage from tail to head.
func (p *Pipeline) Tick() {
	if p.halted {
		return
	}
	p.stats.CycleCount++

	if p.extraStallCycles > 0 {
		p.extraStallCycles--
		p.stats.StallCount++
		return
	}

	loadUse, warWaw, structural := p.detectDataAndStructuralHazards()
	plan := p.hazardUnit.ComputeStalls(loadUse, warWaw, structural, false)

	switch {
	case loadUse, warWaw:
		p.stats.StallCount++
		p.stats.DataStallCount++
	case structural:
		p.stats.StallCount++
		p.stats.StructuralStallCount++
	}

	p.advance(plan)
}

// detectDataAndStructuralHazards evaluates the hazards knowable before
// the current Execute stage has run: a load in Execute whose destination
// a not-yet-decoded Fetch-stage instruction will need (load-use, which
// forwarding cannot fix), a younger destination colliding with an older
// in-flight source or destination (WAR/WAW), and a structural clash over
// the single memory port.
func (p *Pipeline) detectDataAndStructuralHazards() (loadUse, warWaw, structural bool) {
	if p.idex.Valid && p.idex.MemRead && p.ifid.Valid {
		decoded := p.decodeStage.decoder.Decode(p.ifid.Word)
		dest, _ := p.idex.Instr.DestinationRegister()
		loadUse = p.hazardUnit.DetectLoadUse(dest, sourceRegs(decoded))
	}

	if p.exmem.Valid && p.idex.Valid {
		idexDest, idexOk := p.idex.Instr.DestinationRegister()
		if idexOk {
			exDest, exOk := p.exmem.Instr.DestinationRegister()
			warWaw = p.hazardUnit.DetectWARWAW(idexDest, idexOk, sourceRegs(p.exmem.Instr), exDest, exOk)
		}

		// An FP-reading instruction must wait for an older LWC1 to clear
		// the Memory stage: the FP file is written at Writeback, which
		// runs before Execute only once the load is a stage further on.
		if p.exmem.Instr.Op == insts.OpLwc1 && readsFPRegisters(p.idex.Instr.Op) {
			warWaw = true
		}
	}

	sharedMemoryPort := p.fetchStage.icache == nil && p.memoryStage.dcache == nil
	if sharedMemoryPort && p.ifid.Valid && p.exmem.Valid && p.exmem.Instr.IsMemoryAccess() {
		structural = p.hazardUnit.DetectStructural(true, true)
	}

	return
}

// advance performs the tail-to-head stage transfers for one cycle, once
// data/structural hazards have been resolved into a StallPlan, and
// resolves control flow (branch execution and, on a taken branch,
// flush) inline as the Execute stage runs.
func (p *Pipeline) advance(plan StallPlan) {
	// Writeback: the oldest in-flight instruction commits first.
	if p.memwb.Valid {
		p.writebackStage.Writeback(&p.memwb)
		p.stats.InstructionCount++
		if p.memwb.Instr.Op == insts.OpSyscall {
			result := p.syscallHandler.Handle()
			if result.Exited {
				p.halted = true
				p.exitCode = result.ExitCode
			}
		}
	}
	p.nextMemwb.Clear()

	// Memory.
	if p.exmem.Valid {
		result := p.memoryStage.Access(&p.exmem)
		if result.Cycles > 1 {
			p.stats.CacheStallCycles += result.Cycles - 1
			p.extraStallCycles += result.Cycles - 1
		}
		p.nextMemwb = MEMWBRegister{
			Valid:     true,
			PC:        p.exmem.PC,
			Instr:     p.exmem.Instr,
			ALUResult: p.exmem.ALUResult,
			MemData:   result.MemData,
			RegWrite:  p.exmem.RegWrite,
			MemToReg:  p.exmem.Instr.IsMemoryAccess() && !p.exmem.Instr.IsStore(),
		}
	}

	// Execute: resolves ALU results and control flow for the instruction
	// in IDEX. A taken branch flushes Fetch/Decode and redirects PC in
	// this same cycle.
	controlTaken := false
	var controlTarget uint32

	if plan.BubbleExec {
		p.nextExmem.Clear()
	} else if p.idex.Valid {
		fw := p.hazardUnit.DetectForwarding(&p.idex, &p.exmem, &p.memwb)
		if fw.Rs != ForwardNone {
			p.stats.ForwardingUsed++
		}
		if fw.Rt != ForwardNone {
			p.stats.ForwardingUsed++
		}
		// Operands not satisfied by a forward are re-read from the
		// register file here rather than taken from the Decode-time
		// latch: writeback ran earlier this cycle, so a producer that
		// already left the pipeline has its value in the file, where
		// the latched copy could predate it.
		rs := p.hazardUnit.ForwardedValue(fw.Rs, p.regFile.Read(p.idex.Instr.Rs), &p.exmem, &p.memwb)
		rt := p.hazardUnit.ForwardedValue(fw.Rt, p.regFile.Read(p.idex.Instr.Rt), &p.exmem, &p.memwb)

		result := p.executeStage.Execute(&p.idex, rs, rt)
		if result.Mispredicted {
			p.stats.BranchMispredictions++
		}
		if result.BranchTaken {
			controlTaken = true
			controlTarget = result.BranchTarget
			p.stats.ControlStallCount++
		}

		if opLatency := p.latencies.GetLatency(p.idex.Instr.Op); opLatency > 1 {
			p.extraStallCycles += opLatency - 1
		}

		p.nextExmem = EXMEMRegister{
			Valid:        true,
			PC:           p.idex.PC,
			Instr:        p.idex.Instr,
			ALUResult:    result.ALUResult,
			StoreValue:   result.StoreValue,
			RegWrite:     p.idex.RegWrite,
			MemRead:      p.idex.MemRead,
			MemWrite:     p.idex.MemWrite,
			BranchTaken:  result.BranchTaken,
			BranchTarget: result.BranchTarget,
		}
	} else {
		p.nextExmem.Clear()
	}

	// Decode. A load-use bubble leaves IF/ID undecoded for a cycle so the
	// load ahead of it can reach a forwardable stage.
	if plan.BubbleDecode {
		p.nextIdex.Clear()
	} else if plan.StallDecode {
		p.nextIdex = p.idex
	} else if p.ifid.Valid {
		decoded := p.decodeStage.Decode(p.ifid.Word)
		p.nextIdex = IDEXRegister{
			Valid:    true,
			PC:       p.ifid.PC,
			Instr:    decoded.Instr,
			RsValue:  decoded.RsValue,
			RtValue:  decoded.RtValue,
			RegWrite: decoded.RegWrite,
			MemRead:  decoded.MemRead,
			MemWrite: decoded.MemWrite,
			IsBranch: decoded.IsBranch,
		}
	} else {
		p.nextIdex.Clear()
	}

	// Fetch.
	if plan.StallFetch {
		p.nextIfid = p.ifid
	} else {
		word, ok, cycles := p.fetchStage.Fetch(p.pc)
		if cycles > 1 {
			p.stats.CacheStallCycles += cycles - 1
			p.extraStallCycles += cycles - 1
		}
		if ok {
			p.nextIfid = IFIDRegister{Valid: true, PC: p.pc, Word: word}
		} else {
			p.nextIfid.Clear()
		}
	}

	// Commit latches and advance PC.
	p.ifid = p.nextIfid
	p.idex = p.nextIdex
	p.exmem = p.nextExmem
	p.memwb = p.nextMemwb

	switch {
	case controlTaken:
		p.ifid.Clear()
		p.idex.Clear()
		p.pc = controlTarget
	case plan.StallFetch:
		// PC unchanged: refetching the same instruction next cycle.
	default:
		p.pc += 4
	}
	p.regFile.PC = p.pc
}

// Run executes the pipeline until it halts or maxCycles is reached (0
// means unbounded).
func (p *Pipeline) Run(maxCycles uint64) {
	for !p.halted {
		if maxCycles > 0 && p.stats.CycleCount >= maxCycles {
			return
		}
		p.Tick()
	}
}
