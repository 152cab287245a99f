// Package core provides the timing driver: it owns the program counter
// and the step budget, fetches instruction words (through the L1
// instruction cache when one is configured), and feeds them to either the
// in-order 5-stage pipeline or the out-of-order Tomasulo processor.
package core

import (
	"github.com/vmips-go/vmips/emu"
	"github.com/vmips-go/vmips/insts"
	"github.com/vmips-go/vmips/simerr"
	"github.com/vmips-go/vmips/timing/cache"
	"github.com/vmips-go/vmips/timing/latency"
	"github.com/vmips-go/vmips/timing/pipeline"
	"github.com/vmips-go/vmips/timing/tomasulo"
)

// DefaultMaxCycles bounds a timing run when the caller does not set a
// budget explicitly.
const DefaultMaxCycles = 1_000_000

// Core drives one of the two timing engines over shared architectural
// state.
type Core struct {
	pipe *pipeline.Pipeline
	proc *tomasulo.Processor

	regFile *emu.RegFile
	fpFile  *emu.FPRegFile
	memory  *emu.Memory
	decoder *insts.Decoder
	icache  *cache.Cache

	pc        uint32
	maxCycles uint64
	cycles    uint64

	// fetchStopped flags that the front end has run out of program (bad
	// PC, invalid decode, or a sustained NOP tail) and the core is
	// draining in-flight work.
	fetchStopped    bool
	consecutiveNops int
	issued          uint64

	halted   bool
	exitCode int32
	fault    error
}

// Option configures a Core at construction time.
type Option func(*Core)

// WithOutOfOrder selects the Tomasulo engine instead of the default
// in-order pipeline.
func WithOutOfOrder(opts ...tomasulo.Option) Option {
	return func(c *Core) {
		c.proc = tomasulo.NewProcessor(c.regFile, c.fpFile, c.memory, opts...)
		c.pipe = nil
	}
}

// WithPipelineOptions forwards options to the in-order pipeline.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(c *Core) {
		c.pipe = pipeline.NewPipeline(c.regFile, c.fpFile, c.memory, opts...)
	}
}

// WithICache routes the Tomasulo front end's instruction fetches through
// an L1 instruction cache. The in-order pipeline takes its caches via
// pipeline.WithCaches instead, since its fetch stage owns them.
func WithICache(ic *cache.Cache) Option {
	return func(c *Core) { c.icache = ic }
}

// WithMaxCycles sets the cycle budget. Zero selects DefaultMaxCycles.
func WithMaxCycles(n uint64) Option {
	return func(c *Core) {
		if n == 0 {
			n = DefaultMaxCycles
		}
		c.maxCycles = n
	}
}

// NewCore creates a timing driver over the given architectural state,
// defaulting to the in-order pipeline with the standard latency table.
func NewCore(regFile *emu.RegFile, fpFile *emu.FPRegFile, memory *emu.Memory, opts ...Option) *Core {
	c := &Core{
		regFile:   regFile,
		fpFile:    fpFile,
		memory:    memory,
		decoder:   insts.NewDecoder(),
		maxCycles: DefaultMaxCycles,
	}
	c.pipe = pipeline.NewPipeline(regFile, fpFile, memory,
		pipeline.WithLatencyTable(latency.NewTable()))

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetPC sets the program counter to the loaded program's entry point.
func (c *Core) SetPC(pc uint32) {
	c.pc = pc
	if c.pipe != nil {
		c.pipe.SetPC(pc)
	}
}

// PC returns the current program counter.
func (c *Core) PC() uint32 {
	if c.pipe != nil {
		return c.pipe.PC()
	}
	return c.pc
}

// Halted reports whether the run has ended.
func (c *Core) Halted() bool { return c.halted }

// ExitCode returns the exit status recorded when the core halted.
func (c *Core) ExitCode() int32 { return c.exitCode }

// Fault returns the terminal error, if the run ended on one.
func (c *Core) Fault() error { return c.fault }

// Cycles returns how many cycles have been simulated.
func (c *Core) Cycles() uint64 { return c.cycles }

// Pipeline returns the in-order engine, or nil when running out of order.
func (c *Core) Pipeline() *pipeline.Pipeline { return c.pipe }

// Processor returns the Tomasulo engine, or nil when running in order.
func (c *Core) Processor() *tomasulo.Processor { return c.proc }

// Tick advances the selected engine by one cycle.
func (c *Core) Tick() {
	if c.halted {
		return
	}
	c.cycles++

	if c.proc != nil {
		c.tickOutOfOrder()
	} else {
		c.pipe.Tick()
		if c.pipe.Halted() {
			c.halted = true
			c.exitCode = c.pipe.ExitCode()
		}
	}
}

// tickOutOfOrder issues at most one instruction into the processor, then
// advances it one cycle. The front end speculates through branches by
// following the encoded target (the predicted target the issue records),
// and is redirected whenever a mispredicted branch commits.
func (c *Core) tickOutOfOrder() {
	if !c.fetchStopped {
		c.issueNext()
	}

	result := c.proc.Tick()
	switch {
	case result.Exited:
		c.halted = true
		c.exitCode = result.ExitCode
	case result.Fault != nil:
		c.halted = true
		c.fault = result.Fault
	case result.Recovered:
		// Whatever stopped the front end was wrong-path work; resume
		// cleanly from the branch's resolved target.
		c.pc = result.ResumePC
		c.fetchStopped = false
		c.fault = nil
		c.consecutiveNops = 0
	}

	if c.fetchStopped && c.proc.InFlight() == 0 {
		c.halted = true
	}
}

// issueNext fetches and decodes the word at PC and offers it to the
// processor. Back-pressure (no free station or ROB slot) leaves PC
// unchanged so the same instruction is offered again next cycle.
func (c *Core) issueNext() {
	word, ok := c.fetchWord(c.pc)
	if !ok {
		c.fault = simerr.NewExecutionError(simerr.ExecInvalidBranchTarget, c.pc, "fetch out of range")
		c.fetchStopped = true
		return
	}

	instr := c.decoder.Decode(word)
	if instr.Op == insts.OpInvalid {
		c.fault = simerr.NewExecutionError(simerr.ExecInvalidInstruction, c.pc, "")
		c.fetchStopped = true
		return
	}

	// A long run of NOPs after real progress means the front end fell off
	// the end of the program into zero-filled memory.
	if instr.Op == insts.OpNop && c.issued >= 10 {
		c.consecutiveNops++
		if c.consecutiveNops >= 10 {
			c.fetchStopped = true
			return
		}
	} else {
		c.consecutiveNops = 0
	}

	predictedTarget := c.pc + 4
	if instr.IsBranchOrJump() {
		if target, ok := instr.ImmediateTarget(c.pc); ok {
			predictedTarget = target
		}
	}

	if c.proc.Issue(instr, c.pc, predictedTarget) {
		c.pc = predictedTarget
		c.issued++
	}
}

func (c *Core) fetchWord(pc uint32) (uint32, bool) {
	if c.icache != nil {
		return c.icache.Read(pc, 4).Data, true
	}
	return c.memory.ReadWord(pc)
}

// Run ticks the core until it halts or exhausts its cycle budget.
func (c *Core) Run() {
	for !c.halted && c.cycles < c.maxCycles {
		c.Tick()
	}
}
