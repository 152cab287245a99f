package tomasulo

import (
	"github.com/vmips-go/vmips/emu"
	"github.com/vmips-go/vmips/insts"
	"github.com/vmips-go/vmips/simerr"
	"github.com/vmips-go/vmips/timing/cache"
	"github.com/vmips-go/vmips/timing/latency"
)

// Defaults for the processor's speculative window.
const (
	DefaultNumStations = 8
	DefaultROBSize     = 16

	// commitWidth is how many completed entries the commit phase may
	// retire from the ROB head in a single cycle.
	commitWidth = 4
)

// The LO and HI halves of the multiply/divide result pair are renamed
// through the RAT like ordinary registers, using tags above the 32 GPR
// indices, so an in-flight MULT/DIV correctly feeds a younger MFLO/MFHI.
const (
	loTag uint8 = 32
	hiTag uint8 = 33
)

// Stats accumulates the processor's performance counters.
type Stats struct {
	Cycles                uint64
	InstructionsIssued    uint64
	InstructionsExecuted  uint64
	InstructionsCommitted uint64
	BranchMispredictions  uint64

	// rsBusySum/robBusySum integrate occupancy over time so the
	// utilization figures are averages over the whole run, not a point
	// sample at the end.
	rsBusySum  uint64
	robBusySum uint64

	numStations int
	robSize     int
}

// IPC returns committed instructions per cycle.
func (s Stats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.InstructionsCommitted) / float64(s.Cycles)
}

// RSUtilization returns the mean fraction of reservation stations busy
// per cycle.
func (s Stats) RSUtilization() float64 {
	if s.Cycles == 0 || s.numStations == 0 {
		return 0
	}
	return float64(s.rsBusySum) / float64(s.Cycles*uint64(s.numStations))
}

// ROBUtilization returns the mean fraction of ROB capacity occupied per
// cycle.
func (s Stats) ROBUtilization() float64 {
	if s.Cycles == 0 || s.robSize == 0 {
		return 0
	}
	return float64(s.robBusySum) / float64(s.Cycles*uint64(s.robSize))
}

// TickResult reports what one processor cycle did that the driver must
// react to: a misprediction recovery (resume fetch at ResumePC), a clean
// exit via syscall, or a terminal fault.
type TickResult struct {
	Committed int

	Recovered bool
	ResumePC  uint32

	Exited   bool
	ExitCode int32

	Fault error
}

// Processor is the out-of-order core: instructions issue in order into a
// reservation station and a ROB slot, execute whenever their operands and
// a functional unit are available, broadcast results over the common data
// bus, and commit in order from the ROB head.
type Processor struct {
	stations []*Station
	rob      *ReorderBuffer
	rat      *RegisterAliasTable
	units    []*FunctionalUnit

	// cdb is the broadcast being consumed this cycle (driven during the
	// previous cycle); cdbNext is the one being driven now. The swap at
	// the end of Tick is what limits the bus to one producer per cycle
	// and one cycle of validity.
	cdb     CommonDataBus
	cdbNext CommonDataBus

	latencies *latency.Table
	regFile   *emu.RegFile
	fpFile    *emu.FPRegFile
	memory    *emu.Memory
	dcache    *cache.Cache

	syscallHandler emu.SyscallHandler

	stats Stats
}

// Option configures a Processor at construction time.
type Option func(*Processor)

// WithNumStations sets the reservation-station count.
func WithNumStations(n int) Option {
	return func(p *Processor) {
		p.stations = make([]*Station, n)
		for i := range p.stations {
			p.stations[i] = NewStation(i)
		}
	}
}

// WithROBSize sets the reorder-buffer capacity.
func WithROBSize(n int) Option {
	return func(p *Processor) { p.rob = NewReorderBuffer(n) }
}

// WithLatencyTable overrides the default functional-unit latency table.
func WithLatencyTable(t *latency.Table) Option {
	return func(p *Processor) { p.latencies = t }
}

// WithDCache routes the load/store unit's accesses through a data cache
// instead of straight to memory.
func WithDCache(c *cache.Cache) Option {
	return func(p *Processor) { p.dcache = c }
}

// WithSyscallHandler overrides the syscall handler invoked at commit.
func WithSyscallHandler(h emu.SyscallHandler) Option {
	return func(p *Processor) { p.syscallHandler = h }
}

// NewProcessor creates an out-of-order core over the shared architectural
// state.
func NewProcessor(regFile *emu.RegFile, fpFile *emu.FPRegFile, memory *emu.Memory, opts ...Option) *Processor {
	p := &Processor{
		rob:       NewReorderBuffer(DefaultROBSize),
		rat:       NewRegisterAliasTable(),
		units:     defaultUnitPool(),
		latencies: latency.NewTable(),
		regFile:   regFile,
		fpFile:    fpFile,
		memory:    memory,
	}
	p.stations = make([]*Station, DefaultNumStations)
	for i := range p.stations {
		p.stations[i] = NewStation(i)
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.syscallHandler == nil {
		p.syscallHandler = emu.NewDefaultSyscallHandler(regFile, fpFile, memory, nil, nil, nil)
	}

	p.stats.numStations = len(p.stations)
	p.stats.robSize = p.rob.Capacity()
	return p
}

// Stats returns the processor's accumulated counters.
func (p *Processor) Stats() Stats { return p.stats }

// RAT exposes the register alias table for inspection.
func (p *Processor) RAT() *RegisterAliasTable { return p.rat }

// InFlight returns the number of instructions issued but not yet
// committed.
func (p *Processor) InFlight() int { return p.rob.Count() }

// Issue places instr (fetched at pc) into a free reservation station and
// ROB entry. It returns false, applying back-pressure to the fetch
// driver, when either resource is exhausted. predictedTarget is the PC
// the driver speculatively continued fetching from; a branch whose
// resolved target differs triggers recovery at commit.
func (p *Processor) Issue(instr insts.Instruction, pc, predictedTarget uint32) bool {
	station := p.freeStation()
	if station == nil || p.rob.Full() {
		return false
	}

	robIdx := p.rob.Allocate()
	entry := p.rob.Entry(robIdx)
	entry.Instr = instr
	entry.PC = pc
	entry.IsBranch = instr.IsBranchOrJump()
	entry.PredictedTarget = predictedTarget

	if dest, ok := instr.DestinationRegister(); ok {
		entry.HasDest = true
		entry.Dest = dest
	} else if fd, ok := fpDestination(instr); ok {
		entry.HasDest = true
		entry.Dest = fd
		entry.DestFP = true
	}
	entry.WritesHiLo = instr.WritesHiLo()

	station.Busy = true
	station.Instr = instr
	station.PC = pc
	station.Status = StatusWaiting
	station.Dest = robIdx
	p.seedOperands(station, instr)

	if entry.HasDest && !entry.DestFP {
		p.rat.Rename(entry.Dest, robIdx)
	}
	if entry.WritesHiLo {
		p.rat.Rename(loTag, robIdx)
		p.rat.Rename(hiTag, robIdx)
	}

	p.stats.InstructionsIssued++
	return true
}

// seedOperands fills the station's Vj/Vk from the RAT, the ROB, or the
// architectural files: a source renamed to a completed ROB entry copies
// its value, one renamed to an incomplete entry records the Qj/Qk
// dependency, and an unrenamed source reads the register file directly.
func (p *Processor) seedOperands(s *Station, instr insts.Instruction) {
	seedInt := func(reg uint8, v *uint32, q *int) {
		if idx, ok := p.rat.Lookup(reg); ok {
			entry := p.rob.Entry(idx)
			if entry.Status == StatusCompleted {
				*v = entry.Value
				*q = -1
				return
			}
			*q = idx
			return
		}
		*v = p.regFile.Read(reg)
		*q = -1
	}

	// seedHiLoHalf resolves one half of the HI/LO pair through the same
	// RAT discipline as a GPR, picking the producing entry's Hi or Value
	// field once it completes.
	seedHiLoHalf := func(tag uint8, v *uint32, q *int) {
		if idx, ok := p.rat.Lookup(tag); ok {
			entry := p.rob.Entry(idx)
			if entry.Status == StatusCompleted {
				if tag == hiTag {
					*v = entry.Hi
				} else {
					*v = entry.Value
				}
				*q = -1
				return
			}
			*q = idx
			return
		}
		hi, lo := p.regFile.ReadHiLo()
		if tag == hiTag {
			*v = hi
		} else {
			*v = lo
		}
		*q = -1
	}

	switch {
	case isFPCompute(instr.Op):
		// FP operands are not renamed: the FP file is read at issue and
		// written only at commit, keeping FP dataflow in program order.
		s.Vj = p.fpFile.ReadBits(instr.Rt)
		s.Vk = p.fpFile.ReadBits(instr.Rs)
	case instr.Op == insts.OpMfhi:
		seedHiLoHalf(hiTag, &s.Vj, &s.Qj)
	case instr.Op == insts.OpMflo:
		seedHiLoHalf(loTag, &s.Vj, &s.Qj)
	case instr.Op == insts.OpMthi:
		seedInt(instr.Rs, &s.Vj, &s.Qj)
		seedHiLoHalf(loTag, &s.Vk, &s.Qk)
	case instr.Op == insts.OpMtlo:
		seedInt(instr.Rs, &s.Vj, &s.Qj)
		seedHiLoHalf(hiTag, &s.Vk, &s.Qk)
	case instr.Op == insts.OpBc1t, instr.Op == insts.OpBc1f:
		if p.fpFile.CC {
			s.Vj = 1
		}
	case instr.Op == insts.OpSwc1:
		// Only the integer base register participates in renaming; the FP
		// source is read from the FP file when the store executes.
		seedInt(instr.Rs, &s.Vj, &s.Qj)
	default:
		srcs := instr.SourceRegisters()
		if len(srcs) > 0 {
			seedInt(srcs[0], &s.Vj, &s.Qj)
		}
		if len(srcs) > 1 {
			seedInt(srcs[1], &s.Vk, &s.Qk)
		}
	}
}

func (p *Processor) freeStation() *Station {
	for _, s := range p.stations {
		if !s.Busy {
			return s
		}
	}
	return nil
}

// Tick advances the core by one cycle. The sub-phases run in a fixed
// order: consume the previous cycle's CDB broadcast, tick the functional
// units (at most one of which may drive the bus), dispatch ready stations
// to idle units, retire completed entries from the ROB head, and finally
// rotate the bus.
func (p *Processor) Tick() TickResult {
	p.stats.Cycles++

	p.processCDB()
	p.tickUnits()
	p.dispatch()
	result := p.commit()

	p.cdb = p.cdbNext
	p.cdbNext.Clear()

	for _, s := range p.stations {
		if s.Busy {
			p.stats.rsBusySum++
		}
	}
	p.stats.robBusySum += uint64(p.rob.Count())

	return result
}

// processCDB delivers the previous cycle's broadcast: waiting stations
// capture the value into Vj/Vk, the producing ROB entry records it and
// becomes Completed, and the producing station returns to the free pool.
func (p *Processor) processCDB() {
	if !p.cdb.Valid {
		return
	}

	producer := p.rob.Entry(p.cdb.Rob)
	for _, s := range p.stations {
		if !s.Busy {
			continue
		}
		if s.Qj == p.cdb.Rob {
			// A consumer waiting on the HI half takes it from the
			// producing entry rather than the bus, whose value is LO.
			if s.Instr.Op == insts.OpMfhi {
				s.Vj = producer.Hi
			} else {
				s.Vj = p.cdb.Value
			}
			s.Qj = -1
		}
		if s.Qk == p.cdb.Rob {
			if s.Instr.Op == insts.OpMtlo {
				s.Vk = producer.Hi
			} else {
				s.Vk = p.cdb.Value
			}
			s.Qk = -1
		}
	}

	entry := p.rob.Entry(p.cdb.Rob)
	if entry.Busy {
		entry.Complete(p.cdb.Value, p.cdb.ActualTarget)
	}

	p.stations[p.cdb.Station].Reset()
}

// tickUnits advances in-flight executions. A unit that reaches zero
// cycles computes its station's result and claims the CDB; if another
// unit already claimed the bus this cycle, the finished unit holds its
// result and retries next cycle.
func (p *Processor) tickUnits() {
	for _, u := range p.units {
		if !u.Tick() {
			continue
		}
		if p.cdbNext.Valid {
			continue
		}

		s := p.stations[u.StationID]
		out := p.execute(s)
		entry := p.rob.Entry(s.Dest)
		entry.Hi = out.Hi
		entry.WritesCC = out.WritesCC
		entry.IsStore = out.IsStore
		entry.Address = out.Address
		entry.StoreSize = out.StoreSize
		entry.Fault = out.Fault

		p.cdbNext.Broadcast(s.ID, s.Dest, out.Value, out.ActualTarget)
		s.Status = StatusCompleted
		u.Reset()
		p.stats.InstructionsExecuted++
	}
}

// dispatch hands every ready station to an idle functional unit of its
// class, seeding the unit with the class latency.
func (p *Processor) dispatch() {
	for _, s := range p.stations {
		if !s.IsReady() {
			continue
		}
		class := unitClassFor(s.Instr)
		for _, u := range p.units {
			if u.Busy || u.Type != class {
				continue
			}
			u.Start(s.ID, p.latencies.GetLatency(s.Instr.Op))
			s.Status = StatusExecuting
			break
		}
	}
}

// commit retires up to commitWidth completed entries from the ROB head,
// in issue order: register and memory writes happen here and only here.
// A mispredicted branch commits, is counted, and then atomically flushes
// all younger speculative work.
func (p *Processor) commit() TickResult {
	var result TickResult

	for result.Committed < commitWidth {
		idx, ok := p.rob.Head()
		if !ok {
			return result
		}
		entry := p.rob.Entry(idx)
		if !entry.Busy || entry.Status != StatusCompleted {
			return result
		}

		if entry.Fault != nil {
			result.Fault = entry.Fault
			return result
		}

		if entry.IsStore {
			if err := p.commitStore(entry); err != nil {
				result.Fault = err
				return result
			}
		}

		switch {
		case entry.WritesHiLo:
			p.regFile.WriteHiLo(entry.Hi, entry.Value)
			p.rat.ClearIfMapped(loTag, idx)
			p.rat.ClearIfMapped(hiTag, idx)
		case entry.WritesCC:
			p.fpFile.CC = entry.Value != 0
		case entry.HasDest && entry.DestFP:
			p.fpFile.WriteBits(entry.Dest, entry.Value)
		case entry.HasDest:
			p.regFile.Write(entry.Dest, entry.Value)
			p.rat.ClearIfMapped(entry.Dest, idx)
		}

		if entry.Instr.Op == insts.OpSyscall {
			r := p.syscallHandler.Handle()
			if r.Exited {
				result.Exited = true
				result.ExitCode = r.ExitCode
			}
		}
		if entry.Instr.Op == insts.OpBreak {
			result.Fault = simerr.NewExecutionError(simerr.ExecUnimplementedFeature, entry.PC, "BREAK")
		}

		mispredicted := entry.Mispredicted
		actualTarget := entry.ActualTarget

		entry.Status = StatusCommitted
		p.rob.PopHead()
		p.stats.InstructionsCommitted++
		result.Committed++

		if result.Exited || result.Fault != nil {
			return result
		}

		if mispredicted {
			p.stats.BranchMispredictions++
			p.recover()
			result.Recovered = true
			result.ResumePC = actualTarget
			return result
		}
	}

	return result
}

// commitStore performs the deferred memory write for a store entry.
// Misalignment or an out-of-range address is terminal here, regardless
// of the memory's permissive mode: the store has reached the commit
// point, so it can no longer be squashed as wrong-path speculation.
func (p *Processor) commitStore(entry *ROBEntry) error {
	if entry.StoreSize > 1 && entry.Address%uint32(entry.StoreSize) != 0 {
		return simerr.NewMemoryError(simerr.MemMisaligned, entry.Address)
	}
	if p.dcache != nil {
		p.dcache.Write(entry.Address, entry.StoreSize, entry.Value)
		return nil
	}
	switch entry.StoreSize {
	case 4:
		return p.memory.WriteWordStrict(entry.Address, entry.Value)
	case 2:
		if !p.memory.WriteHalfword(entry.Address, uint16(entry.Value)) {
			return simerr.NewMemoryError(simerr.MemOutOfBounds, entry.Address)
		}
	default:
		if !p.memory.WriteByte(entry.Address, uint8(entry.Value)) {
			return simerr.NewMemoryError(simerr.MemOutOfBounds, entry.Address)
		}
	}
	return nil
}

// recover squashes all speculative state after a mispredicted branch
// commits: every reservation station, every functional unit, both bus
// slots, every remaining ROB entry, and the entire RAT. The driver
// resumes fetching from the branch's resolved target.
func (p *Processor) recover() {
	for _, s := range p.stations {
		s.Reset()
	}
	for _, u := range p.units {
		u.Reset()
	}
	p.cdb.Clear()
	p.cdbNext.Clear()
	p.rob.Flush()
	p.rat.Clear()
}
