package pipeline

import (
	"github.com/vmips-go/vmips/emu"
	"github.com/vmips-go/vmips/insts"
	"github.com/vmips-go/vmips/timing/cache"
)

// FetchStage reads the instruction word at PC, optionally through an
// instruction cache.
type FetchStage struct {
	memory *emu.Memory
	icache *cache.Cache
}

// NewFetchStage creates a fetch stage reading directly from memory.
func NewFetchStage(memory *emu.Memory) *FetchStage {
	return &FetchStage{memory: memory}
}

// NewFetchStageWithCache creates a fetch stage that fills from an
// instruction cache backed by memory.
func NewFetchStageWithCache(memory *emu.Memory, icache *cache.Cache) *FetchStage {
	return &FetchStage{memory: memory, icache: icache}
}

// Fetch returns the instruction word at pc, whether the read was valid,
// and the cycles the access took (1 absent a cache, hit/miss latency
// otherwise).
func (s *FetchStage) Fetch(pc uint32) (word uint32, ok bool, cycles uint64) {
	if s.icache != nil {
		result := s.icache.Read(pc, 4)
		latency := result.Latency
		if latency == 0 {
			latency = 1
		}
		return result.Data, true, latency
	}
	w, valid := s.memory.ReadWord(pc)
	return w, valid, 1
}

// DecodeStage decodes the fetched word and reads source operands.
type DecodeStage struct {
	regFile *emu.RegFile
	fpFile  *emu.FPRegFile
	decoder *insts.Decoder
}

// NewDecodeStage creates a decode stage reading from regFile/fpFile.
func NewDecodeStage(regFile *emu.RegFile, fpFile *emu.FPRegFile) *DecodeStage {
	return &DecodeStage{regFile: regFile, fpFile: fpFile, decoder: insts.NewDecoder()}
}

// DecodeResult is the outcome of decoding one instruction word.
type DecodeResult struct {
	Instr insts.Instruction

	RsValue uint32
	RtValue uint32

	RegWrite bool
	MemRead  bool
	MemWrite bool
	IsBranch bool
}

// Decode decodes word (fetched at pc) and reads its GPR source operands.
func (s *DecodeStage) Decode(word uint32) DecodeResult {
	instr := s.decoder.Decode(word)
	result := DecodeResult{
		Instr:   instr,
		RsValue: s.regFile.Read(instr.Rs),
		RtValue: s.regFile.Read(instr.Rt),
	}

	if _, ok := instr.DestinationRegister(); ok {
		result.RegWrite = true
	}
	if instr.IsMemoryAccess() {
		if instr.IsStore() {
			result.MemWrite = true
		} else {
			result.MemRead = true
		}
	}
	result.IsBranch = instr.IsBranchOrJump()

	return result
}

// ExecuteStage computes ALU results, effective addresses, and branch
// outcomes. GPR results are latched into EX/MEM and committed later by
// WritebackStage; the HI/LO pair and the FP file are updated here
// directly, which is safe because an instruction that has reached Execute
// is never flushed (only Fetch and Decode are squashed on a taken
// branch), and every younger reader of those files executes in a later
// cycle.
type ExecuteStage struct {
	regFile   *emu.RegFile
	fpFile    *emu.FPRegFile
	fpu       *emu.FPU
	predictor *BranchPredictor
}

// NewExecuteStage creates an execute stage consulting predictor for
// control-flow instructions.
func NewExecuteStage(regFile *emu.RegFile, fpFile *emu.FPRegFile, predictor *BranchPredictor) *ExecuteStage {
	return &ExecuteStage{
		regFile:   regFile,
		fpFile:    fpFile,
		fpu:       emu.NewFPU(fpFile),
		predictor: predictor,
	}
}

// ExecuteResult is the outcome of the execute stage.
type ExecuteResult struct {
	ALUResult  uint32
	StoreValue uint32

	BranchTaken  bool
	BranchTarget uint32
	Mispredicted bool
}

// Execute computes idex's result using the forwarded rs/rt values.
func (s *ExecuteStage) Execute(idex *IDEXRegister, rs, rt uint32) ExecuteResult {
	var result ExecuteResult
	instr := idex.Instr
	imm := instr.Imm

	switch instr.Op {
	case insts.OpAdd, insts.OpAddu:
		result.ALUResult = rs + rt
	case insts.OpSub, insts.OpSubu:
		result.ALUResult = rs - rt
	case insts.OpAnd:
		result.ALUResult = rs & rt
	case insts.OpOr:
		result.ALUResult = rs | rt
	case insts.OpXor:
		result.ALUResult = rs ^ rt
	case insts.OpNor:
		result.ALUResult = ^(rs | rt)
	case insts.OpSlt:
		result.ALUResult = boolToWord(int32(rs) < int32(rt))
	case insts.OpSltu:
		result.ALUResult = boolToWord(rs < rt)
	case insts.OpSll:
		result.ALUResult = rt << instr.Shamt
	case insts.OpSrl:
		result.ALUResult = rt >> instr.Shamt
	case insts.OpSra:
		result.ALUResult = uint32(int32(rt) >> instr.Shamt)
	case insts.OpSllv:
		result.ALUResult = rt << (rs & 0x1f)
	case insts.OpSrlv:
		result.ALUResult = rt >> (rs & 0x1f)
	case insts.OpSrav:
		result.ALUResult = uint32(int32(rt) >> (rs & 0x1f))
	case insts.OpAddi, insts.OpAddiu:
		result.ALUResult = rs + uint32(imm)
	case insts.OpAndi:
		result.ALUResult = rs & uint32(imm)
	case insts.OpOri:
		result.ALUResult = rs | uint32(imm)
	case insts.OpXori:
		result.ALUResult = rs ^ uint32(imm)
	case insts.OpSlti:
		result.ALUResult = boolToWord(int32(rs) < imm)
	case insts.OpSltiu:
		result.ALUResult = boolToWord(rs < uint32(imm))
	case insts.OpLui:
		result.ALUResult = uint32(imm) << 16

	case insts.OpLw, insts.OpLh, insts.OpLhu, insts.OpLb, insts.OpLbu, insts.OpLwc1:
		result.ALUResult = rs + uint32(imm)
	case insts.OpSw, insts.OpSh, insts.OpSb:
		result.ALUResult = rs + uint32(imm)
		result.StoreValue = rt
	case insts.OpSwc1:
		result.ALUResult = rs + uint32(imm)
		result.StoreValue = s.fpFile.ReadBits(instr.Rt)

	case insts.OpMult:
		product := int64(int32(rs)) * int64(int32(rt))
		s.regFile.WriteHiLo(uint32(uint64(product)>>32), uint32(product))
	case insts.OpMultu:
		product := uint64(rs) * uint64(rt)
		s.regFile.WriteHiLo(uint32(product>>32), uint32(product))
	case insts.OpDiv:
		if int32(rt) != 0 {
			s.regFile.WriteHiLo(uint32(int32(rs)%int32(rt)), uint32(int32(rs)/int32(rt)))
		}
	case insts.OpDivu:
		if rt != 0 {
			s.regFile.WriteHiLo(rs%rt, rs/rt)
		}
	case insts.OpMfhi:
		result.ALUResult, _ = s.regFile.ReadHiLo()
	case insts.OpMflo:
		_, result.ALUResult = s.regFile.ReadHiLo()
	case insts.OpMthi:
		_, lo := s.regFile.ReadHiLo()
		s.regFile.WriteHiLo(rs, lo)
	case insts.OpMtlo:
		hi, _ := s.regFile.ReadHiLo()
		s.regFile.WriteHiLo(hi, rs)

	case insts.OpAddS:
		s.fpu.AddS(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpSubS:
		s.fpu.SubS(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpMulS:
		s.fpu.MulS(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpDivS:
		s.fpu.DivS(instr.Rd, instr.Rt, instr.Rs)
	case insts.OpAbsS:
		s.fpu.AbsS(instr.Rd, instr.Rt)
	case insts.OpNegS:
		s.fpu.NegS(instr.Rd, instr.Rt)
	case insts.OpMovS:
		s.fpu.MovS(instr.Rd, instr.Rt)
	case insts.OpCvtSW:
		s.fpu.CvtSW(instr.Rd, instr.Rt)
	case insts.OpCvtWS:
		s.fpu.CvtWS(instr.Rd, instr.Rt)
	case insts.OpCEqS:
		s.fpu.CEqS(instr.Rt, instr.Rs)
	case insts.OpCLtS:
		s.fpu.CLtS(instr.Rt, instr.Rs)
	case insts.OpCLeS:
		s.fpu.CLeS(instr.Rt, instr.Rs)

	case insts.OpBeq:
		result.BranchTaken = rs == rt
	case insts.OpBne:
		result.BranchTaken = rs != rt
	case insts.OpBlez:
		result.BranchTaken = int32(rs) <= 0
	case insts.OpBgtz:
		result.BranchTaken = int32(rs) > 0
	case insts.OpBltz:
		result.BranchTaken = int32(rs) < 0
	case insts.OpBgez:
		result.BranchTaken = int32(rs) >= 0
	case insts.OpJ:
		result.BranchTaken = true
	case insts.OpJal:
		result.BranchTaken = true
		result.ALUResult = idex.PC + 4
	case insts.OpJr:
		result.BranchTaken = true
		result.BranchTarget = rs
	case insts.OpJalr:
		result.BranchTaken = true
		result.BranchTarget = rs
		result.ALUResult = idex.PC + 4
	case insts.OpBc1t:
		result.BranchTaken = s.fpFile.CC
	case insts.OpBc1f:
		result.BranchTaken = !s.fpFile.CC
	}

	if target, ok := instr.ImmediateTarget(idex.PC); ok && result.BranchTaken {
		result.BranchTarget = target
	}

	if instr.IsBranchOrJump() {
		predicted := s.predictor.Predict(idex.PC)
		result.Mispredicted = predicted != result.BranchTaken
		if result.BranchTaken {
			s.predictor.Update(idex.PC, true, result.BranchTarget)
		} else {
			s.predictor.Update(idex.PC, false, 0)
		}
	}

	return result
}

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// MemoryStage performs the load/store access for EX/MEM-resident
// instructions, optionally through a data cache.
type MemoryStage struct {
	memory *emu.Memory
	dcache *cache.Cache
}

// NewMemoryStage creates a memory stage reading/writing memory directly.
func NewMemoryStage(memory *emu.Memory) *MemoryStage {
	return &MemoryStage{memory: memory}
}

// NewMemoryStageWithCache creates a memory stage backed by a data cache.
func NewMemoryStageWithCache(memory *emu.Memory, dcache *cache.Cache) *MemoryStage {
	return &MemoryStage{memory: memory, dcache: dcache}
}

// MemoryResult is the outcome of the memory stage.
type MemoryResult struct {
	MemData uint32
	Cycles  uint64
}

// Access performs exmem's load or store, sized per its opcode.
func (s *MemoryStage) Access(exmem *EXMEMRegister) MemoryResult {
	result := MemoryResult{Cycles: 1}
	if !exmem.Valid || !exmem.Instr.IsMemoryAccess() {
		return result
	}

	size := accessSize(exmem.Instr.Op)
	addr := exmem.ALUResult

	if exmem.Instr.IsStore() {
		if s.dcache != nil {
			r := s.dcache.Write(addr, size, exmem.StoreValue)
			result.Cycles = r.Latency
		} else {
			s.writeDirect(addr, size, exmem.StoreValue)
		}
		return result
	}

	if s.dcache != nil {
		r := s.dcache.Read(addr, size)
		result.Cycles = r.Latency
		result.MemData = signExtend(r.Data, exmem.Instr.Op, size)
		return result
	}
	result.MemData = s.readDirect(addr, exmem.Instr.Op, size)
	return result
}

func accessSize(op insts.Op) int {
	switch op {
	case insts.OpLw, insts.OpSw, insts.OpLwc1, insts.OpSwc1:
		return 4
	case insts.OpLh, insts.OpLhu, insts.OpSh:
		return 2
	default:
		return 1
	}
}

func (s *MemoryStage) writeDirect(addr uint32, size int, value uint32) {
	switch size {
	case 4:
		s.memory.WriteWord(addr, value)
	case 2:
		s.memory.WriteHalfword(addr, uint16(value))
	default:
		s.memory.WriteByte(addr, uint8(value))
	}
}

func (s *MemoryStage) readDirect(addr uint32, op insts.Op, size int) uint32 {
	var raw uint32
	switch size {
	case 4:
		v, _ := s.memory.ReadWord(addr)
		raw = v
	case 2:
		v, _ := s.memory.ReadHalfword(addr)
		raw = uint32(v)
	default:
		v, _ := s.memory.ReadByte(addr)
		raw = uint32(v)
	}
	return signExtend(raw, op, size)
}

func signExtend(raw uint32, op insts.Op, size int) uint32 {
	switch op {
	case insts.OpLh:
		return uint32(int32(int16(uint16(raw))))
	case insts.OpLb:
		return uint32(int32(int8(uint8(raw))))
	default:
		return raw
	}
}

// WritebackStage commits a MEM/WB-resident instruction's result to the
// architectural register file.
type WritebackStage struct {
	regFile *emu.RegFile
	fpFile  *emu.FPRegFile
}

// NewWritebackStage creates a writeback stage writing to regFile.
func NewWritebackStage(regFile *emu.RegFile, fpFile *emu.FPRegFile) *WritebackStage {
	return &WritebackStage{regFile: regFile, fpFile: fpFile}
}

// Writeback writes memwb's result to its destination register, if any.
func (s *WritebackStage) Writeback(memwb *MEMWBRegister) {
	if !memwb.Valid {
		return
	}
	if memwb.Instr.Op == insts.OpLwc1 {
		s.fpFile.WriteBits(memwb.Instr.Rt, memwb.MemData)
		return
	}
	if !memwb.RegWrite {
		return
	}
	dest, ok := memwb.Instr.DestinationRegister()
	if !ok {
		return
	}
	if memwb.MemToReg {
		s.regFile.Write(dest, memwb.MemData)
	} else {
		s.regFile.Write(dest, memwb.ALUResult)
	}
}
