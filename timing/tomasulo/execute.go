package tomasulo

import (
	"math"

	"github.com/vmips-go/vmips/insts"
	"github.com/vmips-go/vmips/simerr"
)

// execOutcome is everything a finished execution produces: the broadcast
// value, the resolved control-flow target for branches, the deferred
// store description, the HI half of a MULT/DIV, and any violation that
// must become terminal at commit.
type execOutcome struct {
	Value        uint32
	ActualTarget uint32

	Hi       uint32
	WritesCC bool

	IsStore   bool
	Address   uint32
	StoreSize int

	Fault error
}

// execute computes a station's final result from its captured operands.
// Loads read memory here (speculatively, like real load units); stores
// only compute their address and value, deferring the write to commit so
// wrong-path stores never reach memory.
func (p *Processor) execute(s *Station) execOutcome {
	instr := s.Instr
	vj, vk := s.Vj, s.Vk
	imm := instr.Imm

	var out execOutcome

	switch instr.Op {
	case insts.OpAdd, insts.OpAddu:
		out.Value = vj + vk
	case insts.OpSub, insts.OpSubu:
		out.Value = vj - vk
	case insts.OpAnd:
		out.Value = vj & vk
	case insts.OpOr:
		out.Value = vj | vk
	case insts.OpXor:
		out.Value = vj ^ vk
	case insts.OpNor:
		out.Value = ^(vj | vk)
	case insts.OpSlt:
		out.Value = wordIf(int32(vj) < int32(vk))
	case insts.OpSltu:
		out.Value = wordIf(vj < vk)
	case insts.OpSll:
		out.Value = vj << instr.Shamt
	case insts.OpSrl:
		out.Value = vj >> instr.Shamt
	case insts.OpSra:
		out.Value = uint32(int32(vj) >> instr.Shamt)
	case insts.OpSllv:
		out.Value = vk << (vj & 0x1f)
	case insts.OpSrlv:
		out.Value = vk >> (vj & 0x1f)
	case insts.OpSrav:
		out.Value = uint32(int32(vk) >> (vj & 0x1f))

	case insts.OpAddi, insts.OpAddiu:
		out.Value = vj + uint32(imm)
	case insts.OpAndi:
		out.Value = vj & uint32(imm)
	case insts.OpOri:
		out.Value = vj | uint32(imm)
	case insts.OpXori:
		out.Value = vj ^ uint32(imm)
	case insts.OpSlti:
		out.Value = wordIf(int32(vj) < imm)
	case insts.OpSltiu:
		out.Value = wordIf(vj < uint32(imm))
	case insts.OpLui:
		out.Value = uint32(imm) << 16

	case insts.OpLw, insts.OpLh, insts.OpLhu, insts.OpLb, insts.OpLbu, insts.OpLwc1:
		out = p.executeLoad(instr, vj+uint32(imm))
	case insts.OpSw, insts.OpSh, insts.OpSb, insts.OpSwc1:
		out.IsStore = true
		out.Address = vj + uint32(imm)
		out.StoreSize = storeSize(instr.Op)
		out.Value = vk
		if instr.Op == insts.OpSwc1 {
			out.Value = p.fpFile.ReadBits(instr.Rt)
		}

	case insts.OpBeq:
		out.ActualTarget = branchOutcome(vj == vk, instr, s.PC)
	case insts.OpBne:
		out.ActualTarget = branchOutcome(vj != vk, instr, s.PC)
	case insts.OpBlez:
		out.ActualTarget = branchOutcome(int32(vj) <= 0, instr, s.PC)
	case insts.OpBgtz:
		out.ActualTarget = branchOutcome(int32(vj) > 0, instr, s.PC)
	case insts.OpBltz:
		out.ActualTarget = branchOutcome(int32(vj) < 0, instr, s.PC)
	case insts.OpBgez:
		out.ActualTarget = branchOutcome(int32(vj) >= 0, instr, s.PC)
	case insts.OpBc1t:
		out.ActualTarget = branchOutcome(vj != 0, instr, s.PC)
	case insts.OpBc1f:
		out.ActualTarget = branchOutcome(vj == 0, instr, s.PC)
	case insts.OpJ:
		out.ActualTarget, _ = instr.ImmediateTarget(s.PC)
	case insts.OpJal:
		out.ActualTarget, _ = instr.ImmediateTarget(s.PC)
		out.Value = s.PC + 4
	case insts.OpJr:
		out.ActualTarget = vj
	case insts.OpJalr:
		out.ActualTarget = vj
		out.Value = s.PC + 4

	case insts.OpMult:
		product := int64(int32(vj)) * int64(int32(vk))
		out.Hi = uint32(uint64(product) >> 32)
		out.Value = uint32(product)
	case insts.OpMultu:
		product := uint64(vj) * uint64(vk)
		out.Hi = uint32(product >> 32)
		out.Value = uint32(product)
	case insts.OpDiv:
		if int32(vk) != 0 {
			out.Hi = uint32(int32(vj) % int32(vk))
			out.Value = uint32(int32(vj) / int32(vk))
		}
	case insts.OpDivu:
		if vk != 0 {
			out.Hi = vj % vk
			out.Value = vj / vk
		}
	case insts.OpMfhi, insts.OpMflo:
		out.Value = vj
	case insts.OpMthi:
		out.Hi = vj
		out.Value = vk
	case insts.OpMtlo:
		out.Hi = vk
		out.Value = vj

	case insts.OpAddS:
		out.Value = fpBits(fpVal(vj) + fpVal(vk))
	case insts.OpSubS:
		out.Value = fpBits(fpVal(vj) - fpVal(vk))
	case insts.OpMulS:
		out.Value = fpBits(fpVal(vj) * fpVal(vk))
	case insts.OpDivS:
		out.Value = fpBits(fpVal(vj) / fpVal(vk))
	case insts.OpAbsS:
		v := fpVal(vj)
		if v < 0 {
			v = -v
		}
		out.Value = fpBits(v)
	case insts.OpNegS:
		out.Value = fpBits(-fpVal(vj))
	case insts.OpMovS:
		out.Value = vj
	case insts.OpCvtSW:
		out.Value = fpBits(float32(int32(vj)))
	case insts.OpCvtWS:
		out.Value = uint32(int32(fpVal(vj)))
	case insts.OpCEqS:
		out.Value = wordIf(fpVal(vj) == fpVal(vk))
		out.WritesCC = true
	case insts.OpCLtS:
		out.Value = wordIf(fpVal(vj) < fpVal(vk))
		out.WritesCC = true
	case insts.OpCLeS:
		out.Value = wordIf(fpVal(vj) <= fpVal(vk))
		out.WritesCC = true
	}

	return out
}

// executeLoad reads memory for a load, through the data cache if one is
// wired in. A misaligned or out-of-range address records a fault instead
// of a value; the fault fires when the entry reaches the commit point.
func (p *Processor) executeLoad(instr insts.Instruction, addr uint32) execOutcome {
	out := execOutcome{Address: addr}
	size := storeSize(instr.Op)

	if size > 1 && addr%uint32(size) != 0 {
		out.Fault = simerr.NewMemoryError(simerr.MemMisaligned, addr)
		return out
	}

	var raw uint32
	if p.dcache != nil {
		raw = p.dcache.Read(addr, size).Data
	} else {
		var ok bool
		switch size {
		case 4:
			raw, ok = p.memory.ReadWord(addr)
		case 2:
			var v uint16
			v, ok = p.memory.ReadHalfword(addr)
			raw = uint32(v)
		default:
			var v uint8
			v, ok = p.memory.ReadByte(addr)
			raw = uint32(v)
		}
		if !ok {
			out.Fault = simerr.NewMemoryError(simerr.MemOutOfBounds, addr)
			return out
		}
	}

	switch instr.Op {
	case insts.OpLh:
		out.Value = uint32(int32(int16(uint16(raw))))
	case insts.OpLb:
		out.Value = uint32(int32(int8(uint8(raw))))
	default:
		out.Value = raw
	}
	return out
}

// branchOutcome resolves a conditional branch to its actual target: the
// encoded target when taken, the fall-through PC when not.
func branchOutcome(taken bool, instr insts.Instruction, pc uint32) uint32 {
	if taken {
		if target, ok := instr.ImmediateTarget(pc); ok {
			return target
		}
	}
	return pc + 4
}

func storeSize(op insts.Op) int {
	switch op {
	case insts.OpLw, insts.OpSw, insts.OpLwc1, insts.OpSwc1:
		return 4
	case insts.OpLh, insts.OpLhu, insts.OpSh:
		return 2
	default:
		return 1
	}
}

func wordIf(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func fpVal(bits uint32) float32 { return math.Float32frombits(bits) }
func fpBits(v float32) uint32   { return math.Float32bits(v) }

// isFPCompute reports whether op reads its operands from the FP register
// file rather than the integer file.
func isFPCompute(op insts.Op) bool {
	switch op {
	case insts.OpAddS, insts.OpSubS, insts.OpMulS, insts.OpDivS,
		insts.OpAbsS, insts.OpNegS, insts.OpMovS,
		insts.OpCvtSW, insts.OpCvtWS,
		insts.OpCEqS, insts.OpCLtS, insts.OpCLeS:
		return true
	default:
		return false
	}
}

// fpDestination returns the FP register a COP1 compute instruction
// writes, if any.
func fpDestination(instr insts.Instruction) (uint8, bool) {
	switch instr.Op {
	case insts.OpAddS, insts.OpSubS, insts.OpMulS, insts.OpDivS,
		insts.OpAbsS, insts.OpNegS, insts.OpMovS,
		insts.OpCvtSW, insts.OpCvtWS:
		return instr.Rd, true
	case insts.OpLwc1:
		return instr.Rt, true
	default:
		return 0, false
	}
}
