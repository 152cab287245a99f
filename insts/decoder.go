package insts

// Decoder turns a 32-bit instruction word into an Instruction. It is a pure
// function of its input: the same word always decodes to the same variant,
// and every 32-bit value decodes to something (Nop, a supported variant, or
// InvalidInstruction).
type Decoder struct{}

// NewDecoder creates a Decoder. Decoder carries no state; the value exists
// so call sites read the same way as the other stateful units in this
// module (LoadStoreUnit, BranchUnit, ...).
func NewDecoder() *Decoder {
	return &Decoder{}
}

// MIPS-I primary opcodes (bits 31:26).
const (
	opSpecial = 0x00
	opRegimm  = 0x01
	opJ       = 0x02
	opJal     = 0x03
	opBeq     = 0x04
	opBne     = 0x05
	opBlez    = 0x06
	opBgtz    = 0x07
	opAddi    = 0x08
	opAddiu   = 0x09
	opSlti    = 0x0a
	opSltiu   = 0x0b
	opAndi    = 0x0c
	opOri     = 0x0d
	opXori    = 0x0e
	opLui     = 0x0f
	opCop1    = 0x11
	opLb      = 0x20
	opLh      = 0x21
	opLwc1op  = 0x22
	opLw      = 0x23
	opLbu     = 0x24
	opLhu     = 0x25
	opSb      = 0x28
	opSh      = 0x29
	opSwc1op  = 0x2a
	opSw      = 0x2b
)

// SPECIAL (opcode 0) function codes (bits 5:0).
const (
	fnSll     = 0x00
	fnSrl     = 0x02
	fnSra     = 0x03
	fnSllv    = 0x04
	fnSrlv    = 0x06
	fnSrav    = 0x07
	fnJr      = 0x08
	fnJalr    = 0x09
	fnSyscall = 0x0c
	fnBreak   = 0x0d
	fnMfhi    = 0x10
	fnMthi    = 0x11
	fnMflo    = 0x12
	fnMtlo    = 0x13
	fnMult    = 0x18
	fnMultu   = 0x19
	fnDiv     = 0x1a
	fnDivu    = 0x1b
	fnAdd     = 0x20
	fnAddu    = 0x21
	fnSub     = 0x22
	fnSubu    = 0x23
	fnAnd     = 0x24
	fnOr      = 0x25
	fnXor     = 0x26
	fnNor     = 0x27
	fnSlt     = 0x2a
	fnSltu    = 0x2b
)

// REGIMM (opcode 1) rt-field subcodes.
const (
	rtBltz = 0x00
	rtBgez = 0x01
)

// COP1 (opcode 0x11) fmt-field (bits 25:21) and function codes.
const (
	fmtSingle = 0x10
	fmtWord   = 0x14
	fmtBC     = 0x08

	fnFAdd  = 0x00
	fnFSub  = 0x01
	fnFMul  = 0x02
	fnFDiv  = 0x03
	fnFAbs  = 0x05
	fnFMov  = 0x06
	fnFNeg  = 0x07
	fnFCvtW = 0x24
	fnFCvtS = 0x20
	fnFCEq  = 0x32
	fnFCLt  = 0x3c
	fnFCLe  = 0x3e

	bcTrue  = 0x01
	bcFalse = 0x00
)

// Decode turns a 32-bit big-endian-decoded instruction word into an
// Instruction. Decode is total: unrecognised encodings produce
// OpInvalid rather than a panic.
func (d *Decoder) Decode(word uint32) Instruction {
	if word == 0x00000000 {
		return Instruction{Op: OpNop, Raw: word}
	}

	opcode := (word >> 26) & 0x3f
	rs := uint8((word >> 21) & 0x1f)
	rt := uint8((word >> 16) & 0x1f)
	rd := uint8((word >> 11) & 0x1f)
	shamt := uint8((word >> 6) & 0x1f)
	funct := word & 0x3f
	imm16 := uint16(word & 0xffff)
	jtarg := (word & 0x3ffffff) << 2

	switch opcode {
	case opSpecial:
		return d.decodeSpecial(word, rs, rt, rd, shamt, funct)
	case opRegimm:
		return d.decodeRegimm(word, rs, rt, imm16)
	case opJ:
		return Instruction{Op: OpJ, Target: jtarg, Raw: word}
	case opJal:
		return Instruction{Op: OpJal, Target: jtarg, Raw: word}
	case opBeq:
		return Instruction{Op: OpBeq, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opBne:
		return Instruction{Op: OpBne, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opBlez:
		return Instruction{Op: OpBlez, Rs: rs, Imm: signExtend16(imm16), Raw: word}
	case opBgtz:
		return Instruction{Op: OpBgtz, Rs: rs, Imm: signExtend16(imm16), Raw: word}
	case opAddi:
		return Instruction{Op: OpAddi, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opAddiu:
		return Instruction{Op: OpAddiu, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opSlti:
		return Instruction{Op: OpSlti, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opSltiu:
		return Instruction{Op: OpSltiu, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opAndi:
		return Instruction{Op: OpAndi, Rs: rs, Rt: rt, Imm: int32(imm16), Raw: word}
	case opOri:
		return Instruction{Op: OpOri, Rs: rs, Rt: rt, Imm: int32(imm16), Raw: word}
	case opXori:
		return Instruction{Op: OpXori, Rs: rs, Rt: rt, Imm: int32(imm16), Raw: word}
	case opLui:
		return Instruction{Op: OpLui, Rt: rt, Imm: int32(imm16), Raw: word}
	case opCop1:
		return d.decodeCop1(word, rs, rt, rd, funct)
	case opLb:
		return Instruction{Op: OpLb, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opLh:
		return Instruction{Op: OpLh, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opLwc1op:
		return Instruction{Op: OpLwc1, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opLw:
		return Instruction{Op: OpLw, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opLbu:
		return Instruction{Op: OpLbu, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opLhu:
		return Instruction{Op: OpLhu, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opSb:
		return Instruction{Op: OpSb, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opSh:
		return Instruction{Op: OpSh, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opSwc1op:
		return Instruction{Op: OpSwc1, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	case opSw:
		return Instruction{Op: OpSw, Rs: rs, Rt: rt, Imm: signExtend16(imm16), Raw: word}
	default:
		return Instruction{Op: OpInvalid, Raw: word}
	}
}

func (d *Decoder) decodeSpecial(word uint32, rs, rt, rd, shamt uint8, funct uint32) Instruction {
	switch funct {
	case fnSll:
		return Instruction{Op: OpSll, Rt: rt, Rd: rd, Shamt: shamt, Raw: word}
	case fnSrl:
		return Instruction{Op: OpSrl, Rt: rt, Rd: rd, Shamt: shamt, Raw: word}
	case fnSra:
		return Instruction{Op: OpSra, Rt: rt, Rd: rd, Shamt: shamt, Raw: word}
	case fnSllv:
		return Instruction{Op: OpSllv, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnSrlv:
		return Instruction{Op: OpSrlv, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnSrav:
		return Instruction{Op: OpSrav, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnJr:
		return Instruction{Op: OpJr, Rs: rs, Raw: word}
	case fnJalr:
		destRd := rd
		if destRd == 0 {
			destRd = 31
		}
		return Instruction{Op: OpJalr, Rs: rs, Rd: destRd, Raw: word}
	case fnSyscall:
		return Instruction{Op: OpSyscall, Raw: word}
	case fnBreak:
		return Instruction{Op: OpBreak, Raw: word}
	case fnMfhi:
		return Instruction{Op: OpMfhi, Rd: rd, Raw: word}
	case fnMthi:
		return Instruction{Op: OpMthi, Rs: rs, Raw: word}
	case fnMflo:
		return Instruction{Op: OpMflo, Rd: rd, Raw: word}
	case fnMtlo:
		return Instruction{Op: OpMtlo, Rs: rs, Raw: word}
	case fnMult:
		return Instruction{Op: OpMult, Rs: rs, Rt: rt, Raw: word}
	case fnMultu:
		return Instruction{Op: OpMultu, Rs: rs, Rt: rt, Raw: word}
	case fnDiv:
		return Instruction{Op: OpDiv, Rs: rs, Rt: rt, Raw: word}
	case fnDivu:
		return Instruction{Op: OpDivu, Rs: rs, Rt: rt, Raw: word}
	case fnAdd:
		return Instruction{Op: OpAdd, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnAddu:
		return Instruction{Op: OpAddu, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnSub:
		return Instruction{Op: OpSub, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnSubu:
		return Instruction{Op: OpSubu, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnAnd:
		return Instruction{Op: OpAnd, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnOr:
		return Instruction{Op: OpOr, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnXor:
		return Instruction{Op: OpXor, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnNor:
		return Instruction{Op: OpNor, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnSlt:
		return Instruction{Op: OpSlt, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	case fnSltu:
		return Instruction{Op: OpSltu, Rs: rs, Rt: rt, Rd: rd, Raw: word}
	default:
		return Instruction{Op: OpInvalid, Raw: word}
	}
}

func (d *Decoder) decodeRegimm(word uint32, rs, rt uint8, imm16 uint16) Instruction {
	switch rt {
	case rtBltz:
		return Instruction{Op: OpBltz, Rs: rs, Imm: signExtend16(imm16), Raw: word}
	case rtBgez:
		return Instruction{Op: OpBgez, Rs: rs, Imm: signExtend16(imm16), Raw: word}
	default:
		return Instruction{Op: OpInvalid, Raw: word}
	}
}

func (d *Decoder) decodeCop1(word uint32, rs, rt, rd uint8, funct uint32) Instruction {
	fmt := rs
	switch fmt {
	case fmtBC:
		switch rt {
		case bcTrue:
			imm16 := uint16(word & 0xffff)
			return Instruction{Op: OpBc1t, Imm: signExtend16(imm16), Raw: word}
		case bcFalse:
			imm16 := uint16(word & 0xffff)
			return Instruction{Op: OpBc1f, Imm: signExtend16(imm16), Raw: word}
		default:
			return Instruction{Op: OpInvalid, Raw: word}
		}
	case fmtSingle:
		switch funct {
		case fnFAdd:
			return Instruction{Op: OpAddS, Raw: word}.withFDFormat(rt, (word>>11)&0x1f, (word>>6)&0x1f)
		case fnFSub:
			return Instruction{Op: OpSubS, Raw: word}.withFDFormat(rt, (word>>11)&0x1f, (word>>6)&0x1f)
		case fnFMul:
			return Instruction{Op: OpMulS, Raw: word}.withFDFormat(rt, (word>>11)&0x1f, (word>>6)&0x1f)
		case fnFDiv:
			return Instruction{Op: OpDivS, Raw: word}.withFDFormat(rt, (word>>11)&0x1f, (word>>6)&0x1f)
		case fnFAbs:
			return Instruction{Op: OpAbsS, Rt: rd, Rd: uint8((word >> 6) & 0x1f), Raw: word}
		case fnFMov:
			return Instruction{Op: OpMovS, Rt: rd, Rd: uint8((word >> 6) & 0x1f), Raw: word}
		case fnFNeg:
			return Instruction{Op: OpNegS, Rt: rd, Rd: uint8((word >> 6) & 0x1f), Raw: word}
		case fnFCvtW:
			return Instruction{Op: OpCvtWS, Rt: rd, Rd: uint8((word >> 6) & 0x1f), Raw: word}
		case fnFCEq:
			return Instruction{Op: OpCEqS, Rs: rt, Rt: rd, Raw: word}
		case fnFCLt:
			return Instruction{Op: OpCLtS, Rs: rt, Rt: rd, Raw: word}
		case fnFCLe:
			return Instruction{Op: OpCLeS, Rs: rt, Rt: rd, Raw: word}
		default:
			return Instruction{Op: OpInvalid, Raw: word}
		}
	case fmtWord:
		switch funct {
		case fnFCvtS:
			return Instruction{Op: OpCvtSW, Rt: rd, Rd: uint8((word >> 6) & 0x1f), Raw: word}
		default:
			return Instruction{Op: OpInvalid, Raw: word}
		}
	default:
		return Instruction{Op: OpInvalid, Raw: word}
	}
}

// withFDFormat fills in a three-operand FP instruction's Rs/Rt/Rd as
// (ft, fs, fd), matching the COP1 encoding where bits 20:16 hold ft,
// 15:11 hold fs and 10:6 hold fd.
func (i Instruction) withFDFormat(ft uint8, fs, fd uint32) Instruction {
	i.Rs = ft
	i.Rt = uint8(fs)
	i.Rd = uint8(fd)
	return i
}

func signExtend16(v uint16) int32 {
	return int32(int16(v))
}
