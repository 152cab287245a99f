package emu

// ALU implements the integer arithmetic and logical operations of the
// R-type and I-type instruction families. Results always wrap modulo 2^32;
// the architecture has no integer overflow trap in this subset.
type ALU struct {
	regFile *RegFile
}

// NewALU creates an ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

func (a *ALU) Add(rd, rs, rt uint8) { a.regFile.Write(rd, a.regFile.Read(rs)+a.regFile.Read(rt)) }
func (a *ALU) Sub(rd, rs, rt uint8) { a.regFile.Write(rd, a.regFile.Read(rs)-a.regFile.Read(rt)) }
func (a *ALU) And(rd, rs, rt uint8) { a.regFile.Write(rd, a.regFile.Read(rs)&a.regFile.Read(rt)) }
func (a *ALU) Or(rd, rs, rt uint8)  { a.regFile.Write(rd, a.regFile.Read(rs)|a.regFile.Read(rt)) }
func (a *ALU) Xor(rd, rs, rt uint8) { a.regFile.Write(rd, a.regFile.Read(rs)^a.regFile.Read(rt)) }
func (a *ALU) Nor(rd, rs, rt uint8) { a.regFile.Write(rd, ^(a.regFile.Read(rs) | a.regFile.Read(rt))) }

// Slt sets rd to 1 if the signed value of rs is less than rt, else 0.
func (a *ALU) Slt(rd, rs, rt uint8) {
	if int32(a.regFile.Read(rs)) < int32(a.regFile.Read(rt)) {
		a.regFile.Write(rd, 1)
	} else {
		a.regFile.Write(rd, 0)
	}
}

// Sltu sets rd to 1 if the unsigned value of rs is less than rt, else 0.
func (a *ALU) Sltu(rd, rs, rt uint8) {
	if a.regFile.Read(rs) < a.regFile.Read(rt) {
		a.regFile.Write(rd, 1)
	} else {
		a.regFile.Write(rd, 0)
	}
}

func (a *ALU) Sll(rd, rt uint8, shamt uint8) { a.regFile.Write(rd, a.regFile.Read(rt)<<shamt) }
func (a *ALU) Srl(rd, rt uint8, shamt uint8) { a.regFile.Write(rd, a.regFile.Read(rt)>>shamt) }

func (a *ALU) Sra(rd, rt uint8, shamt uint8) {
	a.regFile.Write(rd, uint32(int32(a.regFile.Read(rt))>>shamt))
}

func (a *ALU) Sllv(rd, rt, rs uint8) {
	a.regFile.Write(rd, a.regFile.Read(rt)<<(a.regFile.Read(rs)&0x1f))
}

func (a *ALU) Srlv(rd, rt, rs uint8) {
	a.regFile.Write(rd, a.regFile.Read(rt)>>(a.regFile.Read(rs)&0x1f))
}

func (a *ALU) Srav(rd, rt, rs uint8) {
	a.regFile.Write(rd, uint32(int32(a.regFile.Read(rt))>>(a.regFile.Read(rs)&0x1f)))
}

func (a *ALU) Addi(rt, rs uint8, imm int32) { a.regFile.Write(rt, a.regFile.Read(rs)+uint32(imm)) }
func (a *ALU) Andi(rt, rs uint8, imm int32) { a.regFile.Write(rt, a.regFile.Read(rs)&uint32(imm)) }
func (a *ALU) Ori(rt, rs uint8, imm int32)  { a.regFile.Write(rt, a.regFile.Read(rs)|uint32(imm)) }
func (a *ALU) Xori(rt, rs uint8, imm int32) { a.regFile.Write(rt, a.regFile.Read(rs)^uint32(imm)) }

func (a *ALU) Slti(rt, rs uint8, imm int32) {
	if int32(a.regFile.Read(rs)) < imm {
		a.regFile.Write(rt, 1)
	} else {
		a.regFile.Write(rt, 0)
	}
}

func (a *ALU) Sltiu(rt, rs uint8, imm int32) {
	if a.regFile.Read(rs) < uint32(imm) {
		a.regFile.Write(rt, 1)
	} else {
		a.regFile.Write(rt, 0)
	}
}

func (a *ALU) Lui(rt uint8, imm int32) { a.regFile.Write(rt, uint32(imm)<<16) }

// Mult computes the signed 64-bit product of rs and rt and stores it in
// (HI, LO).
func (a *ALU) Mult(rs, rt uint8) {
	product := int64(int32(a.regFile.Read(rs))) * int64(int32(a.regFile.Read(rt)))
	a.regFile.WriteHiLo(uint32(uint64(product)>>32), uint32(product))
}

// Multu computes the unsigned 64-bit product of rs and rt and stores it in
// (HI, LO).
func (a *ALU) Multu(rs, rt uint8) {
	product := uint64(a.regFile.Read(rs)) * uint64(a.regFile.Read(rt))
	a.regFile.WriteHiLo(uint32(product>>32), uint32(product))
}

// Div computes the signed quotient/remainder of rs/rt into (HI=remainder,
// LO=quotient). Division by zero leaves HI/LO undefined rather than
// faulting, per the architecture's non-trapping integer division.
func (a *ALU) Div(rs, rt uint8) {
	divisor := int32(a.regFile.Read(rt))
	if divisor == 0 {
		return
	}
	dividend := int32(a.regFile.Read(rs))
	a.regFile.WriteHiLo(uint32(dividend%divisor), uint32(dividend/divisor))
}

// Divu computes the unsigned quotient/remainder of rs/rt into (HI=remainder,
// LO=quotient).
func (a *ALU) Divu(rs, rt uint8) {
	divisor := a.regFile.Read(rt)
	if divisor == 0 {
		return
	}
	dividend := a.regFile.Read(rs)
	a.regFile.WriteHiLo(dividend%divisor, dividend/divisor)
}

func (a *ALU) Mfhi(rd uint8) { hi, _ := a.regFile.ReadHiLo(); a.regFile.Write(rd, hi) }
func (a *ALU) Mflo(rd uint8) { _, lo := a.regFile.ReadHiLo(); a.regFile.Write(rd, lo) }

func (a *ALU) Mthi(rs uint8) {
	_, lo := a.regFile.ReadHiLo()
	a.regFile.WriteHiLo(a.regFile.Read(rs), lo)
}

func (a *ALU) Mtlo(rs uint8) {
	hi, _ := a.regFile.ReadHiLo()
	a.regFile.WriteHiLo(hi, a.regFile.Read(rs))
}

// FPU implements the single-precision floating point subset: ADD.S/SUB.S/
// MUL.S/DIV.S/ABS.S/NEG.S/MOV.S/CVT.S.W/CVT.W.S and the three-way
// C.cond.S comparisons, which set the FP condition code consumed by
// BC1T/BC1F.
type FPU struct {
	fpFile *FPRegFile
}

// NewFPU creates an FPU connected to the given floating point register file.
func NewFPU(fpFile *FPRegFile) *FPU {
	return &FPU{fpFile: fpFile}
}

func (f *FPU) AddS(fd, fs, ft uint8) {
	f.fpFile.WriteFloat(fd, f.fpFile.ReadFloat(fs)+f.fpFile.ReadFloat(ft))
}

func (f *FPU) SubS(fd, fs, ft uint8) {
	f.fpFile.WriteFloat(fd, f.fpFile.ReadFloat(fs)-f.fpFile.ReadFloat(ft))
}

func (f *FPU) MulS(fd, fs, ft uint8) {
	f.fpFile.WriteFloat(fd, f.fpFile.ReadFloat(fs)*f.fpFile.ReadFloat(ft))
}

func (f *FPU) DivS(fd, fs, ft uint8) {
	f.fpFile.WriteFloat(fd, f.fpFile.ReadFloat(fs)/f.fpFile.ReadFloat(ft))
}

func (f *FPU) AbsS(fd, fs uint8) {
	v := f.fpFile.ReadFloat(fs)
	if v < 0 {
		v = -v
	}
	f.fpFile.WriteFloat(fd, v)
}

func (f *FPU) NegS(fd, fs uint8) { f.fpFile.WriteFloat(fd, -f.fpFile.ReadFloat(fs)) }
func (f *FPU) MovS(fd, fs uint8) { f.fpFile.WriteBits(fd, f.fpFile.ReadBits(fs)) }

// CvtSW converts the integer bit pattern in fs to a single-precision float
// in fd.
func (f *FPU) CvtSW(fd, fs uint8) {
	f.fpFile.WriteFloat(fd, float32(int32(f.fpFile.ReadBits(fs))))
}

// CvtWS converts the single-precision float in fs to its integer bit
// pattern in fd (truncating toward zero).
func (f *FPU) CvtWS(fd, fs uint8) {
	f.fpFile.WriteBits(fd, uint32(int32(f.fpFile.ReadFloat(fs))))
}

func (f *FPU) CEqS(fs, ft uint8) { f.fpFile.CC = f.fpFile.ReadFloat(fs) == f.fpFile.ReadFloat(ft) }
func (f *FPU) CLtS(fs, ft uint8) { f.fpFile.CC = f.fpFile.ReadFloat(fs) < f.fpFile.ReadFloat(ft) }
func (f *FPU) CLeS(fs, ft uint8) { f.fpFile.CC = f.fpFile.ReadFloat(fs) <= f.fpFile.ReadFloat(ft) }
