package emu

// LoadStoreUnit implements the memory-referencing instructions: loads sign-
// or zero-extend into a GPR, stores truncate a GPR into memory, and LWC1/SWC1
// move raw bit patterns to/from the floating point file.
type LoadStoreUnit struct {
	regFile *RegFile
	fpFile  *FPRegFile
	memory  *Memory
}

// NewLoadStoreUnit creates a LoadStoreUnit over the given register files and
// memory.
func NewLoadStoreUnit(regFile *RegFile, fpFile *FPRegFile, memory *Memory) *LoadStoreUnit {
	return &LoadStoreUnit{regFile: regFile, fpFile: fpFile, memory: memory}
}

func effectiveAddress(base uint32, imm int32) uint32 {
	return uint32(int64(base) + int64(imm))
}

// LW loads a word into rt. Returns false on misalignment or out-of-bounds.
func (u *LoadStoreUnit) LW(rt, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	v, ok := u.memory.ReadWord(addr)
	if !ok {
		return false
	}
	u.regFile.Write(rt, v)
	return true
}

// LH loads a sign-extended halfword into rt.
func (u *LoadStoreUnit) LH(rt, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	v, ok := u.memory.ReadHalfword(addr)
	if !ok {
		return false
	}
	u.regFile.Write(rt, uint32(int32(int16(v))))
	return true
}

// LHU loads a zero-extended halfword into rt.
func (u *LoadStoreUnit) LHU(rt, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	v, ok := u.memory.ReadHalfword(addr)
	if !ok {
		return false
	}
	u.regFile.Write(rt, uint32(v))
	return true
}

// LB loads a sign-extended byte into rt.
func (u *LoadStoreUnit) LB(rt, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	v, ok := u.memory.ReadByte(addr)
	if !ok {
		return false
	}
	u.regFile.Write(rt, uint32(int32(int8(v))))
	return true
}

// LBU loads a zero-extended byte into rt.
func (u *LoadStoreUnit) LBU(rt, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	v, ok := u.memory.ReadByte(addr)
	if !ok {
		return false
	}
	u.regFile.Write(rt, uint32(v))
	return true
}

// SW stores the word in rt to memory.
func (u *LoadStoreUnit) SW(rt, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	return u.memory.WriteWord(addr, u.regFile.Read(rt))
}

// SH stores the low halfword of rt to memory.
func (u *LoadStoreUnit) SH(rt, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	return u.memory.WriteHalfword(addr, uint16(u.regFile.Read(rt)))
}

// SB stores the low byte of rt to memory.
func (u *LoadStoreUnit) SB(rt, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	return u.memory.WriteByte(addr, uint8(u.regFile.Read(rt)))
}

// LWC1 loads a word from memory into floating point register ft.
func (u *LoadStoreUnit) LWC1(ft, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	v, ok := u.memory.ReadWord(addr)
	if !ok {
		return false
	}
	u.fpFile.WriteBits(ft, v)
	return true
}

// SWC1 stores floating point register ft to memory.
func (u *LoadStoreUnit) SWC1(ft, rs uint8, imm int32) bool {
	addr := effectiveAddress(u.regFile.Read(rs), imm)
	return u.memory.WriteWord(addr, u.fpFile.ReadBits(ft))
}
