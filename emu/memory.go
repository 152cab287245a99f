package emu

import (
	"github.com/vmips-go/vmips/simerr"
	"github.com/vmips-go/vmips/simlog"
)

// Permission bits for a memory Region.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermExec
)

// Region is one entry of the ordered region-permission table. The first
// region in the table whose [Start, End) covers an address governs that
// byte's permissions.
type Region struct {
	Start, End uint32
	Perm       Permission
}

func (r Region) covers(addr uint32) bool {
	return addr >= r.Start && addr < r.End
}

// Device is the uniform interface a memory-mapped device implements. Each
// device occupies a 4 KiB window starting at the base address it was
// registered under.
type Device interface {
	ReadByte(offset uint32) uint8
	WriteByte(offset uint32, v uint8)
}

// DeviceWindowSize is the fixed stride every mapped device occupies.
const DeviceWindowSize = 4 * 1024

// highAddressBase is the boundary above which addresses are folded back
// into the low 20 bits of physical memory, giving a synthetic upper address
// space (matching the source simulator's translate_address).
const highAddressBase = 0x10000000

// Mode selects how Memory treats addresses that no region in the table
// covers.
type Mode int

const (
	// ModePermissive allows access to any in-bounds address that no region
	// in the table covers (the default construction mode, kept for
	// backward compatibility with legacy example programs).
	ModePermissive Mode = iota
	// ModeStrict refuses any access to an address that no region covers.
	ModeStrict
)

// Memory is a flat byte-addressed backing store with a region-permission
// table, a memory-mapped device map, and a monotonically increasing heap
// pointer for sbrk.
type Memory struct {
	bytes []byte
	mode  Mode

	regions []Region
	devices map[uint32]Device

	heapTop uint32

	log *simlog.Logger
}

// defaultRegions mirrors the five overlapping regions the reference
// simulator seeds before any user region is added: a general-purpose rwx
// window at the bottom of the space, a read-execute text window, a
// read-write data window, a read-write stack window near the top of the
// 32-bit space, and a duplicate general read-write window.
func defaultRegions() []Region {
	return []Region{
		{Start: 0x00000000, End: 0x00010000, Perm: PermRead | PermWrite | PermExec},
		{Start: 0x00010000, End: 0x00100000, Perm: PermRead | PermExec},
		{Start: 0x00100000, End: 0x00400000, Perm: PermRead | PermWrite},
		{Start: 0x7fff0000, End: 0x80000000, Perm: PermRead | PermWrite},
		{Start: 0x00000000, End: 0x00010000, Perm: PermRead | PermWrite},
	}
}

// defaultHeapTop is the heap pointer's starting value in permissive mode.
const defaultHeapTop = 0x00200000

// NewMemory creates a Memory of the given size in permissive mode, seeded
// with the default region table and heap pointer.
func NewMemory(size uint32) *Memory {
	return &Memory{
		bytes:   make([]byte, size),
		mode:    ModePermissive,
		regions: defaultRegions(),
		devices: make(map[uint32]Device),
		heapTop: defaultHeapTop,
		log:     simlog.Default(),
	}
}

// NewStrictMemory creates a Memory of the given size in strict mode: no
// region overrides are seeded, and an address is only accessible once a
// region covering it has been added with AddRegion.
func NewStrictMemory(size uint32) *Memory {
	return &Memory{
		bytes:   make([]byte, size),
		mode:    ModeStrict,
		regions: nil,
		devices: make(map[uint32]Device),
		heapTop: defaultHeapTop,
		log:     simlog.Default(),
	}
}

// SetLogger redirects the warnings permissive mode emits for tolerated
// misaligned accesses.
func (m *Memory) SetLogger(log *simlog.Logger) {
	m.log = log
}

// allowMisaligned decides what a misaligned word/halfword access does:
// strict mode refuses it, permissive mode warns and lets the byte-wise
// access proceed.
func (m *Memory) allowMisaligned(kind string, addr uint32) bool {
	if m.mode == ModeStrict {
		return false
	}
	m.log.Warnf("misaligned %s at address 0x%08x", kind, addr)
	return true
}

// Size returns the number of addressable bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.bytes))
}

// AddRegion appends a region to the permission table. Regions are matched
// in the order they were added; AddRegion does not reorder or merge.
func (m *Memory) AddRegion(r Region) {
	m.regions = append(m.regions, r)
}

// MapDevice registers a device at base, which must be 4 KiB aligned.
func (m *Memory) MapDevice(base uint32, d Device) {
	m.devices[base] = d
}

func (m *Memory) deviceFor(addr uint32) (Device, uint32, bool) {
	base := addr &^ (DeviceWindowSize - 1)
	d, ok := m.devices[base]
	return d, addr - base, ok
}

// translateAddress implements the high-address masking rule: addresses at
// or above highAddressBase are folded to their low 20 bits, mapping a
// synthetic upper address space back onto physical memory. Addresses below
// that are the identity map.
func translateAddress(addr uint32) uint32 {
	if addr >= highAddressBase {
		return addr & 0xfffff
	}
	return addr
}

func (m *Memory) permissionAt(addr uint32) (Permission, bool) {
	for _, r := range m.regions {
		if r.covers(addr) {
			return r.Perm, true
		}
	}
	return 0, false
}

func (m *Memory) checkAccess(addr uint32, need Permission) bool {
	perm, found := m.permissionAt(addr)
	if !found {
		return m.mode == ModePermissive
	}
	return perm&need == need
}

// ReadByte reads a single byte. Byte access has no alignment requirement.
func (m *Memory) ReadByte(addr uint32) (uint8, bool) {
	if d, off, ok := m.deviceFor(addr); ok {
		return d.ReadByte(off), true
	}
	pa := translateAddress(addr)
	if !m.checkAccess(pa, PermRead) || pa >= m.Size() {
		return 0, false
	}
	return m.bytes[pa], true
}

// WriteByte writes a single byte, returning whether the write succeeded.
func (m *Memory) WriteByte(addr uint32, v uint8) bool {
	if d, off, ok := m.deviceFor(addr); ok {
		d.WriteByte(off, v)
		return true
	}
	pa := translateAddress(addr)
	if !m.checkAccess(pa, PermWrite) || pa >= m.Size() {
		return false
	}
	m.bytes[pa] = v
	return true
}

// ReadHalfword reads a little-endian 16-bit value. A misaligned addr is
// refused in strict mode and tolerated with a warning otherwise.
func (m *Memory) ReadHalfword(addr uint32) (uint16, bool) {
	if addr%2 != 0 && !m.allowMisaligned("halfword read", addr) {
		return 0, false
	}
	lo, ok1 := m.ReadByte(addr)
	hi, ok2 := m.ReadByte(addr + 1)
	if !ok1 || !ok2 {
		return 0, false
	}
	return uint16(lo) | uint16(hi)<<8, true
}

// WriteHalfword writes a little-endian 16-bit value. A misaligned addr is
// refused in strict mode and tolerated with a warning otherwise.
func (m *Memory) WriteHalfword(addr uint32, v uint16) bool {
	if addr%2 != 0 && !m.allowMisaligned("halfword write", addr) {
		return false
	}
	ok1 := m.WriteByte(addr, uint8(v))
	ok2 := m.WriteByte(addr+1, uint8(v>>8))
	return ok1 && ok2
}

// ReadWord reads a little-endian 32-bit value. A misaligned addr is
// refused in strict mode and tolerated with a warning otherwise.
func (m *Memory) ReadWord(addr uint32) (uint32, bool) {
	if addr%4 != 0 && !m.allowMisaligned("word read", addr) {
		return 0, false
	}
	var v uint32
	for i := uint32(0); i < 4; i++ {
		b, ok := m.ReadByte(addr + i)
		if !ok {
			return 0, false
		}
		v |= uint32(b) << (8 * i)
	}
	return v, true
}

// WriteWord writes a little-endian 32-bit value. A misaligned addr is
// refused in strict mode and tolerated with a warning otherwise.
func (m *Memory) WriteWord(addr uint32, v uint32) bool {
	if addr%4 != 0 && !m.allowMisaligned("word write", addr) {
		return false
	}
	for i := uint32(0); i < 4; i++ {
		if !m.WriteByte(addr+i, uint8(v>>(8*i))) {
			return false
		}
	}
	return true
}

// WriteWordInit writes a word during program loading, bypassing permission
// and region checks (but not the bounds check). Misalignment during load is
// tolerated rather than fatal, matching the loader's unchecked write path.
func (m *Memory) WriteWordInit(addr uint32, v uint32) {
	for i := uint32(0); i < 4; i++ {
		a := addr + i
		if int(a) < len(m.bytes) {
			m.bytes[a] = uint8(v >> (8 * i))
		}
	}
}

// WriteByteInit writes a byte during program loading, bypassing permission
// checks. The address goes through the same high-address translation as
// an ordinary access, so a segment loaded at or above highAddressBase lands
// where later reads of that address look for it.
func (m *Memory) WriteByteInit(addr uint32, v uint8) {
	pa := translateAddress(addr)
	if int(pa) < len(m.bytes) {
		m.bytes[pa] = v
	}
}

// Sbrk advances the heap pointer by n bytes and returns the previous value.
// It refuses to grow the heap past the end of memory.
func (m *Memory) Sbrk(n int32) (uint32, bool) {
	next := int64(m.heapTop) + int64(n)
	if next < 0 || uint32(next) > m.Size() {
		return 0, false
	}
	old := m.heapTop
	m.heapTop = uint32(next)
	return old, true
}

// HeapTop returns the current heap pointer.
func (m *Memory) HeapTop() uint32 {
	return m.heapTop
}

// ReadWordStrict behaves like ReadWord but additionally returns a typed
// error describing the violation, for callers that must distinguish
// out-of-bounds from misalignment rather than collapsing both to "not ok".
func (m *Memory) ReadWordStrict(addr uint32) (uint32, error) {
	if addr%4 != 0 {
		return 0, simerr.NewMemoryError(simerr.MemMisaligned, addr)
	}
	v, ok := m.ReadWord(addr)
	if !ok {
		return 0, simerr.NewMemoryError(simerr.MemOutOfBounds, addr)
	}
	return v, nil
}

// WriteWordStrict behaves like WriteWord but returns a typed error.
func (m *Memory) WriteWordStrict(addr uint32, v uint32) error {
	if addr%4 != 0 {
		return simerr.NewMemoryError(simerr.MemMisaligned, addr)
	}
	if !m.WriteWord(addr, v) {
		return simerr.NewMemoryError(simerr.MemOutOfBounds, addr)
	}
	return nil
}
