package loader

import "github.com/vmips-go/vmips/emu"

// LoadInto copies every segment of prog into m, zero-filling the BSS tail
// when a segment's MemSize exceeds its file-backed Data (bypassing
// permission checks, matching the loader's unchecked write path).
func LoadInto(m *emu.Memory, prog *Program) {
	for _, seg := range prog.Segments {
		for i, b := range seg.Data {
			m.WriteByteInit(seg.VirtAddr+uint32(i), b)
		}
		for i := uint32(len(seg.Data)); i < seg.MemSize; i++ {
			m.WriteByteInit(seg.VirtAddr+i, 0)
		}
	}
}
