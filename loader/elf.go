// Package loader provides the external program-loading surfaces this
// simulator consumes: a 32-bit MIPS ELF loader (walking PT_LOAD segments)
// and the flat two-pass-assembler binary format described in the external
// interfaces section, both producing a Program the driver copies into
// emu.Memory before handing control to an engine.
package loader

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/vmips-go/vmips/simerr"
)

// Segment is one loadable region of a Program, already expanded to its
// in-memory size (MemSize may exceed len(Data) for BSS, which the loader's
// caller zero-fills).
type Segment struct {
	VirtAddr uint32
	Data     []byte
	MemSize  uint32
	Writable bool
	Execute  bool
}

// Program is a loaded image ready to be copied into Memory.
type Program struct {
	EntryPoint uint32
	Segments   []Segment
}

// LoadELF parses a 32-bit MIPS ELF binary (e_machine == EM_MIPS) and returns
// its PT_LOAD segments and entry point. It rejects anything that is not a
// 32-bit MIPS ELF rather than guessing.
func LoadELF(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, simerr.WrapLoaderError(simerr.LoaderInvalidMagic, path, err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, simerr.NewLoaderError(simerr.LoaderUnsupportedArch, "not a 32-bit ELF file")
	}
	if f.Machine != elf.EM_MIPS {
		return nil, simerr.NewLoaderError(simerr.LoaderUnsupportedArch,
			fmt.Sprintf("not a MIPS ELF file (machine type: %v)", f.Machine))
	}

	prog := &Program{EntryPoint: uint32(f.Entry)}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD || phdr.Filesz == 0 {
			continue
		}

		data := make([]byte, phdr.Filesz)
		n, err := phdr.ReadAt(data, 0)
		if err != nil && err != io.EOF {
			return nil, simerr.WrapLoaderError(simerr.LoaderIOError,
				fmt.Sprintf("segment at 0x%x", phdr.Vaddr), err)
		}
		if uint64(n) != phdr.Filesz {
			return nil, simerr.NewLoaderError(simerr.LoaderInvalidFormat,
				fmt.Sprintf("short read for segment at 0x%x: got %d bytes, expected %d", phdr.Vaddr, n, phdr.Filesz))
		}

		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: uint32(phdr.Vaddr),
			Data:     data,
			MemSize:  uint32(phdr.Memsz),
			Writable: phdr.Flags&elf.PF_W != 0,
			Execute:  phdr.Flags&elf.PF_X != 0,
		})
	}

	return prog, nil
}
