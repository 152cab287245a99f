package loader

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmips-go/vmips/simerr"
)

// binaryHeaderSize is the fixed 8-byte header in the flat assembler output
// format: a little-endian data_section_size followed by a little-endian
// text_section_size (a multiple of 4), then the data bytes and the text
// words.
const binaryHeaderSize = 8

// LoadBinary parses the flat `(data_size, text_size, data_bytes,
// text_words)` format produced by the external two-pass assembler.
// dataBase/textBase place the two sections in the caller's address space;
// the returned Program has one segment per non-empty section.
func LoadBinary(r io.Reader, dataBase, textBase, entry uint32) (*Program, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, simerr.WrapLoaderError(simerr.LoaderIOError, "reading binary image", err)
	}
	if len(raw) < binaryHeaderSize {
		return nil, simerr.NewLoaderError(simerr.LoaderInvalidFormat, "image shorter than header")
	}

	dataSize := binary.LittleEndian.Uint32(raw[0:4])
	textSize := binary.LittleEndian.Uint32(raw[4:8])
	if textSize%4 != 0 {
		return nil, simerr.NewLoaderError(simerr.LoaderInvalidFormat, "text_section_size not a multiple of 4")
	}

	want := binaryHeaderSize + uint64(dataSize) + uint64(textSize)
	if uint64(len(raw)) < want {
		return nil, simerr.NewLoaderError(simerr.LoaderInvalidFormat,
			fmt.Sprintf("image truncated: have %d bytes, want %d", len(raw), want))
	}

	dataBytes := raw[binaryHeaderSize : binaryHeaderSize+dataSize]
	textBytes := raw[binaryHeaderSize+dataSize : binaryHeaderSize+dataSize+textSize]

	prog := &Program{EntryPoint: entry}
	if dataSize > 0 {
		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: dataBase, Data: dataBytes, MemSize: dataSize, Writable: true,
		})
	}
	if textSize > 0 {
		prog.Segments = append(prog.Segments, Segment{
			VirtAddr: textBase, Data: textBytes, MemSize: textSize, Execute: true,
		})
	}
	return prog, nil
}

// EncodeBinary assembles the flat format from already-lowered data bytes
// and text words, the inverse of LoadBinary. It exists for tests and for a
// caller that wants to write out what an external assembler would produce.
func EncodeBinary(dataBytes []byte, textWords []uint32) []byte {
	out := make([]byte, binaryHeaderSize, binaryHeaderSize+len(dataBytes)+4*len(textWords))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(dataBytes)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(4*len(textWords)))
	out = append(out, dataBytes...)
	for _, w := range textWords {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], w)
		out = append(out, buf[:]...)
	}
	return out
}
