// Package objfmt encodes and decodes the relocatable object module
// format exchanged between the assembler and the linker: a fixed
// header, text and data segment words, a relocation array and a
// NUL-terminated symbol name blob, all little-endian.
package objfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wandwramp/toolchain/internal/isa"
)

// MagicNumber is the first four bytes of every valid object module.
const MagicNumber uint32 = 0x0000DAA1

const headerSize = 24
const relocSize = 16

// RelocType enumerates the kinds of relocation record.
type RelocType uint32

const (
	GlobalData RelocType = iota
	GlobalText
	GlobalBss
	TextLabelRef
	DataLabelRef
	BssLabelRef
	ExternalRef
)

func (t RelocType) String() string {
	switch t {
	case GlobalData:
		return "GlobalData"
	case GlobalText:
		return "GlobalText"
	case GlobalBss:
		return "GlobalBss"
	case TextLabelRef:
		return "TextLabelRef"
	case DataLabelRef:
		return "DataLabelRef"
	case BssLabelRef:
		return "BssLabelRef"
	case ExternalRef:
		return "ExternalRef"
	default:
		return fmt.Sprintf("RelocType(%d)", uint32(t))
	}
}

// Reloc is one 16-byte relocation record.
type Reloc struct {
	Address   uint32
	SymbolPtr uint32
	Type      RelocType
	SourceSeg isa.Segment
}

// Header is the 24-byte object file header.
type Header struct {
	Magic            uint32
	TextSegSize      uint32
	DataSegSize      uint32
	BssSegSize       uint32
	NumReferences    uint32
	SymbolTableBytes uint32
}

// Module is a fully decoded (or to-be-encoded) object module.
type Module struct {
	Header Header
	Text   []uint32
	Data   []uint32
	Relocs []Reloc
	Names  []byte // packed NUL-terminated symbol names
}

// Write serializes m to w in the exact on-disk byte layout.
func (m *Module) Write(w io.Writer) error {
	h := Header{
		Magic:            MagicNumber,
		TextSegSize:      uint32(len(m.Text)),
		DataSegSize:      uint32(len(m.Data)),
		BssSegSize:       m.Header.BssSegSize,
		NumReferences:    uint32(len(m.Relocs)),
		SymbolTableBytes: uint32(len(m.Names)),
	}

	var hdrBuf [headerSize]byte
	binary.LittleEndian.PutUint32(hdrBuf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(hdrBuf[4:8], h.TextSegSize)
	binary.LittleEndian.PutUint32(hdrBuf[8:12], h.DataSegSize)
	binary.LittleEndian.PutUint32(hdrBuf[12:16], h.BssSegSize)
	binary.LittleEndian.PutUint32(hdrBuf[16:20], h.NumReferences)
	binary.LittleEndian.PutUint32(hdrBuf[20:24], h.SymbolTableBytes)
	if _, err := w.Write(hdrBuf[:]); err != nil {
		return err
	}

	if err := writeWords(w, m.Text); err != nil {
		return err
	}
	if err := writeWords(w, m.Data); err != nil {
		return err
	}

	for _, r := range m.Relocs {
		var rb [relocSize]byte
		binary.LittleEndian.PutUint32(rb[0:4], r.Address)
		binary.LittleEndian.PutUint32(rb[4:8], r.SymbolPtr)
		binary.LittleEndian.PutUint32(rb[8:12], uint32(r.Type))
		binary.LittleEndian.PutUint32(rb[12:16], uint32(int32(r.SourceSeg)))
		if _, err := w.Write(rb[:]); err != nil {
			return err
		}
	}

	if _, err := w.Write(m.Names); err != nil {
		return err
	}
	return nil
}

func writeWords(w io.Writer, words []uint32) error {
	buf := make([]byte, 4*len(words))
	for i, word := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], word)
	}
	_, err := w.Write(buf)
	return err
}

// Read decodes a Module from r, validating the magic number.
func Read(r io.Reader) (*Module, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses a Module from an in-memory byte slice.
func Decode(data []byte) (*Module, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("objfmt: file too short for header (%d bytes)", len(data))
	}

	var h Header
	h.Magic = binary.LittleEndian.Uint32(data[0:4])
	if h.Magic != MagicNumber {
		return nil, fmt.Errorf("objfmt: bad magic number 0x%08X (want 0x%08X)", h.Magic, MagicNumber)
	}
	h.TextSegSize = binary.LittleEndian.Uint32(data[4:8])
	h.DataSegSize = binary.LittleEndian.Uint32(data[8:12])
	h.BssSegSize = binary.LittleEndian.Uint32(data[12:16])
	h.NumReferences = binary.LittleEndian.Uint32(data[16:20])
	h.SymbolTableBytes = binary.LittleEndian.Uint32(data[20:24])

	off := headerSize
	text, off, err := readWords(data, off, int(h.TextSegSize))
	if err != nil {
		return nil, fmt.Errorf("objfmt: text segment: %w", err)
	}
	dataSeg, off, err := readWords(data, off, int(h.DataSegSize))
	if err != nil {
		return nil, fmt.Errorf("objfmt: data segment: %w", err)
	}

	relocs := make([]Reloc, 0, h.NumReferences)
	for i := uint32(0); i < h.NumReferences; i++ {
		if off+relocSize > len(data) {
			return nil, fmt.Errorf("objfmt: relocation %d extends beyond file", i)
		}
		rb := data[off : off+relocSize]
		relocs = append(relocs, Reloc{
			Address:   binary.LittleEndian.Uint32(rb[0:4]),
			SymbolPtr: binary.LittleEndian.Uint32(rb[4:8]),
			Type:      RelocType(binary.LittleEndian.Uint32(rb[8:12])),
			SourceSeg: isa.Segment(int32(binary.LittleEndian.Uint32(rb[12:16]))),
		})
		off += relocSize
	}

	namesEnd := off + int(h.SymbolTableBytes)
	if namesEnd > len(data) {
		return nil, fmt.Errorf("objfmt: symbol name blob extends beyond file")
	}
	names := append([]byte(nil), data[off:namesEnd]...)

	return &Module{Header: h, Text: text, Data: dataSeg, Relocs: relocs, Names: names}, nil
}

func readWords(data []byte, off, count int) ([]uint32, int, error) {
	if off+4*count > len(data) {
		return nil, off, fmt.Errorf("extends beyond file (need %d words at offset %d)", count, off)
	}
	words := make([]uint32, count)
	for i := 0; i < count; i++ {
		words[i] = binary.LittleEndian.Uint32(data[off+4*i:])
	}
	return words, off + 4*count, nil
}

// NameAt returns the NUL-terminated string stored at byte offset ptr
// within the name blob.
func (m *Module) NameAt(ptr uint32) (string, error) {
	if int(ptr) >= len(m.Names) {
		return "", fmt.Errorf("objfmt: symbol_ptr %d out of range (blob is %d bytes)", ptr, len(m.Names))
	}
	end := bytes.IndexByte(m.Names[ptr:], 0)
	if end < 0 {
		return "", fmt.Errorf("objfmt: unterminated symbol name at offset %d", ptr)
	}
	return string(m.Names[ptr : int(ptr)+end]), nil
}

// NameBlobBuilder packs symbol names into a NUL-terminated blob and
// returns each name's byte offset for use as a Reloc.SymbolPtr.
type NameBlobBuilder struct {
	buf    bytes.Buffer
	offset map[string]uint32
}

// NewNameBlobBuilder returns an empty builder.
func NewNameBlobBuilder() *NameBlobBuilder {
	return &NameBlobBuilder{offset: make(map[string]uint32)}
}

// Add interns name in the blob, returning its byte offset. Repeated
// names reuse the same offset.
func (b *NameBlobBuilder) Add(name string) uint32 {
	if off, ok := b.offset[name]; ok {
		return off
	}
	off := uint32(b.buf.Len())
	b.buf.WriteString(name)
	b.buf.WriteByte(0)
	b.offset[name] = off
	return off
}

// Bytes returns the packed blob.
func (b *NameBlobBuilder) Bytes() []byte {
	return b.buf.Bytes()
}
