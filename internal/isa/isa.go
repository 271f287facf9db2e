// Package isa is the static catalogue of WRAMP instructions, directives,
// registers and segments shared by the assembler and the linker.
package isa

import (
	"fmt"
	"strings"

	"github.com/wandwramp/toolchain/internal/bitfield"
)

// Segment identifies which logical area of a module a symbol or word
// belongs to.
type Segment int

const (
	SegNone Segment = iota - 1
	SegText
	SegData
	SegBss
)

func (s Segment) String() string {
	switch s {
	case SegText:
		return "text"
	case SegData:
		return "data"
	case SegBss:
		return "bss"
	default:
		return "none"
	}
}

// Shape classifies how an instruction's operand bits overlay the word.
type Shape string

const (
	ShapeR         Shape = "R"
	ShapeI         Shape = "I"
	ShapeJ         Shape = "J"
	ShapeDirective Shape = "Directive"
	ShapeOther     Shape = "Other"
)

// InstrDef is one catalogue entry: a mnemonic's shape, encoding fields
// and operand format string.
//
// OperandFormat is read left to right; each rune is either one of the
// field letters below or a literal character the source text must
// contain verbatim (used for syntax like "," and "(" ")").
//
//	d  general register, destination   bits 27:24
//	s  general register, source 1      bits 23:20
//	t  general register, source 2      bits 3:0
//	D  special register, destination   bits 27:24
//	S  special register, source        bits 23:20
//	i  16-bit immediate                bits 15:0
//	o  20-bit offset (literal/symbol)  bits 19:0
//	b  20-bit PC-relative branch       bits 19:0
//	j  20-bit absolute jump target     bits 19:0
type InstrDef struct {
	Mnemonic      string
	OperandFormat string
	Opcode        uint8
	Func          uint8
	Shape         Shape
}

// HasField reports whether the operand format contains field letter c.
func (d InstrDef) HasField(c byte) bool {
	return strings.IndexByte(d.OperandFormat, c) >= 0
}

// the arithmetic/bitwise/shift family shares one func assignment across
// its reg-reg (opcode 0x0) and reg-immediate (opcode 0x1) forms, func
// 0x0..0xf in table order.
var aluFuncs = []string{
	"add", "addu", "sub", "subu", "mult", "multu", "div", "divu",
	"rem", "remu", "sll", "and", "srl", "or", "sra", "xor",
}

// the set-compare family shares one func assignment across its reg-reg
// (opcode 0x2) and reg-immediate (opcode 0x3) forms, func 0x0..0xb.
var cmpFuncs = []string{
	"slt", "sltu", "sgt", "sgtu", "sle", "sleu",
	"sge", "sgeu", "seq", "sequ", "sne", "sneu",
}

var catalogue = buildCatalogue()

func buildCatalogue() []InstrDef {
	var c []InstrDef

	for i, base := range aluFuncs {
		c = append(c, InstrDef{base, "d,s,t", 0x0, uint8(i), ShapeR})
		c = append(c, InstrDef{base + "i", "d,s,i", 0x1, uint8(i), ShapeI})
	}
	for i, base := range cmpFuncs {
		c = append(c, InstrDef{base, "d,s,t", 0x2, uint8(i), ShapeR})
		c = append(c, InstrDef{base + "i", "d,s,i", 0x3, uint8(i), ShapeI})
	}

	c = append(c,
		InstrDef{"lhi", "d,i", 0x3, 0xe, ShapeI},
		InstrDef{"movgs", "D,s", 0x3, 0xc, ShapeI},
		InstrDef{"movsg", "d,S", 0x3, 0xd, ShapeI},
		InstrDef{"break", "", 0x2, 0xc, ShapeI},
		InstrDef{"syscall", "", 0x2, 0xd, ShapeI},
		InstrDef{"rfe", "", 0x2, 0xe, ShapeI},

		InstrDef{"la", "d,j", 0xc, 0x0, ShapeJ},
		InstrDef{"j", "j", 0x4, 0x0, ShapeJ},
		InstrDef{"jr", "s", 0x5, 0x0, ShapeJ},
		InstrDef{"jal", "j", 0x6, 0x0, ShapeJ},
		InstrDef{"jalr", "s", 0x7, 0x0, ShapeJ},
		InstrDef{"lw", "d,o(s)", 0x8, 0x0, ShapeJ},
		InstrDef{"sw", "d,o(s)", 0x9, 0x0, ShapeJ},
		InstrDef{"beqz", "s,b", 0xa, 0x0, ShapeJ},
		InstrDef{"bnez", "s,b", 0xb, 0x0, ShapeJ},
	)

	for _, name := range []string{
		".word", ".ascii", ".asciiz", ".space", ".equ", ".global",
		".extern", ".data", ".text", ".bss", ".frame", ".mask",
	} {
		c = append(c, InstrDef{name, "", 0, 0, ShapeDirective})
	}

	return c
}

var byMnemonic = func() map[string]InstrDef {
	m := make(map[string]InstrDef, len(catalogue))
	for _, d := range catalogue {
		m[d.Mnemonic] = d
	}
	return m
}()

// Lookup finds a catalogue entry by mnemonic or directive name,
// case-insensitively (directive names are stored lowercase and
// dot-prefixed, and are matched the same way).
func Lookup(name string) (InstrDef, bool) {
	d, ok := byMnemonic[strings.ToLower(name)]
	return d, ok
}

// IsDirective reports whether name names a directive rather than an
// instruction mnemonic.
func IsDirective(name string) bool {
	d, ok := Lookup(name)
	return ok && d.Shape == ShapeDirective
}

// general register aliases beyond the plain r0..r15 / $0..$15 forms.
var generalAliases = map[string]int{
	"zero": 0,
	"sp":   14,
	"ra":   15,
}

// GeneralRegister resolves a register operand (with or without a
// leading "r" or "$") to its number 0..15.
func GeneralRegister(tok string) (int, bool) {
	tok = strings.TrimPrefix(tok, "$")
	if n, ok := generalAliases[tok]; ok {
		return n, true
	}
	tok = strings.TrimPrefix(tok, "r")
	var n int
	if _, err := fmt.Sscanf(tok, "%d", &n); err != nil {
		return 0, false
	}
	if n < 0 || n > 15 {
		return 0, false
	}
	return n, true
}

var specialRegisters = map[string]int{
	"cctrl":  4,
	"estat":  5,
	"icount": 6,
	"ccount": 7,
	"evec":   8,
	"ear":    9,
	"esp":    10,
	"ers":    11,
	"ptable": 12,
	"rbase":  13,
}

// SpecialRegister resolves a "$name" special-register token to its
// number.
func SpecialRegister(tok string) (int, bool) {
	tok = strings.TrimPrefix(tok, "$")
	n, ok := specialRegisters[tok]
	return n, ok
}

// Encode assembles the fixed opcode/func portion of an instruction
// word, leaving all operand fields zero. Callers OR in operand bits
// per the shape's field layout.
func Encode(d InstrDef) uint32 {
	var w uint32
	w = bitfield.Set(w, 28, 4, uint32(d.Opcode))
	w = bitfield.Set(w, 16, 4, uint32(d.Func))
	return w
}

// Decode renders word as a disassembled mnemonic line. It is used only
// by the linker's verbose mode; it is not a general-purpose
// disassembler and makes a best effort for unrecognized encodings.
func Decode(word uint32) string {
	opcode := uint8(bitfield.Get(word, 28, 4))
	funcField := uint8(bitfield.Get(word, 16, 4))
	d, ok := findByOpcodeFunc(opcode, funcField, word)
	if !ok {
		return fmt.Sprintf(".word 0x%08X", word)
	}
	return formatOperands(d, word)
}

func findByOpcodeFunc(opcode, funcField uint8, word uint32) (InstrDef, bool) {
	for _, d := range catalogue {
		if d.Shape == ShapeDirective || d.Opcode != opcode {
			continue
		}
		wantFunc := d.Func
		if d.Shape == ShapeJ {
			wantFunc = 0
		}
		if funcField == wantFunc || d.Shape == ShapeJ {
			return d, true
		}
	}
	return InstrDef{}, false
}

func formatOperands(d InstrDef, word uint32) string {
	var b strings.Builder
	b.WriteString(d.Mnemonic)
	sep := " "
	for i := 0; i < len(d.OperandFormat); i++ {
		c := d.OperandFormat[i]
		switch c {
		case 'd', 'D':
			fmt.Fprintf(&b, "%sr%d", sep, bitfield.Get(word, 24, 4))
			sep = ", "
		case 's', 'S':
			fmt.Fprintf(&b, "%sr%d", sep, bitfield.Get(word, 20, 4))
			sep = ", "
		case 't':
			fmt.Fprintf(&b, "%sr%d", sep, bitfield.Get(word, 0, 4))
			sep = ", "
		case 'i':
			fmt.Fprintf(&b, "%s0x%X", sep, bitfield.Get(word, 0, 16))
			sep = ", "
		case 'o', 'j':
			fmt.Fprintf(&b, "%s0x%X", sep, bitfield.Get(word, 0, 20))
			sep = ", "
		case 'b':
			disp := bitfield.SignExtend(bitfield.Get(word, 0, 20), 20)
			fmt.Fprintf(&b, "%s%+d", sep, disp)
			sep = ", "
		default:
			if c != ',' {
				b.WriteByte(c)
				sep = ""
			}
		}
	}
	return b.String()
}
