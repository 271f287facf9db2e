package assembler

import (
	"fmt"

	"github.com/wandwramp/toolchain/internal/diag"
	"github.com/wandwramp/toolchain/internal/isa"
)

// RefKind is the flavor of a memory entry's pending fixup.
type RefKind int

const (
	RefAbsolute RefKind = iota
	RefRelative
	RefImmediate
)

// Symbol is an assembler-time symbol table entry.
type Symbol struct {
	Name     string
	Value    uint32
	Segment  isa.Segment
	Resolved bool
	Global   bool
	Line     int
}

// pendingRef is the deferred fixup attached to a memory entry.
type pendingRef struct {
	symbol string
	kind   RefKind
}

// memWord is one emitted word with its optional pending reference.
type memWord struct {
	seg     isa.Segment
	value   uint32
	pending *pendingRef
	line    int
}

// Assembler holds the full state of a single source-file assembly
// run: the symbol table, per-segment word streams and the warning
// accumulator. An Assembler is single-use; build a fresh one per
// file.
type Assembler struct {
	filename string
	line     int
	segment  isa.Segment

	symbols     map[string]*Symbol
	globalOrder []string

	text []memWord
	data []memWord
	bss  uint32

	warnings []diag.Diagnostic
}

// New returns an Assembler ready to process filename, starting in the
// text segment.
func New(filename string) *Assembler {
	return &Assembler{
		filename: filename,
		segment:  isa.SegText,
		symbols:  make(map[string]*Symbol),
	}
}

func (a *Assembler) errf(format string, args ...any) error {
	return &asmError{diag.Diagnostic{File: a.filename, Line: a.line, Message: fmt.Sprintf(format, args...)}}
}

type asmError struct {
	d diag.Diagnostic
}

func (e *asmError) Error() string { return e.d.Error() }
