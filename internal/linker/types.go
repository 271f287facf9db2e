// Package linker implements the one-pass WRAMP linker: it merges
// relocatable object modules, assigns final per-segment addresses,
// resolves cross-module references, checks for segment overlap, and
// returns the linked Image that cmd/ld writes as Motorola S-records.
package linker

import (
	"github.com/wandwramp/toolchain/internal/isa"
	"github.com/wandwramp/toolchain/internal/objfmt"
)

// module is one loaded object file plus the absolute bases the
// layout phase assigns to its three segments.
type module struct {
	name string
	obj  *objfmt.Module

	textBase uint32
	dataBase uint32
	bssBase  uint32
}

// globalSym is an entry in the cross-module global symbol table.
type globalSym struct {
	name      string
	moduleIdx int
	segment   isa.Segment
	localAddr uint32
	reserved  bool // text_size/data_size/bss_size: no module base added
}

// pendingInternal is a {Text,Data,Bss}LabelRef: the target segment is
// local to the same module as the fixup site.
type pendingInternal struct {
	moduleIdx int
	site      objfmt.Reloc
	target    isa.Segment
}

// pendingExternal is an ExternalRef: the target is a symbol resolved
// through the global symbol table.
type pendingExternal struct {
	moduleIdx int
	site      objfmt.Reloc
	symbol    string
}

// Options controls the layout and output of a Link invocation.
type Options struct {
	TextBase *uint32 // -Ttext; default 0
	DataBase *uint32 // -Tdata; default immediately after text
	BssBase  *uint32 // -Tbss; default immediately after data
	BssEnd   *uint32 // -Ebss; end-justify bss instead
	Verbose  bool
}

// Image is the final linked output: merged, relocated segment words
// plus the entry point, ready for S-record emission.
type Image struct {
	TextBase, DataBase, BssBase uint32
	TextSize, DataSize, BssSize uint32
	Text, Data                  []uint32
	Entry                       uint32
}

const (
	reservedTextSize = "text_size"
	reservedDataSize = "data_size"
	reservedBssSize  = "bss_size"
)
