package assembler

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/wandwramp/toolchain/internal/bitfield"
	"github.com/wandwramp/toolchain/internal/diag"
	"github.com/wandwramp/toolchain/internal/isa"
	"github.com/wandwramp/toolchain/internal/lexer"
	"github.com/wandwramp/toolchain/internal/objfmt"
)

// Assemble reads WRAMP assembly source from src and returns the
// finished object module. It performs the full two-pass pipeline:
// line-by-line emission and symbolization (pass 1), then internal
// label resolution (pass 2), then object-file assembly.
func Assemble(filename string, src io.Reader) (*objfmt.Module, []diag.Diagnostic, error) {
	a := New(filename)

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		a.line++
		if err := a.processLine(scanner.Text()); err != nil {
			return nil, a.warnings, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, a.warnings, err
	}

	if err := a.resolveLabels(); err != nil {
		return nil, a.warnings, err
	}

	if err := a.checkUnresolvedGlobals(); err != nil {
		return nil, a.warnings, err
	}

	mod := a.buildModule()
	return mod, a.warnings, nil
}

func (a *Assembler) processLine(raw string) error {
	normalized := lexer.Normalize(raw)
	l := lexer.NewLine(normalized)

	if l.AtEnd() {
		return nil
	}

	if err := a.maybeConsumeLabel(l); err != nil {
		return err
	}
	if l.AtEnd() {
		return nil
	}

	l.SkipSpace()
	if l.Peek() == '.' {
		name, err := l.DirectiveName()
		if err != nil {
			return a.errf("unknown directive")
		}
		return a.processDirective(name, l)
	}

	name, err := l.Identifier()
	if err != nil {
		return a.errf("unexpected trailing characters")
	}

	d, ok := isa.Lookup(name)
	if !ok {
		return a.errf("unknown mnemonic %s", name)
	}
	return a.emitInstruction(d, l)
}

// maybeConsumeLabel detects and consumes a "label:" prefix, defining
// the label at the current segment and word position. It reports a
// specific error if the label-looking token starts with a digit.
func (a *Assembler) maybeConsumeLabel(l *lexer.Line) error {
	save := l.Pos()
	l.SkipSpace()

	rest := l.Rest()
	if len(rest) == 0 {
		return nil
	}
	if rest[0] >= '0' && rest[0] <= '9' {
		i := 0
		for i < len(rest) && rest[i] != ' ' && rest[i] != ':' {
			i++
		}
		if i < len(rest) && rest[i] == ':' {
			return a.errf("label starts with digit")
		}
		return nil
	}

	name, err := l.Identifier()
	if err != nil {
		l.SeekTo(save)
		return nil
	}
	l.SkipSpace()
	if l.Peek() != ':' {
		l.SeekTo(save)
		return nil
	}
	l.Expect(':')

	if sym, ok := a.symbols[name]; ok && sym.Resolved {
		return a.errf("duplicate label %s", name)
	}
	a.defineSymbol(name, a.wordCounter(a.segment), a.segment)
	return nil
}

// resolveLabels is pass 2: walk text then data entries carrying a
// pending reference and patch what can be resolved now, leaving the
// rest as relocation records for the linker.
func (a *Assembler) resolveLabels() error {
	for i := range a.text {
		if err := a.resolveEntry(&a.text[i]); err != nil {
			return err
		}
	}
	for i := range a.data {
		if err := a.resolveEntry(&a.data[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) resolveEntry(mw *memWord) error {
	if mw.pending == nil {
		return nil
	}
	p := mw.pending
	sym, known := a.symbols[p.symbol]

	switch p.kind {
	case RefRelative:
		if !known || !sym.Resolved {
			return &asmError{diag.Diagnostic{File: a.filename, Line: mw.line,
				Message: fmt.Sprintf("branch to external target %s", p.symbol)}}
		}
		siteAddr := entryAddress(a, mw)
		disp := (int64(sym.Value) - int64(siteAddr+1)) & 0xFFFFF
		low := bitfield.Get(mw.value, 0, 20)
		low = (low | uint32(disp)) & 0xFFFFF
		mw.value = bitfield.Set(mw.value, 0, 20, low)
		mw.pending = nil
		return nil

	case RefImmediate:
		if !known || !sym.Resolved {
			return &asmError{diag.Diagnostic{File: a.filename, Line: mw.line,
				Message: fmt.Sprintf("unresolved immediate reference %s", p.symbol)}}
		}
		mw.value = bitfield.Set(mw.value, 0, 16, sym.Value&0xFFFF)
		mw.pending = nil
		return nil

	case RefAbsolute:
		if !known || !sym.Resolved {
			// becomes a downstream ExternalRef; leave pending in place
			return nil
		}
		if sym.Segment == isa.SegNone {
			low := bitfield.Get(mw.value, 0, 20)
			low = (low + sym.Value) & 0xFFFFF
			mw.value = bitfield.Set(mw.value, 0, 20, low)
			mw.pending = nil
			return nil
		}
		// resolved, concrete segment: apply the known local value now;
		// the linker will separately add that segment's module base
		// when it processes the resulting {Text,Data,Bss}LabelRef.
		low := bitfield.Get(mw.value, 0, 20)
		low = (low + sym.Value) & 0xFFFFF
		mw.value = bitfield.Set(mw.value, 0, 20, low)
		// pending stays non-nil (symbol now resolved) so buildModule
		// knows to emit a LabelRef rather than an ExternalRef; it looks
		// up the symbol's segment to pick the LabelRef type.
		mw.pending = &pendingRef{symbol: p.symbol, kind: RefAbsolute}
		return nil
	}
	return nil
}

// entryAddress returns the final local address of a text/data memWord
// within its own segment, used as the branch site for Relative fixups.
func entryAddress(a *Assembler, mw *memWord) uint32 {
	var stream []memWord
	if mw.seg == isa.SegText {
		stream = a.text
	} else {
		stream = a.data
	}
	for i := range stream {
		if &stream[i] == mw {
			return uint32(i)
		}
	}
	return 0
}

func (a *Assembler) checkUnresolvedGlobals() error {
	names := make([]string, 0, len(a.symbols))
	for n := range a.symbols {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		sym := a.symbols[n]
		if sym.Global && !sym.Resolved {
			return &asmError{diag.Diagnostic{File: a.filename, Message: fmt.Sprintf("unresolved global %s", n)}}
		}
	}
	return nil
}

func (a *Assembler) buildModule() *objfmt.Module {
	names := objfmt.NewNameBlobBuilder()
	var relocs []objfmt.Reloc

	// 1. exports, in .global declaration order
	for _, name := range a.globalOrder {
		sym := a.symbols[name]
		var rt objfmt.RelocType
		switch sym.Segment {
		case isa.SegText:
			rt = objfmt.GlobalText
		case isa.SegData:
			rt = objfmt.GlobalData
		case isa.SegBss:
			rt = objfmt.GlobalBss
		default:
			continue
		}
		relocs = append(relocs, objfmt.Reloc{
			Address:   sym.Value,
			SymbolPtr: names.Add(name),
			Type:      rt,
			SourceSeg: sym.Segment,
		})
	}

	// 2. internal label refs, then 3. external refs: text entries then
	// data entries, in emission order.
	var labelRefs, externalRefs []objfmt.Reloc
	collect := func(stream []memWord, seg isa.Segment) {
		for i, mw := range stream {
			if mw.pending == nil || mw.pending.kind != RefAbsolute {
				continue
			}
			sym, known := a.symbols[mw.pending.symbol]
			if known && sym.Resolved && sym.Segment != isa.SegNone {
				var rt objfmt.RelocType
				switch sym.Segment {
				case isa.SegText:
					rt = objfmt.TextLabelRef
				case isa.SegData:
					rt = objfmt.DataLabelRef
				case isa.SegBss:
					rt = objfmt.BssLabelRef
				}
				labelRefs = append(labelRefs, objfmt.Reloc{
					Address: uint32(i), Type: rt, SourceSeg: seg,
				})
			} else {
				externalRefs = append(externalRefs, objfmt.Reloc{
					Address:   uint32(i),
					SymbolPtr: names.Add(mw.pending.symbol),
					Type:      objfmt.ExternalRef,
					SourceSeg: seg,
				})
			}
		}
	}
	collect(a.text, isa.SegText)
	collect(a.data, isa.SegData)

	relocs = append(relocs, labelRefs...)
	relocs = append(relocs, externalRefs...)

	text := make([]uint32, len(a.text))
	for i, mw := range a.text {
		text[i] = mw.value
	}
	data := make([]uint32, len(a.data))
	for i, mw := range a.data {
		data[i] = mw.value
	}

	return &objfmt.Module{
		Header: objfmt.Header{BssSegSize: a.bss},
		Text:   text,
		Data:   data,
		Relocs: relocs,
		Names:  names.Bytes(),
	}
}
