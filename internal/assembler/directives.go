package assembler

import (
	"github.com/wandwramp/toolchain/internal/diag"
	"github.com/wandwramp/toolchain/internal/isa"
	"github.com/wandwramp/toolchain/internal/lexer"
)

func (a *Assembler) wordCounter(seg isa.Segment) uint32 {
	switch seg {
	case isa.SegText:
		return uint32(len(a.text))
	case isa.SegData:
		return uint32(len(a.data))
	case isa.SegBss:
		return a.bss
	default:
		return 0
	}
}

// processDirective dispatches a recognized directive name against the
// remainder of the line. isa.Lookup is the single source of truth for
// which directive names exist; this function only handles their
// semantics.
func (a *Assembler) processDirective(name string, l *lexer.Line) error {
	if !isa.IsDirective(name) {
		return a.errf("unknown directive %s", name)
	}
	switch name {
	case ".text":
		a.segment = isa.SegText
		return a.expectEOL(l)
	case ".data":
		a.segment = isa.SegData
		return a.expectEOL(l)
	case ".bss":
		a.segment = isa.SegBss
		return a.expectEOL(l)

	case ".word":
		return a.directiveWord(l)
	case ".space":
		return a.directiveSpace(l)
	case ".ascii":
		return a.directiveAscii(l, false)
	case ".asciiz":
		return a.directiveAscii(l, true)
	case ".equ":
		return a.directiveEqu(l)
	case ".global":
		return a.directiveGlobal(l)
	case ".extern", ".frame", ".mask":
		// accepted and silently ignored
		return nil
	default:
		return a.errf("unknown directive %s", name)
	}
}

func (a *Assembler) expectEOL(l *lexer.Line) error {
	if !l.AtEnd() {
		return a.errf("unexpected trailing characters")
	}
	return nil
}

func (a *Assembler) directiveWord(l *lexer.Line) error {
	if a.segment == isa.SegBss {
		// one zero word per directive; warn if an initializer is given
		if !l.AtEnd() {
			a.warnings = append(a.warnings, diag.Diagnostic{
				File: a.filename, Line: a.line, Message: "initializer ignored in bss segment",
			})
		}
		a.bss++
		return nil
	}

	for {
		v, pend, err := a.wordExpr(l)
		if err != nil {
			return err
		}
		a.appendWord(v, pend)
		l.SkipSpace()
		if l.Peek() != ',' {
			break
		}
		l.Expect(',')
	}
	return a.expectEOL(l)
}

// wordExpr parses one .word operand: a word literal, a character
// literal, or a symbol reference (optionally symbol + const).
func (a *Assembler) wordExpr(l *lexer.Line) (uint32, *pendingRef, error) {
	l.SkipSpace()
	if l.Peek() == '\'' {
		c, err := l.Char()
		if err != nil {
			return 0, nil, a.errf("bad character constant")
		}
		return uint32(c), nil, nil
	}
	if operandLooksNumeric(l) {
		v, err := l.Word()
		if err != nil {
			return 0, nil, err
		}
		return v, nil, nil
	}
	name, disp, err := a.parseAbsoluteSymbol(l)
	if err != nil {
		return 0, nil, err
	}
	return disp, &pendingRef{symbol: name, kind: RefAbsolute}, nil
}

func (a *Assembler) appendWord(v uint32, pend *pendingRef) {
	mw := memWord{seg: a.segment, value: v, pending: pend, line: a.line}
	if a.segment == isa.SegText {
		a.text = append(a.text, mw)
	} else {
		a.data = append(a.data, mw)
	}
}

func (a *Assembler) directiveSpace(l *lexer.Line) error {
	if a.segment != isa.SegBss {
		return a.errf(".space only valid in bss segment")
	}
	l.SkipSpace()
	rest := l.Rest()
	if len(rest) == 0 || rest[0] < '0' || rest[0] > '9' {
		return a.errf("decimal count expected")
	}
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	count := 0
	for i := 0; i < n; i++ {
		count = count*10 + int(rest[i]-'0')
	}
	l.Advance(n)
	a.bss += uint32(count)
	return a.expectEOL(l)
}

func (a *Assembler) directiveAscii(l *lexer.Line, zeroTerminate bool) error {
	if a.segment == isa.SegBss {
		return a.errf("string directive not permitted in bss segment")
	}
	s, err := l.String()
	if err != nil {
		return err
	}
	for _, c := range s {
		a.appendWord(uint32(c), nil)
	}
	if zeroTerminate {
		a.appendWord(0, nil)
	}
	return a.expectEOL(l)
}

func (a *Assembler) directiveEqu(l *lexer.Line) error {
	name, err := l.Identifier()
	if err != nil {
		return a.errf("badly formed label")
	}
	if err := l.Expect(','); err != nil {
		return a.errf("',' expected")
	}
	v, err := l.Word()
	if err != nil {
		return err
	}
	if err := a.expectEOL(l); err != nil {
		return err
	}
	if sym, ok := a.symbols[name]; ok && sym.Resolved {
		return a.errf("duplicate label %s", name)
	}
	a.defineSymbol(name, v, isa.SegNone)
	return nil
}

func (a *Assembler) directiveGlobal(l *lexer.Line) error {
	name, err := l.Identifier()
	if err != nil {
		return a.errf("badly formed label")
	}
	if err := a.expectEOL(l); err != nil {
		return err
	}
	sym, ok := a.symbols[name]
	if !ok {
		sym = &Symbol{Name: name, Line: a.line}
		a.symbols[name] = sym
	}
	if !sym.Global {
		sym.Global = true
		a.globalOrder = append(a.globalOrder, name)
	}
	return nil
}

// defineSymbol records a label/equ definition, resolving any earlier
// forward .global placeholder in place.
func (a *Assembler) defineSymbol(name string, value uint32, seg isa.Segment) {
	sym, ok := a.symbols[name]
	if !ok {
		sym = &Symbol{Name: name}
		a.symbols[name] = sym
	}
	sym.Value = value
	sym.Segment = seg
	sym.Resolved = true
	sym.Line = a.line
}
