package assembler

import (
	"strings"

	"github.com/wandwramp/toolchain/internal/bitfield"
	"github.com/wandwramp/toolchain/internal/isa"
	"github.com/wandwramp/toolchain/internal/lexer"
)

// operandLooksNumeric reports whether the next token in l is a numeric
// literal rather than a symbol reference, without consuming it.
func operandLooksNumeric(l *lexer.Line) bool {
	rest := l.Rest()
	i := 0
	for i < len(rest) && rest[i] == ' ' {
		i++
	}
	if i >= len(rest) {
		return false
	}
	c := rest[i]
	return c == '-' || (c >= '0' && c <= '9')
}

// registerToken consumes a register operand such as "r3", "$3" or
// "$sp": everything up to the next space, comma or parenthesis.
func registerToken(l *lexer.Line) (string, bool) {
	l.SkipSpace()
	rest := l.Rest()
	n := strings.IndexAny(rest+" ", " ,()")
	l.Advance(n)
	return rest[:n], n > 0
}

// parseAbsoluteSymbol parses "symbol" or "symbol + const" and returns
// the symbol name and the constant displacement (0 if absent).
func (a *Assembler) parseAbsoluteSymbol(l *lexer.Line) (string, uint32, error) {
	name, err := l.Identifier()
	if err != nil {
		return "", 0, a.errf("hexadecimal address expected or undefined symbol")
	}
	l.SkipSpace()
	if l.Peek() != '+' {
		return name, 0, nil
	}
	l.Expect('+')
	v, err := l.Word()
	if err != nil {
		return "", 0, a.errf("numeric value expected")
	}
	if !bitfield.FitsUnsigned(int64(v), 20) {
		return "", 0, a.errf("constant too large")
	}
	return name, v, nil
}

// emitInstruction assembles one instruction occurrence per the
// catalogue entry d, walking its operand format left to right and
// consuming operands from l. It appends exactly one memWord to the
// current segment's word stream.
func (a *Assembler) emitInstruction(d isa.InstrDef, l *lexer.Line) error {
	if a.segment != isa.SegText {
		return a.errf("instruction in %s segment", a.segment)
	}

	word := isa.Encode(d)
	var pend *pendingRef

	for i := 0; i < len(d.OperandFormat); i++ {
		c := d.OperandFormat[i]
		switch c {
		case 'd', 'D':
			l.SkipSpace()
			tok, found := registerToken(l)
			if !found {
				return a.errf("register identifier expected")
			}
			var reg int
			var ok bool
			if c == 'D' {
				reg, ok = isa.SpecialRegister(tok)
				if !ok {
					return a.errf("special-register identifier expected")
				}
			} else {
				reg, ok = isa.GeneralRegister(tok)
				if !ok {
					return a.errf("register identifier expected")
				}
			}
			word = bitfield.Set(word, 24, 4, uint32(reg))

		case 's', 'S':
			l.SkipSpace()
			tok, found := registerToken(l)
			if !found {
				return a.errf("register identifier expected")
			}
			var reg int
			var ok bool
			if c == 'S' {
				reg, ok = isa.SpecialRegister(tok)
				if !ok {
					return a.errf("special-register identifier expected")
				}
			} else {
				reg, ok = isa.GeneralRegister(tok)
				if !ok {
					return a.errf("register identifier expected")
				}
			}
			word = bitfield.Set(word, 20, 4, uint32(reg))

		case 't':
			l.SkipSpace()
			tok, found := registerToken(l)
			if !found {
				return a.errf("register identifier expected")
			}
			reg, ok := isa.GeneralRegister(tok)
			if !ok {
				return a.errf("register identifier expected")
			}
			word = bitfield.Set(word, 0, 4, uint32(reg))

		case 'i':
			v, rerr := l.Half()
			if rerr != nil {
				return rerr
			}
			word = bitfield.Set(word, 0, 16, uint32(v))

		case 'o':
			if operandLooksNumeric(l) {
				v, rerr := l.Word()
				if rerr != nil {
					return rerr
				}
				word = bitfield.Set(word, 0, 20, v&0xFFFFF)
			} else {
				name, disp, rerr := a.parseAbsoluteSymbol(l)
				if rerr != nil {
					return rerr
				}
				word = bitfield.Set(word, 0, 20, disp)
				pend = &pendingRef{symbol: name, kind: RefAbsolute}
			}

		case 'b':
			if operandLooksNumeric(l) {
				return a.errf("branch target may not be a numeric literal")
			}
			name, err := l.Identifier()
			if err != nil {
				return a.errf("undefined symbol")
			}
			pend = &pendingRef{symbol: name, kind: RefRelative}

		case 'j':
			l.SkipSpace()
			if len(l.Rest()) >= 2 && l.Rest()[0] == '0' && (l.Rest()[1] == 'x' || l.Rest()[1] == 'X') {
				v, rerr := l.Address()
				if rerr != nil {
					return rerr
				}
				word = bitfield.Set(word, 0, 20, v)
			} else {
				name, disp, rerr := a.parseAbsoluteSymbol(l)
				if rerr != nil {
					return rerr
				}
				word = bitfield.Set(word, 0, 20, disp)
				pend = &pendingRef{symbol: name, kind: RefAbsolute}
			}

		default:
			if rerr := l.Expect(c); rerr != nil {
				return a.errf("unexpected trailing characters")
			}
		}
	}

	if !l.AtEnd() {
		return a.errf("unexpected trailing characters")
	}

	a.text = append(a.text, memWord{seg: isa.SegText, value: word, pending: pend, line: a.line})
	return nil
}
