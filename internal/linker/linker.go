package linker

import (
	"fmt"
	"io"

	"github.com/wandwramp/toolchain/internal/diag"
	"github.com/wandwramp/toolchain/internal/isa"
	"github.com/wandwramp/toolchain/internal/objfmt"
)

// Linker accumulates object modules and links them into an Image.
// Like the assembler, it is single-use: construct one per invocation.
type Linker struct {
	modules []*module
	out     io.Writer
	verbose bool

	globals map[string]*globalSym
	errs    *diag.Reporter
}

// New returns a Linker that writes verbose diagnostics to out.
func New(out io.Writer, verbose bool) *Linker {
	return &Linker{
		out:     out,
		verbose: verbose,
		globals: make(map[string]*globalSym),
		errs:    diag.NewReporter(out),
	}
}

// AddModule loads one already-decoded object module under the given
// display name (normally its input file path), in command-line order.
func (l *Linker) AddModule(name string, obj *objfmt.Module) {
	l.modules = append(l.modules, &module{name: name, obj: obj})
}

// Link runs the full pipeline and returns the merged, relocated
// image. Collectable errors (duplicate global, undefined external)
// are all reported before Link returns a non-nil error; immediately
// fatal errors (overlap, missing main) return as soon as detected.
func (l *Linker) Link(opts Options) (*Image, error) {
	internalRefs, externalRefs := l.collectReferences()

	l.layout(opts)

	if err := l.resolveInternal(internalRefs); err != nil {
		return nil, err
	}
	if err := l.resolveExternal(externalRefs); err != nil {
		return nil, err
	}
	if l.errs.Failed() {
		return nil, fmt.Errorf("linker: %d error(s), no output written", l.errs.Count())
	}

	entry, err := l.entryPoint()
	if err != nil {
		return nil, err
	}

	if err := l.checkOverlap(); err != nil {
		return nil, err
	}

	img := l.buildImage(entry)
	if l.verbose {
		l.reportVerbose(img)
	}
	return img, nil
}

// collectReferences is the linker's first pass: walk every module's
// relocation array, populating the global symbol table and collecting
// pending internal/external references.
func (l *Linker) collectReferences() ([]pendingInternal, []pendingExternal) {
	var internalRefs []pendingInternal
	var externalRefs []pendingExternal

	for idx, m := range l.modules {
		for _, r := range m.obj.Relocs {
			switch r.Type {
			case objfmt.GlobalText, objfmt.GlobalData, objfmt.GlobalBss:
				name, err := m.obj.NameAt(r.SymbolPtr)
				if err != nil {
					l.errs.Error(diag.Diagnostic{File: m.name, Message: err.Error()})
					continue
				}
				seg := globalSegmentOf(r.Type)
				if existing, ok := l.globals[name]; ok {
					l.errs.Error(diag.Diagnostic{File: m.name, Message: fmt.Sprintf(
						"duplicate global %q: also defined in %s", name, l.modules[existing.moduleIdx].name)})
					continue
				}
				l.globals[name] = &globalSym{name: name, moduleIdx: idx, segment: seg, localAddr: r.Address}

			case objfmt.ExternalRef:
				name, err := m.obj.NameAt(r.SymbolPtr)
				if err != nil {
					l.errs.Error(diag.Diagnostic{File: m.name, Message: err.Error()})
					continue
				}
				externalRefs = append(externalRefs, pendingExternal{moduleIdx: idx, site: r, symbol: name})

			case objfmt.TextLabelRef, objfmt.DataLabelRef, objfmt.BssLabelRef:
				internalRefs = append(internalRefs, pendingInternal{moduleIdx: idx, site: r, target: labelRefSegment(r.Type)})
			}
		}
	}
	return internalRefs, externalRefs
}

func globalSegmentOf(t objfmt.RelocType) isa.Segment {
	switch t {
	case objfmt.GlobalText:
		return isa.SegText
	case objfmt.GlobalData:
		return isa.SegData
	default:
		return isa.SegBss
	}
}

func labelRefSegment(t objfmt.RelocType) isa.Segment {
	switch t {
	case objfmt.TextLabelRef:
		return isa.SegText
	case objfmt.DataLabelRef:
		return isa.SegData
	default:
		return isa.SegBss
	}
}

// layout assigns each module's per-segment absolute base and updates
// the three reserved size symbols.
func (l *Linker) layout(opts Options) {
	textBase := uint32(0)
	if opts.TextBase != nil {
		textBase = *opts.TextBase
	}

	var totalText, totalData, totalBss uint32
	cursor := textBase
	for _, m := range l.modules {
		m.textBase = cursor
		cursor += uint32(len(m.obj.Text))
		totalText += uint32(len(m.obj.Text))
	}

	dataBase := textBase + totalText
	if opts.DataBase != nil {
		dataBase = *opts.DataBase
	}
	cursor = dataBase
	for _, m := range l.modules {
		m.dataBase = cursor
		cursor += uint32(len(m.obj.Data))
		totalData += uint32(len(m.obj.Data))
	}
	for _, m := range l.modules {
		totalBss += m.obj.Header.BssSegSize
	}

	bssBase := dataBase + totalData
	switch {
	case opts.BssEnd != nil:
		bssBase = *opts.BssEnd - totalBss
	case opts.BssBase != nil:
		bssBase = *opts.BssBase
	}
	cursor = bssBase
	for _, m := range l.modules {
		m.bssBase = cursor
		cursor += m.obj.Header.BssSegSize
	}

	l.globals[reservedTextSize] = &globalSym{name: reservedTextSize, localAddr: totalText, reserved: true}
	l.globals[reservedDataSize] = &globalSym{name: reservedDataSize, localAddr: totalData, reserved: true}
	l.globals[reservedBssSize] = &globalSym{name: reservedBssSize, localAddr: totalBss, reserved: true}
}

func (l *Linker) baseOf(idx int, seg isa.Segment) uint32 {
	m := l.modules[idx]
	switch seg {
	case isa.SegText:
		return m.textBase
	case isa.SegData:
		return m.dataBase
	default:
		return m.bssBase
	}
}

func (l *Linker) resolveInternal(refs []pendingInternal) error {
	for _, ref := range refs {
		base := l.baseOf(ref.moduleIdx, ref.target)
		patch(l.segmentWords(ref.moduleIdx, ref.site.SourceSeg), int(ref.site.Address), base)
	}
	return nil
}

func (l *Linker) resolveExternal(refs []pendingExternal) error {
	for _, ref := range refs {
		sym, ok := l.globals[ref.symbol]
		if !ok {
			l.errs.Error(diag.Diagnostic{File: l.modules[ref.moduleIdx].name,
				Message: fmt.Sprintf("undefined external reference %q", ref.symbol)})
			continue
		}
		resolved := sym.localAddr
		if !sym.reserved {
			resolved = sym.localAddr + l.baseOf(sym.moduleIdx, sym.segment)
		}
		patch(l.segmentWords(ref.moduleIdx, ref.site.SourceSeg), int(ref.site.Address), resolved)
	}
	return nil
}

func (l *Linker) segmentWords(moduleIdx int, seg isa.Segment) []uint32 {
	m := l.modules[moduleIdx]
	if seg == isa.SegText {
		return m.obj.Text
	}
	return m.obj.Data
}

// patch adds resolved into the low 20 bits of words[index], preserving
// the high 12 bits and wrapping modulo 2^20.
func patch(words []uint32, index int, resolved uint32) {
	if index < 0 || index >= len(words) {
		return
	}
	word := words[index]
	words[index] = (word & 0xFFF00000) | ((word + resolved) & 0xFFFFF)
}

func (l *Linker) entryPoint() (uint32, error) {
	sym, ok := l.globals["main"]
	if !ok {
		return 0, fmt.Errorf("linker: undefined entry point: no symbol %q", "main")
	}
	return sym.localAddr + l.baseOf(sym.moduleIdx, sym.segment), nil
}

type span struct {
	name       string
	base, size uint32
}

func (s span) overlaps(o span) bool {
	if s.size == 0 || o.size == 0 {
		return false
	}
	return s.base < o.base+o.size && o.base < s.base+s.size
}

func (l *Linker) checkOverlap() error {
	var totalText, totalData, totalBss uint32
	for _, m := range l.modules {
		totalText += uint32(len(m.obj.Text))
		totalData += uint32(len(m.obj.Data))
		totalBss += m.obj.Header.BssSegSize
	}
	var textBase, dataBase, bssBase uint32
	if len(l.modules) > 0 {
		textBase = l.modules[0].textBase
		dataBase = l.modules[0].dataBase
		bssBase = l.modules[0].bssBase
	}

	text := span{"text", textBase, totalText}
	data := span{"data", dataBase, totalData}
	bss := span{"bss", bssBase, totalBss}

	if text.overlaps(data) {
		return fmt.Errorf("linker: segment overlap: .text/.data")
	}
	if text.overlaps(bss) {
		return fmt.Errorf("linker: segment overlap: .text/.bss")
	}
	if data.overlaps(bss) {
		return fmt.Errorf("linker: segment overlap: .data/.bss")
	}
	return nil
}

func (l *Linker) buildImage(entry uint32) *Image {
	var text, data []uint32
	var totalBss uint32
	for _, m := range l.modules {
		text = append(text, m.obj.Text...)
		data = append(data, m.obj.Data...)
		totalBss += m.obj.Header.BssSegSize
	}

	var textBase, dataBase, bssBase uint32
	if len(l.modules) > 0 {
		textBase = l.modules[0].textBase
		dataBase = l.modules[0].dataBase
		bssBase = l.modules[0].bssBase
	}

	return &Image{
		TextBase: textBase, DataBase: dataBase, BssBase: bssBase,
		TextSize: uint32(len(text)), DataSize: uint32(len(data)), BssSize: totalBss,
		Text: text, Data: data, Entry: entry,
	}
}

func (l *Linker) reportVerbose(img *Image) {
	fmt.Fprintf(l.out, "text: base=0x%05X size=%d words\n", img.TextBase, img.TextSize)
	for i, w := range img.Text {
		fmt.Fprintf(l.out, "  0x%05X: %s\n", img.TextBase+uint32(i), isa.Decode(w))
	}
	fmt.Fprintf(l.out, "data: base=0x%05X size=%d words\n", img.DataBase, img.DataSize)
	// Design note: layout advances the bss base per module, but this
	// report prints img.BssBase, the first module's bss base, which is
	// the start address of the whole bss segment.
	fmt.Fprintf(l.out, "bss:  base=0x%05X size=%d words (zero-initialized, not emitted)\n", img.BssBase, img.BssSize)
	fmt.Fprintf(l.out, "entry point: 0x%05X\n", img.Entry)
}
