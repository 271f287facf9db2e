package linker

import (
	"bytes"
	"testing"

	"github.com/wandwramp/toolchain/internal/isa"
	"github.com/wandwramp/toolchain/internal/objfmt"
)

// buildModule assembles a minimal objfmt.Module by hand for linker
// tests: text/data words plus a small relocation set.
func buildModule(text, data []uint32, bssSize uint32, relocs []objfmt.Reloc, names *objfmt.NameBlobBuilder) *objfmt.Module {
	return &objfmt.Module{
		Header: objfmt.Header{BssSegSize: bssSize},
		Text:   text,
		Data:   data,
		Relocs: relocs,
		Names:  names.Bytes(),
	}
}

// TestCrossModuleReference links two modules where the first defines
// "main" and jumps to "helper", defined (and exported) by the second.
func TestCrossModuleReference(t *testing.T) {
	names1 := objfmt.NewNameBlobBuilder()
	mainPtr := names1.Add("main")
	helperPtr := names1.Add("helper")
	mod1 := buildModule(
		[]uint32{isa.Encode(mustLookup(t, "j"))}, // j helper
		nil, 0,
		[]objfmt.Reloc{
			{Address: 0, SymbolPtr: mainPtr, Type: objfmt.GlobalText, SourceSeg: isa.SegNone},
			{Address: 0, SymbolPtr: helperPtr, Type: objfmt.ExternalRef, SourceSeg: isa.SegText},
		},
		names1,
	)

	names2 := objfmt.NewNameBlobBuilder()
	helperPtr2 := names2.Add("helper")
	mod2 := buildModule(
		[]uint32{isa.Encode(mustLookup(t, "jr"))},
		nil, 0,
		[]objfmt.Reloc{
			{Address: 0, SymbolPtr: helperPtr2, Type: objfmt.GlobalText, SourceSeg: isa.SegNone},
		},
		names2,
	)

	l := New(&bytes.Buffer{}, false)
	l.AddModule("mod1.o", mod1)
	l.AddModule("mod2.o", mod2)

	img, err := l.Link(Options{})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if img.Entry != 0 {
		t.Errorf("entry = %d, want 0 (main is mod1.text[0])", img.Entry)
	}
	// helper is at mod2's text base, which follows mod1's one word.
	want := uint32(1)
	if img.Text[0]&0xFFFFF != want {
		t.Errorf("resolved external ref = 0x%05X, want 0x%05X", img.Text[0]&0xFFFFF, want)
	}
}

// TestDuplicateGlobalSymbol asserts two modules exporting the same
// global name is a collectable (reported, not immediately panicking)
// linker error.
func TestDuplicateGlobalSymbol(t *testing.T) {
	names1 := objfmt.NewNameBlobBuilder()
	mainPtr := names1.Add("main")
	mod1 := buildModule([]uint32{0}, nil, 0,
		[]objfmt.Reloc{{Address: 0, SymbolPtr: mainPtr, Type: objfmt.GlobalText, SourceSeg: isa.SegNone}}, names1)

	names2 := objfmt.NewNameBlobBuilder()
	mainPtr2 := names2.Add("main")
	mod2 := buildModule([]uint32{0}, nil, 0,
		[]objfmt.Reloc{{Address: 0, SymbolPtr: mainPtr2, Type: objfmt.GlobalText, SourceSeg: isa.SegNone}}, names2)

	var out bytes.Buffer
	l := New(&out, false)
	l.AddModule("a.o", mod1)
	l.AddModule("b.o", mod2)

	if _, err := l.Link(Options{}); err == nil {
		t.Fatal("expected error for duplicate global symbol")
	}
	if out.Len() == 0 {
		t.Error("expected duplicate-symbol diagnostic to be printed")
	}
}

// TestUndefinedExternal asserts an ExternalRef with no matching global
// is reported and fails the link.
func TestUndefinedExternal(t *testing.T) {
	names := objfmt.NewNameBlobBuilder()
	mainPtr := names.Add("main")
	ghostPtr := names.Add("ghost")
	mod := buildModule([]uint32{0, 0}, nil, 0,
		[]objfmt.Reloc{
			{Address: 0, SymbolPtr: mainPtr, Type: objfmt.GlobalText, SourceSeg: isa.SegNone},
			{Address: 1, SymbolPtr: ghostPtr, Type: objfmt.ExternalRef, SourceSeg: isa.SegText},
		}, names)

	l := New(&bytes.Buffer{}, false)
	l.AddModule("a.o", mod)
	if _, err := l.Link(Options{}); err == nil {
		t.Fatal("expected error for undefined external reference")
	}
}

// TestSegmentOverlap forces an explicit -Ttext/-Tdata collision via
// Options and checks the overlap guard fires.
func TestSegmentOverlap(t *testing.T) {
	names := objfmt.NewNameBlobBuilder()
	mainPtr := names.Add("main")
	mod := buildModule([]uint32{0, 0}, []uint32{0, 0}, 0,
		[]objfmt.Reloc{{Address: 0, SymbolPtr: mainPtr, Type: objfmt.GlobalText, SourceSeg: isa.SegNone}}, names)

	l := New(&bytes.Buffer{}, false)
	l.AddModule("a.o", mod)

	textBase := uint32(0)
	dataBase := uint32(1) // overlaps text words [0,2)
	_, err := l.Link(Options{TextBase: &textBase, DataBase: &dataBase})
	if err == nil {
		t.Fatal("expected segment overlap error")
	}
}

// TestZeroLengthSegmentsDoNotOverlap covers design note #3: two
// zero-size segments sharing a start address are not an overlap.
func TestZeroLengthSegmentsDoNotOverlap(t *testing.T) {
	names := objfmt.NewNameBlobBuilder()
	mainPtr := names.Add("main")
	mod := buildModule(nil, nil, 0,
		[]objfmt.Reloc{{Address: 0, SymbolPtr: mainPtr, Type: objfmt.GlobalText, SourceSeg: isa.SegNone}}, names)

	l := New(&bytes.Buffer{}, false)
	l.AddModule("a.o", mod)
	if _, err := l.Link(Options{}); err != nil {
		t.Fatalf("zero-length segments should not overlap: %v", err)
	}
}

// TestReservedSizeSymbols asserts text_size/data_size/bss_size resolve
// without a module base being added (design note #2).
func TestReservedSizeSymbols(t *testing.T) {
	names := objfmt.NewNameBlobBuilder()
	mainPtr := names.Add("main")
	sizePtr := names.Add("text_size")
	mod := buildModule([]uint32{0, 0, 0}, nil, 0,
		[]objfmt.Reloc{
			{Address: 0, SymbolPtr: mainPtr, Type: objfmt.GlobalText, SourceSeg: isa.SegNone},
			{Address: 1, SymbolPtr: sizePtr, Type: objfmt.ExternalRef, SourceSeg: isa.SegText},
		}, names)

	textBase := uint32(0x1000)
	l := New(&bytes.Buffer{}, false)
	l.AddModule("a.o", mod)
	img, err := l.Link(Options{TextBase: &textBase})
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if img.Text[1]&0xFFFFF != 3 {
		t.Errorf("text_size resolved to 0x%05X, want 3 (no base added)", img.Text[1]&0xFFFFF)
	}
}

// TestMissingEntryPoint asserts a module with no "main" symbol fails.
func TestMissingEntryPoint(t *testing.T) {
	names := objfmt.NewNameBlobBuilder()
	mod := buildModule([]uint32{0}, nil, 0, nil, names)

	l := New(&bytes.Buffer{}, false)
	l.AddModule("a.o", mod)
	if _, err := l.Link(Options{}); err == nil {
		t.Fatal("expected error for missing main symbol")
	}
}

func mustLookup(t *testing.T, mnemonic string) isa.InstrDef {
	t.Helper()
	d, ok := isa.Lookup(mnemonic)
	if !ok {
		t.Fatalf("isa.Lookup(%q) failed", mnemonic)
	}
	return d
}
