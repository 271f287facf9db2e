package isa

import "testing"

func TestLookupInstruction(t *testing.T) {
	d, ok := Lookup("ADDI")
	if !ok {
		t.Fatal("expected addi to be found case-insensitively")
	}
	if d.Opcode != 0x1 || d.Func != 0x0 || d.Shape != ShapeI || d.OperandFormat != "d,s,i" {
		t.Errorf("addi = %+v", d)
	}
}

func TestLookupDirective(t *testing.T) {
	d, ok := Lookup(".word")
	if !ok || d.Shape != ShapeDirective {
		t.Fatalf(".word lookup = %+v, %v", d, ok)
	}
	if !IsDirective(".word") {
		t.Error("IsDirective(\".word\") should be true")
	}
	if IsDirective("addi") {
		t.Error("IsDirective(\"addi\") should be false")
	}
}

func TestUnknownMnemonic(t *testing.T) {
	if _, ok := Lookup("frobnicate"); ok {
		t.Error("frobnicate should not be a known mnemonic")
	}
}

func TestJShapeFuncIsAlwaysZero(t *testing.T) {
	for _, d := range catalogue {
		if d.Shape != ShapeJ {
			continue
		}
		if d.Func != 0 {
			t.Errorf("%s: J-shape entry has nonzero func %d", d.Mnemonic, d.Func)
		}
	}
}

func TestGeneralRegisterAliases(t *testing.T) {
	cases := map[string]int{
		"r0": 0, "$0": 0, "$zero": 0, "$sp": 14, "$ra": 15, "r15": 15,
	}
	for tok, want := range cases {
		got, ok := GeneralRegister(tok)
		if !ok || got != want {
			t.Errorf("GeneralRegister(%q) = %d, %v, want %d", tok, got, ok, want)
		}
	}
}

func TestGeneralRegisterOutOfRange(t *testing.T) {
	if _, ok := GeneralRegister("r16"); ok {
		t.Error("r16 should be out of range")
	}
}

func TestSpecialRegister(t *testing.T) {
	got, ok := SpecialRegister("$cctrl")
	if !ok || got != 4 {
		t.Errorf("SpecialRegister($cctrl) = %d, %v, want 4", got, ok)
	}
}

func TestEncode(t *testing.T) {
	d, _ := Lookup("j")
	word := Encode(d)
	if word != 0x40000000 {
		t.Errorf("Encode(j) = 0x%08X, want 0x40000000", word)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	// 0x11000005 is what the assembler emits for "addi r1, r0, 0x5".
	s := Decode(0x11000005)
	if s != "addi r1, r0, 0x5" {
		t.Errorf("Decode(0x11000005) = %q, want %q", s, "addi r1, r0, 0x5")
	}
}
