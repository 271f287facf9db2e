package bitfield

import "testing"

func TestGetSetRoundTrip(t *testing.T) {
	var word uint32
	word = Set(word, 28, 4, 0xA)
	word = Set(word, 24, 4, 0x3)
	word = Set(word, 0, 16, 0xBEEF)

	if got := Get(word, 28, 4); got != 0xA {
		t.Errorf("opcode field = 0x%X, want 0xA", got)
	}
	if got := Get(word, 24, 4); got != 0x3 {
		t.Errorf("rd field = 0x%X, want 0x3", got)
	}
	if got := Get(word, 0, 16); got != 0xBEEF {
		t.Errorf("imm field = 0x%X, want 0xBEEF", got)
	}
}

func TestSetPreservesOtherBits(t *testing.T) {
	word := uint32(0xFFFFFFFF)
	word = Set(word, 0, 20, 0)
	if word != 0xFFF00000 {
		t.Errorf("word = 0x%08X, want 0xFFF00000", word)
	}
}

func TestSignExtend(t *testing.T) {
	cases := []struct {
		val  uint32
		n    int
		want int32
	}{
		{0x00000, 20, 0},
		{0xFFFFF, 20, -1},
		{0x80000, 20, -(1 << 19)},
		{0x7FFFF, 20, (1 << 19) - 1},
	}
	for _, c := range cases {
		if got := SignExtend(c.val, c.n); got != c.want {
			t.Errorf("SignExtend(0x%X, %d) = %d, want %d", c.val, c.n, got, c.want)
		}
	}
}

func TestFitsSignedUnsigned(t *testing.T) {
	if !FitsSigned(-1<<19, 20) {
		t.Error("min 20-bit signed value should fit")
	}
	if FitsSigned(1<<19, 20) {
		t.Error("one past max 20-bit signed value should not fit")
	}
	if !FitsUnsigned(0xFFFFF, 20) {
		t.Error("max 20-bit unsigned value should fit")
	}
	if FitsUnsigned(0x100000, 20) {
		t.Error("one past max 20-bit unsigned value should not fit")
	}
}
