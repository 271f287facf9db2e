// Package bitfield provides generic helpers for packing and unpacking
// fixed-width bit fields inside an instruction word.
package bitfield

import "golang.org/x/exp/constraints"

// Mask returns a value with the low n bits set.
func Mask[T constraints.Unsigned](n int) T {
	if n <= 0 {
		return 0
	}
	return T(1)<<uint(n) - 1
}

// Get extracts the n-bit field starting at bit shift from word.
func Get[T constraints.Unsigned](word T, shift, n int) T {
	return (word >> uint(shift)) & Mask[T](n)
}

// Set returns word with its n-bit field at shift replaced by the low n
// bits of val. Bits outside the field are left untouched.
func Set[T constraints.Unsigned](word T, shift, n int, val T) T {
	m := Mask[T](n) << uint(shift)
	return (word &^ m) | ((val << uint(shift)) & m)
}

// SignExtend treats the low n bits of val as a two's-complement signed
// quantity and sign-extends it into an int32.
func SignExtend(val uint32, n int) int32 {
	shift := uint(32 - n)
	return int32(val<<shift) >> shift
}

// FitsSigned reports whether val fits in an n-bit signed field.
func FitsSigned(val int64, n int) bool {
	lo := -(int64(1) << uint(n-1))
	hi := int64(1)<<uint(n-1) - 1
	return val >= lo && val <= hi
}

// FitsUnsigned reports whether val fits in an n-bit unsigned field.
func FitsUnsigned(val int64, n int) bool {
	hi := int64(1)<<uint(n) - 1
	return val >= 0 && val <= hi
}
