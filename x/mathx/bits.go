package mathx

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Parity returns the XOR of the low n bits of v (1 when the count of ones is odd).
func Parity[T constraints.Unsigned](v T, n uint) uint8 {
	m := uint64(v)
	if n < 64 {
		m &= (1 << n) - 1
	}
	return uint8(bits.OnesCount64(m) & 1)
}

// Bit reports whether bit n of v is set.
func Bit[T constraints.Unsigned](v T, n uint) bool {
	return (uint64(v)>>n)&1 != 0
}

// B2U converts a level to 0/1 of the requested width.
func B2U[T constraints.Unsigned](b bool) T {
	if b {
		return 1
	}
	return 0
}
