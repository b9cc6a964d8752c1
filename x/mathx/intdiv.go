package mathx

import "golang.org/x/exp/constraints"

// CeilDiv returns ceil(a/b). b == 0 yields 0.
func CeilDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// RoundDiv returns floor((a + b/2)/b), classic rounding for positives.
func RoundDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

// Divider returns the tick count of one period of freq against clk, rounded
// to nearest and never below 1.
func Divider(clk, freq uint32) uint32 {
	d := RoundDiv(uint64(clk), uint64(freq))
	if d < 1 {
		return 1
	}
	if d > 1<<31 {
		return 1 << 31
	}
	return uint32(d)
}
