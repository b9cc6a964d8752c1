package timex

import (
	"time"

	"periphsim/x/mathx"
)

// PeriodFromHz returns a nanosecond period for a requested frequency.
// freqHz==0 is coerced to 1 to avoid division by zero.
func PeriodFromHz(freqHz uint32) uint64 {
	if freqHz == 0 {
		freqHz = 1
	}
	return uint64(1_000_000_000 / uint64(freqHz))
}

// Elapsed converts a tick count at clkHz into simulated wall time.
func Elapsed(ticks uint64, clkHz uint32) time.Duration {
	if clkHz == 0 {
		clkHz = 1
	}
	sec := ticks / uint64(clkHz)
	rem := ticks % uint64(clkHz)
	return time.Duration(sec)*time.Second + time.Duration(rem*1_000_000_000/uint64(clkHz))
}

// Ticks is the inverse of Elapsed, rounded up so a wait never undershoots.
func Ticks(d time.Duration, clkHz uint32) uint64 {
	if d <= 0 {
		return 0
	}
	return mathx.CeilDiv(uint64(d)*uint64(clkHz), 1_000_000_000)
}
