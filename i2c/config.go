// Package i2c implements a single-master I2C protocol engine, its register
// bridge, and a simulated target device for exercising it.
package i2c

import (
	"periphsim/errcode"
	"periphsim/x/mathx"
)

const (
	DefaultClockHz = 100_000_000
	DefaultBusHz   = 100_000
)

// Config sets the tick rate and target SCL frequency.
type Config struct {
	ClockHz uint32 `json:"clock_hz"`
	BusHz   uint32 `json:"bus_hz"`
}

func DefaultConfig() Config { return Config{ClockHz: DefaultClockHz, BusHz: DefaultBusHz} }

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	if c.ClockHz == 0 {
		c.ClockHz = DefaultClockHz
	}
	if c.BusHz == 0 {
		c.BusHz = DefaultBusHz
	}
	return c
}

func (c Config) Validate() error {
	if c.ClockHz == 0 || c.BusHz == 0 {
		return errcode.New(errcode.InvalidParams, "i2c.config", "clock and bus frequency must be non-zero")
	}
	if uint64(c.BusHz)*4 > uint64(c.ClockHz) {
		return errcode.New(errcode.InvalidParams, "i2c.config", "bus frequency above clock/4")
	}
	return nil
}

// Divider is the number of ticks per quarter bit-cell.
func (c Config) Divider() uint32 {
	return mathx.Divider(c.ClockHz, uint32(mathx.Clamp(uint64(c.BusHz)*4, 1, 1<<32-1)))
}
