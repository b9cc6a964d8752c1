// Package uart implements the serial transmit and receive framers and the
// register bridge that exposes them on the bus.
package uart

import (
	"strings"

	"periphsim/errcode"
	"periphsim/x/mathx"
)

// Parity selects the optional parity bit.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "invalid"
	}
}

func (p Parity) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Parity) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "", "none", "n":
		*p = ParityNone
	case "even", "e":
		*p = ParityEven
	case "odd", "o":
		*p = ParityOdd
	default:
		return errcode.New(errcode.InvalidParams, "uart.parity", string(b))
	}
	return nil
}

// bit returns the parity bit for the low n bits of v.
func (p Parity) bit(v uint8, n uint8) bool {
	odd := mathx.Parity(v, uint(n)) == 1
	if p == ParityOdd {
		return !odd
	}
	return odd
}

// Config is the static framing configuration shared by TX and RX.
type Config struct {
	ClockHz  uint32 `json:"clock_hz"`
	Baud     uint32 `json:"baud"`
	DataBits uint8  `json:"data_bits"`
	Parity   Parity `json:"parity"`
	StopBits uint8  `json:"stop_bits"`
}

const (
	DefaultClockHz = 100_000_000
	DefaultBaud    = 9600
)

// DefaultConfig is 9600 8N1 against a 100 MHz tick.
func DefaultConfig() Config {
	return Config{ClockHz: DefaultClockHz, Baud: DefaultBaud, DataBits: 8, Parity: ParityNone, StopBits: 1}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ClockHz == 0 {
		c.ClockHz = d.ClockHz
	}
	if c.Baud == 0 {
		c.Baud = d.Baud
	}
	if c.DataBits == 0 {
		c.DataBits = d.DataBits
	}
	if c.StopBits == 0 {
		c.StopBits = d.StopBits
	}
	return c
}

// Validate rejects configurations the framers cannot time.
func (c Config) Validate() error {
	switch {
	case c.ClockHz == 0 || c.Baud == 0:
		return errcode.New(errcode.InvalidParams, "uart.config", "clock and baud must be non-zero")
	case c.Divider() < 2:
		return errcode.New(errcode.InvalidParams, "uart.config", "baud too high for clock")
	case !mathx.Between(c.DataBits, 5, 8):
		return errcode.New(errcode.InvalidParams, "uart.config", "data bits must be 5..8")
	case !mathx.Between(c.StopBits, 1, 2):
		return errcode.New(errcode.InvalidParams, "uart.config", "stop bits must be 1 or 2")
	case c.Parity > ParityOdd:
		return errcode.New(errcode.InvalidParams, "uart.config", "unknown parity")
	}
	return nil
}

// Divider is the number of ticks per bit period.
func (c Config) Divider() uint32 { return mathx.Divider(c.ClockHz, c.Baud) }

// FrameBits is start + data + parity + stop.
func (c Config) FrameBits() uint32 {
	n := 1 + uint32(c.DataBits) + uint32(c.StopBits)
	if c.Parity != ParityNone {
		n++
	}
	return n
}
