// Package config holds the simulator configuration supplied as JSON.
package config

import (
	"encoding/json"

	"periphsim/errcode"
	"periphsim/i2c"
	"periphsim/uart"
)

// Handler names accepted in Target.Handler.
const (
	HandlerEcho = "echo"
	HandlerNack = "nack"
)

type System struct {
	ClockHz  uint32      `json:"clock_hz"`
	UART     uart.Config `json:"uart"`
	I2C      i2c.Config  `json:"i2c"`
	Targets  []Target    `json:"targets,omitempty"`
	Loopback bool        `json:"loopback"`
}

// Target describes one simulated I2C device.
type Target struct {
	Addr    uint8  `json:"addr"`
	Handler string `json:"handler"`
}

// Default is a loopback UART and one echo target at 0x42.
func Default() System {
	return System{
		ClockHz:  uart.DefaultClockHz,
		UART:     uart.DefaultConfig(),
		I2C:      i2c.DefaultConfig(),
		Targets:  []Target{{Addr: 0x42, Handler: HandlerEcho}},
		Loopback: true,
	}
}

// Decode unmarshals src ([]byte, string, or any JSON-encodable value) into
// dst.
func Decode[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

// Parse decodes a System over the defaults, propagates the shared clock to
// both peripherals and validates the result.
func Parse(src any) (System, error) {
	s := Default()
	if err := Decode(src, &s); err != nil {
		return System{}, &errcode.E{C: errcode.InvalidParams, Op: "config.parse", Err: err}
	}
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return System{}, err
	}
	return s, nil
}

// Normalize applies the system tick rate to both peripherals and fills
// missing fields from the defaults.
func (s System) Normalize() System {
	if s.ClockHz == 0 {
		s.ClockHz = uart.DefaultClockHz
	}
	s.UART.ClockHz = s.ClockHz
	s.I2C.ClockHz = s.ClockHz
	s.UART = s.UART.WithDefaults()
	s.I2C = s.I2C.WithDefaults()
	for i := range s.Targets {
		if s.Targets[i].Handler == "" {
			s.Targets[i].Handler = HandlerEcho
		}
	}
	return s
}

func (s System) Validate() error {
	if err := s.UART.Validate(); err != nil {
		return err
	}
	if err := s.I2C.Validate(); err != nil {
		return err
	}
	seen := map[uint8]bool{}
	for _, t := range s.Targets {
		if t.Addr > 0x7F {
			return errcode.New(errcode.InvalidParams, "config.validate", "target address beyond 7 bits")
		}
		if seen[t.Addr] {
			return errcode.New(errcode.InvalidParams, "config.validate", "duplicate target address")
		}
		seen[t.Addr] = true
		switch t.Handler {
		case HandlerEcho, HandlerNack:
		default:
			return errcode.New(errcode.Unsupported, "config.validate", "unknown target handler "+t.Handler)
		}
	}
	return nil
}
