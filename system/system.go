// Package system assembles the clock, both peripheral bridges, the simulated
// I2C targets and the remote serial peer from a config.System, and publishes
// interrupt edges on an event bus.
package system

import (
	"periphsim/apb"
	"periphsim/bus"
	"periphsim/config"
	"periphsim/errcode"
	"periphsim/i2c"
	"periphsim/line"
	"periphsim/sim"
	"periphsim/uart"
)

// Peripheral names used in topics and by the sequencer.
const (
	UART = "uart"
	I2C  = "i2c"
)

// IRQEvent is published on {"irq", <peripheral>} when an interrupt line rises.
type IRQEvent struct {
	Tick   uint64
	Status uint32
}

// ResetEvent is published on {"system", "reset"}.
type ResetEvent struct {
	Tick uint64 // ticks elapsed before the reset
}

func IRQTopic(name string) bus.Topic { return bus.T("irq", name) }

var TopicReset = bus.T("system", "reset")

// System owns one instance of everything. It is not safe for concurrent use.
type System struct {
	cfg  config.System
	clk  *sim.Clock
	conn *bus.Connection

	uart    *uart.Bridge
	i2c     *i2c.Bridge
	targets []*i2c.Target
	peer    *peer
	rxLevel bool
	sdaHold *line.Puller

	masters map[string]*apb.Master
	irqPrev map[string]bool
}

// New builds a System. hub may be nil when no events are wanted.
func New(cfg config.System, hub *bus.Bus) (*System, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &System{
		cfg:     cfg,
		rxLevel: true,
		irqPrev: map[string]bool{},
	}
	if hub != nil {
		s.conn = hub.NewConnection("system")
	}

	s.peer = newPeer(cfg.UART)
	s.uart = uart.NewBridge(cfg.UART, s.rxLine)
	s.i2c = i2c.NewBridge(cfg.I2C)
	s.sdaHold = s.i2c.SDA().Pull()
	s.clk = sim.NewClock(s.uart, s.i2c, s.peer)
	for _, t := range cfg.Targets {
		var h i2c.Handler
		switch t.Handler {
		case config.HandlerNack:
			h = i2c.Nack{}
		default:
			h = &i2c.Echo{}
		}
		tg := s.i2c.AttachTarget(t.Addr, h)
		s.targets = append(s.targets, tg)
		s.clk.Add(tg)
	}
	s.masters = map[string]*apb.Master{
		UART: apb.NewMaster(s.uart.Port(), s.clk),
		I2C:  apb.NewMaster(s.i2c.Port(), s.clk),
	}
	s.clk.Observe(s.publishIRQs)
	return s, nil
}

func (s *System) rxLine() bool {
	if s.cfg.Loopback {
		return s.uart.TxLine()
	}
	return s.rxLevel && s.peer.line()
}

func (s *System) publishIRQs(tick uint64) {
	for _, p := range []struct {
		name   string
		level  bool
		status func() uint32
	}{
		{UART, s.uart.IRQ(), s.uart.Status},
		{I2C, s.i2c.IRQ(), s.i2c.Status},
	} {
		rose := p.level && !s.irqPrev[p.name]
		s.irqPrev[p.name] = p.level
		if rose && s.conn != nil {
			s.conn.Publish(&bus.Message{Topic: IRQTopic(p.name), Payload: IRQEvent{Tick: tick, Status: p.status()}})
		}
	}
}

func (s *System) Config() config.System { return s.cfg }
func (s *System) Clock() *sim.Clock     { return s.clk }
func (s *System) Now() uint64           { return s.clk.Now() }
func (s *System) Tick()                 { s.clk.Tick() }
func (s *System) Run(n uint64)          { s.clk.Run(n) }

// Observe registers fn to run after every tick.
func (s *System) Observe(fn func(tick uint64)) { s.clk.Observe(fn) }

func (s *System) UART() *uart.Bridge     { return s.uart }
func (s *System) I2C() *i2c.Bridge       { return s.i2c }
func (s *System) Targets() []*i2c.Target { return s.targets }

// Target returns the simulated device at addr.
func (s *System) Target(addr uint8) (*i2c.Target, bool) {
	for _, t := range s.targets {
		if t.Addr == addr {
			return t, true
		}
	}
	return nil, false
}

// Master returns the bus master for a peripheral name.
func (s *System) Master(name string) (*apb.Master, error) {
	m, ok := s.masters[name]
	if !ok {
		return nil, errcode.New(errcode.InvalidParams, "system.master", "unknown peripheral "+name)
	}
	return m, nil
}

// IRQ reports the interrupt output of a peripheral.
func (s *System) IRQ(name string) (bool, error) {
	switch name {
	case UART:
		return s.uart.IRQ(), nil
	case I2C:
		return s.i2c.IRQ(), nil
	}
	return false, errcode.New(errcode.InvalidParams, "system.irq", "unknown peripheral "+name)
}

// WaitIRQ ticks until the peripheral's interrupt output is asserted.
func (s *System) WaitIRQ(name string, max uint64) (uint64, error) {
	if _, err := s.IRQ(name); err != nil {
		return 0, err
	}
	return s.clk.RunUntil(func() bool { v, _ := s.IRQ(name); return v }, max)
}

// SetRX forces the receive line low (false) or releases it. Ignored in
// loopback.
func (s *System) SetRX(level bool) { s.rxLevel = level }

// SendRX queues bytes for the remote peer to transmit onto the receive line.
func (s *System) SendRX(b ...uint8) error {
	if s.cfg.Loopback {
		return errcode.New(errcode.Unsupported, "system.rx", "receive line is looped back")
	}
	s.peer.enqueue(b...)
	return nil
}

// SetSDA holds the I2C data line low (false) from outside the bus, or
// releases it.
func (s *System) SetSDA(level bool) {
	if level {
		s.sdaHold.Release()
	} else {
		s.sdaHold.Low()
	}
}

// RXIdle reports whether the remote peer has finished sending.
func (s *System) RXIdle() bool { return s.peer.idle() }

// Reset forces every part to its initial state and releases the receive and
// data lines. Target logs survive.
func (s *System) Reset() {
	before := s.clk.Now()
	s.clk.Reset()
	s.rxLevel = true
	s.sdaHold.Release()
	for k := range s.irqPrev {
		s.irqPrev[k] = false
	}
	if s.conn != nil {
		s.conn.Publish(&bus.Message{Topic: TopicReset, Payload: ResetEvent{Tick: before}})
	}
}

// Close detaches from the event bus.
func (s *System) Close() {
	if s.conn != nil {
		s.conn.Disconnect()
	}
}
