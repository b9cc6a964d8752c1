// Package uartport presents the UART bridge to host code as a
// tinygo.org/x/drivers.UART.
//
// Transmission goes through the TX_DATA register. Reception follows the
// bridge outputs every tick: an rx-valid pulse marks a frame, and RX_DATA is
// captured the tick after, once the bridge has latched it.
//
// Receive faults stay in order with the data: a byte that arrived with a
// parity fault is returned together with an errcode.Parity error, and a
// framing fault takes a slot of its own that reads as errcode.Framing.
package uartport

import (
	"tinygo.org/x/drivers"

	"periphsim/apb"
	"periphsim/errcode"
	"periphsim/uart"
)

const DefaultMaxPolls = 1 << 20

var _ drivers.UART = (*Port)(nil)

// Clock is the time base the port waits on and samples from.
type Clock interface {
	Tick()
	Observe(func(tick uint64))
}

// Outputs are the bridge outputs the port samples each tick.
type Outputs interface {
	Status() uint32
	RxData() uint8
	Config() uart.Config
	FramingError() bool
	ParityError() bool
}

type Port struct {
	m   *apb.Master
	clk Clock
	out Outputs

	MaxPolls int

	rx      ring
	window  uint64 // ticks within which repeated valid pulses are one frame
	last    uint64
	seen    bool
	pending bool
	parity  bool // fault seen with the pending frame
	framing bool
}

func New(m *apb.Master, clk Clock, out Outputs) *Port {
	cfg := out.Config()
	p := &Port{
		m:        m,
		clk:      clk,
		out:      out,
		MaxPolls: DefaultMaxPolls,
		window:   uint64(cfg.Divider()) * uint64(cfg.StopBits),
	}
	clk.Observe(p.sample)
	return p
}

func (p *Port) sample(tick uint64) {
	if p.pending {
		var c errcode.Code
		if p.parity {
			c = errcode.Parity
		}
		p.rx.put(slot{b: p.out.RxData(), err: c})
		p.pending = false
	}
	// Framing is sticky until the next start edge, so a rising edge is one fault.
	fe := p.out.FramingError()
	if fe && !p.framing {
		p.rx.put(slot{err: errcode.Framing})
	}
	p.framing = fe
	if p.out.Status()&uart.StatusRxValid == 0 {
		return
	}
	if p.seen && tick-p.last <= p.window {
		return
	}
	p.seen, p.last, p.pending = true, tick, true
	p.parity = p.out.ParityError()
}

// Read copies buffered bytes into b. It never waits, and stops at the first
// faulted slot: a parity byte is copied and its error returned, a framing
// slot is consumed and its error returned.
func (p *Port) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) && p.rx.len() > 0 {
		e := p.rx.get()
		if e.err == errcode.Framing {
			return n, rxErr(e.err)
		}
		b[n] = e.b
		n++
		if e.err != "" {
			return n, rxErr(e.err)
		}
	}
	return n, nil
}

// ReadByte returns the oldest buffered byte, or the fault stored with it.
func (p *Port) ReadByte() (byte, error) {
	if p.rx.len() == 0 {
		return 0, errcode.New(errcode.Busy, "uartport.read", "buffer empty")
	}
	e := p.rx.get()
	if e.err != "" {
		return e.b, rxErr(e.err)
	}
	return e.b, nil
}

func rxErr(c errcode.Code) error {
	if c == errcode.Framing {
		return errcode.New(c, "uartport.read", "framing fault")
	}
	return errcode.New(c, "uartport.read", "parity mismatch")
}

func (p *Port) Buffered() int { return p.rx.len() }

// Write loads each byte into TX_DATA once the transmitter is idle. It returns
// when the last byte has been accepted, not when it has left the line.
func (p *Port) Write(b []byte) (int, error) {
	for i, v := range b {
		if err := p.waitIdle(); err != nil {
			return i, err
		}
		if err := p.m.Write(uart.RegTxData, uint32(v)); err != nil {
			return i, err
		}
	}
	return len(b), nil
}

// Flush waits until the last byte written has been sent.
func (p *Port) Flush() error { return p.waitIdle() }

func (p *Port) waitIdle() error {
	for n := 0; n < p.MaxPolls; n++ {
		st, err := p.m.Read(uart.RegStatus)
		if err != nil {
			return err
		}
		if st&uart.StatusBusy == 0 {
			return nil
		}
	}
	return errcode.New(errcode.Timeout, "uartport.write", "transmitter stayed busy")
}

type slot struct {
	b   byte
	err errcode.Code
}

// ring is a FIFO of received slots that drops its oldest entry when full.
type ring struct {
	buf        [256]slot
	head, tail int
}

func (r *ring) len() int {
	if r.head >= r.tail {
		return r.head - r.tail
	}
	return len(r.buf) - r.tail + r.head
}

func (r *ring) put(s slot) {
	next := (r.head + 1) % len(r.buf)
	if next == r.tail {
		r.tail = (r.tail + 1) % len(r.buf)
	}
	r.buf[r.head] = s
	r.head = next
}

func (r *ring) get() slot {
	if r.len() == 0 {
		return slot{}
	}
	s := r.buf[r.tail]
	r.tail = (r.tail + 1) % len(r.buf)
	return s
}
