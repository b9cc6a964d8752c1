package i2c

import (
	"periphsim/line"
	"periphsim/x/mathx"
)

// Handler supplies a simulated target's per-byte behaviour.
type Handler interface {
	// Address is called when the target's own address is received.
	// Returning false leaves the address unacknowledged.
	Address(read bool) bool
	// Write receives a data byte; returning false NACKs it.
	Write(b byte) bool
	// Read returns the byte to drive for a read transaction.
	Read() byte
	// Stop is called on a STOP condition ending an addressed transaction.
	Stop()
}

type targetState uint8

const (
	tIdle     targetState = iota
	tAddr                 // shifting in the address byte
	tAckAddr              // address matched, ACK from next SCL fall
	tAckHold              // pulling ACK low until SCL falls
	tWrite                // shifting in a data byte
	tAckWrite             // byte accepted, ACK from next SCL fall
	tRead                 // driving a data byte
	tReadAck              // sampling the master's ACK
	tIgnore               // not addressed, or transfer finished
)

type targetRegs struct {
	state    targetState
	prevSCL  bool
	prevSDA  bool
	bit      uint8
	shift    uint8
	read     bool
	pull     bool
	addrSeen bool
}

// Target is a simulated I2C device on the open-drain lines. It samples SDA on
// SCL rise, pulls SDA low for ACK between the eighth and ninth SCL falls, and
// serves one data byte per read transaction.
type Target struct {
	Addr uint8

	h        Handler
	scl, sda func() bool

	cur, next targetRegs

	observed  []byte
	sent      []byte
	masterAck []bool
}

// NewTarget attaches a target with a 7-bit address to the resolved lines.
// Connect its SDA drive to the data line with Attach.
func NewTarget(addr uint8, h Handler, scl, sda func() bool) *Target {
	t := &Target{Addr: addr & 0x7F, h: h, scl: scl, sda: sda}
	t.Reset()
	return t
}

// SDA is the target's drive on the data line.
func (t *Target) SDA() line.Drive {
	if t.cur.pull {
		return line.Low
	}
	return line.Released
}

// Observed returns every byte received from the master, address bytes included.
func (t *Target) Observed() []byte { return append([]byte(nil), t.observed...) }

// Sent returns the bytes driven on reads.
func (t *Target) Sent() []byte { return append([]byte(nil), t.sent...) }

// MasterAcks returns the acknowledge level the master gave after each byte sent.
func (t *Target) MasterAcks() []bool { return append([]bool(nil), t.masterAck...) }

func (t *Target) Eval() {
	c := t.cur
	n := c
	scl, sda := t.scl(), t.sda()
	n.prevSCL, n.prevSDA = scl, sda

	start := c.prevSCL && scl && c.prevSDA && !sda
	stop := c.prevSCL && scl && !c.prevSDA && sda
	rise := !c.prevSCL && scl
	fall := c.prevSCL && !scl

	switch {
	case start:
		n.state, n.bit, n.shift, n.pull = tAddr, 0, 0, false
		t.next = n
		return
	case stop:
		if c.addrSeen {
			t.h.Stop()
		}
		n.state, n.pull, n.addrSeen = tIdle, false, false
		t.next = n
		return
	}

	switch c.state {
	case tAddr:
		if !rise {
			break
		}
		n.shift = c.shift<<1 | mathx.B2U[uint8](sda)
		n.bit = c.bit + 1
		if n.bit < 8 {
			break
		}
		t.observed = append(t.observed, n.shift)
		n.read = n.shift&1 != 0
		if n.shift>>1 == t.Addr && t.h.Address(n.read) {
			n.addrSeen = true
			n.state = tAckAddr
		} else {
			n.state = tIgnore
		}
	case tAckAddr, tAckWrite:
		if fall {
			n.pull = true
			n.state = tAckHold
		}
	case tAckHold:
		if !fall {
			break
		}
		n.bit, n.shift = 0, 0
		n.pull = false
		if c.read {
			b := t.h.Read()
			t.sent = append(t.sent, b)
			n.shift = b
			n.pull = !mathx.Bit(b, 7)
			n.state = tRead
		} else {
			n.state = tWrite
		}
	case tWrite:
		if !rise {
			break
		}
		n.shift = c.shift<<1 | mathx.B2U[uint8](sda)
		n.bit = c.bit + 1
		if n.bit < 8 {
			break
		}
		t.observed = append(t.observed, n.shift)
		if t.h.Write(n.shift) {
			n.state = tAckWrite
		} else {
			n.state = tIgnore
		}
	case tRead:
		if !fall {
			break
		}
		n.bit = c.bit + 1
		if n.bit == 8 {
			n.pull = false
			n.state = tReadAck
			break
		}
		n.shift = c.shift << 1
		n.pull = !mathx.Bit(n.shift, 7)
	case tReadAck:
		if rise {
			t.masterAck = append(t.masterAck, !sda)
			n.state = tIgnore
		}
	}
	t.next = n
}

func (t *Target) Commit() { t.cur = t.next }

// Reset releases SDA and forgets any transfer in progress. Logs are kept.
func (t *Target) Reset() {
	t.cur = targetRegs{prevSCL: true, prevSDA: true}
	t.next = t.cur
}

// ---- Handlers ----

// Echo acknowledges everything and returns written bytes in FIFO order on
// reads (0xFF when empty).
type Echo struct {
	fifo  []byte
	stops int
}

func (e *Echo) Address(bool) bool { return true }
func (e *Echo) Write(b byte) bool { e.fifo = append(e.fifo, b); return true }
func (e *Echo) Read() byte {
	if len(e.fifo) == 0 {
		return 0xFF
	}
	b := e.fifo[0]
	e.fifo = e.fifo[1:]
	return b
}
func (e *Echo) Stop()        { e.stops++ }
func (e *Echo) Pending() int { return len(e.fifo) }
func (e *Echo) Stops() int   { return e.stops }

// Nack never acknowledges its address.
type Nack struct{}

func (Nack) Address(bool) bool { return false }
func (Nack) Write(byte) bool   { return false }
func (Nack) Read() byte        { return 0xFF }
func (Nack) Stop()             {}
