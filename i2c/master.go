package i2c

import (
	"periphsim/line"
	"periphsim/x/mathx"
)

// State is the transaction state.
type State uint8

const (
	StateIdle State = iota
	StateStart
	StateAddrSend
	StateAckCheck
	StateDataWrite
	StateDataRead
	StateSendAck
	StateStop
)

var stateNames = [...]string{"idle", "start", "addr_send", "ack_check", "data_write", "data_read", "send_ack", "stop"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Phase is the quarter position within a bit-cell.
type Phase uint8

const (
	PhaseSetup Phase = iota // SCL low, SDA updated
	PhaseRise               // SCL rises
	PhaseHold               // SCL high, SDA sampled
	PhaseFall               // SCL falls
)

func (p Phase) next() Phase { return (p + 1) & 3 }

// Request carries the one-tick request lines.
type Request struct {
	Start, Stop, Read, Write bool
}

type masterRegs struct {
	state State
	phase Phase
	cnt   uint32

	bit   uint8
	shift uint8

	// Captured when the transaction is accepted.
	addr    uint8
	data    uint8
	read    bool
	write   bool
	dataAck bool // the pending ACK_CHECK follows a data byte

	scl    bool
	sdaOut bool
	sdaEn  bool

	busy   bool
	done   bool
	ackErr bool
	rxData uint8
}

// Master is the protocol engine. Each bit-cell is four phases of Divider ticks.
type Master struct {
	div    uint32
	req    func() Request
	addr   func() uint8
	txData func() uint8
	sda    func() bool // resolved SDA level

	cur, next masterRegs
}

// NewMaster builds an engine. req is sampled every tick; addr and txData are
// captured when start is accepted; sda reads the resolved data line.
func NewMaster(cfg Config, req func() Request, addr, txData func() uint8, sda func() bool) *Master {
	m := &Master{div: cfg.Divider(), req: req, addr: addr, txData: txData, sda: sda}
	m.Reset()
	return m
}

func (m *Master) State() State    { return m.cur.state }
func (m *Master) Phase() Phase    { return m.cur.phase }
func (m *Master) Busy() bool      { return m.cur.busy }
func (m *Master) Done() bool      { return m.cur.done }
func (m *Master) AckError() bool  { return m.cur.ackErr }
func (m *Master) RxData() uint8   { return m.cur.rxData }
func (m *Master) Reading() bool   { return m.cur.read }
func (m *Master) SCL() line.Drive { return line.Drive{Enable: true, Value: m.cur.scl} }
func (m *Master) SDA() line.Drive { return line.Drive{Enable: m.cur.sdaEn, Value: m.cur.sdaOut} }

func (m *Master) Eval() {
	c := m.cur
	n := c
	n.done = false

	tc := c.cnt >= m.div-1
	if tc {
		n.cnt = 0
	} else {
		n.cnt = c.cnt + 1
	}

	if c.state == StateIdle {
		m.idle(&n)
		m.next = n
		return
	}
	if !tc {
		m.next = n
		return
	}

	n.phase = c.phase.next()
	switch c.state {
	case StateStart:
		switch c.phase {
		case PhaseSetup:
			n.scl, n.sdaEn, n.sdaOut = true, true, true
		case PhaseRise:
			n.sdaOut = false // START: SDA falls while SCL high
		case PhaseHold:
			n.scl = false
		case PhaseFall:
			n.shift = c.addr<<1 | mathx.B2U[uint8](c.read)
			n.bit = 0
			n.state = StateAddrSend
		}
	case StateAddrSend, StateDataWrite:
		switch c.phase {
		case PhaseSetup:
			n.sdaEn = true
			n.sdaOut = c.shift&0x80 != 0
		case PhaseRise, PhaseHold:
			n.scl = true
		case PhaseFall:
			n.scl = false
			n.shift = c.shift << 1
			if c.bit == 7 {
				n.dataAck = c.state == StateDataWrite
				n.state = StateAckCheck
			} else {
				n.bit = c.bit + 1
			}
		}
	case StateAckCheck:
		switch c.phase {
		case PhaseSetup:
			n.sdaEn = false
		case PhaseRise:
			n.scl = true
		case PhaseHold:
			if m.sda() {
				n.ackErr = true
			}
		case PhaseFall:
			n.scl = false
			n.sdaEn, n.sdaOut = true, true
			n.bit = 0
			switch {
			case c.ackErr:
				n.state = StateStop
			case c.dataAck:
				n.done = true
				n.state = StateStop
			case c.write:
				n.shift = c.data
				n.state = StateDataWrite
			case c.read:
				n.shift = 0
				n.state = StateDataRead
			default:
				n.state = StateStop
			}
		}
	case StateDataRead:
		switch c.phase {
		case PhaseSetup:
			n.sdaEn = false
		case PhaseRise:
			n.scl = true
		case PhaseHold:
			n.shift = c.shift<<1 | mathx.B2U[uint8](m.sda())
		case PhaseFall:
			n.scl = false
			if c.bit == 7 {
				n.rxData = c.shift
				n.state = StateSendAck
			} else {
				n.bit = c.bit + 1
			}
		}
	case StateSendAck:
		switch c.phase {
		case PhaseSetup:
			n.sdaEn, n.sdaOut = true, false
		case PhaseRise, PhaseHold:
			n.scl = true
		case PhaseFall:
			n.scl = false
			n.done = true
			n.state = StateStop
		}
	case StateStop:
		switch c.phase {
		case PhaseSetup:
			n.scl = false
			n.sdaEn, n.sdaOut = true, false
		case PhaseRise:
			n.scl = true
		case PhaseHold:
			n.sdaOut = true // STOP: SDA rises while SCL high
		case PhaseFall:
			n.state = StateIdle
			n.busy = false
		}
	}
	m.next = n
}

// idle holds both lines released and accepts a new request.
func (m *Master) idle(n *masterRegs) {
	n.scl, n.sdaEn, n.sdaOut = true, true, true
	n.phase = PhaseSetup
	r := m.req()
	switch {
	case r.Start:
		n.state = StateStart
		n.busy = true
		n.ackErr = false
		n.addr = m.addr() & 0x7F
		n.data = m.txData()
		n.read, n.write = r.Read, r.Write
		n.dataAck = false
	case r.Stop:
		n.state = StateStop
		n.busy = true
		n.read, n.write = false, false
	}
}

func (m *Master) Commit() { m.cur = m.next }

// Reset returns to IDLE with both lines released and all counters cleared.
func (m *Master) Reset() {
	m.cur = masterRegs{scl: true, sdaEn: true, sdaOut: true}
	m.next = m.cur
}
