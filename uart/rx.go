package uart

// RxState is the receiver's framing position.
type RxState uint8

const (
	RxIdle RxState = iota
	RxStart
	RxData
	RxParity
	RxStop
)

func (s RxState) String() string {
	return [...]string{"idle", "start", "data", "parity", "stop"}[s]
}

type rxRegs struct {
	s1, s2 bool // two-stage input synchroniser
	prev   bool // s2 one tick earlier, for edge detection

	state RxState
	cnt   uint32
	shift uint8
	bit   uint8
	stop  uint8

	data      uint8
	valid     bool
	framing   bool
	parityErr bool
}

// Rx reconstructs bytes from a serial line. It samples the synchronised line
// half a bit after the start edge, then once per bit period.
//
// A parity fault does not suppress valid: the byte is delivered alongside the
// fault flag and callers must check both.
type Rx struct {
	cfg  Config
	div  uint32
	half uint32
	in   func() bool

	cur, next rxRegs
}

func NewRx(cfg Config, in func() bool) *Rx {
	div := cfg.Divider()
	half := div / 2
	if half == 0 {
		half = 1
	}
	r := &Rx{cfg: cfg, div: div, half: half, in: in}
	r.Reset()
	return r
}

// Data is the last byte latched at a good stop bit.
func (r *Rx) Data() uint8 { return r.cur.data }

// Valid pulses for one tick per good stop-bit sample.
func (r *Rx) Valid() bool { return r.cur.valid }

// FramingError is sticky until the next start edge.
func (r *Rx) FramingError() bool { return r.cur.framing }

// ParityError is sticky until the next start edge.
func (r *Rx) ParityError() bool { return r.cur.parityErr }

// Err reports any fault.
func (r *Rx) Err() bool { return r.cur.framing || r.cur.parityErr }

func (r *Rx) State() RxState { return r.cur.state }

func (r *Rx) Eval() {
	c := r.cur
	n := c
	n.valid = false
	n.s1 = r.in()
	n.s2 = c.s1
	n.prev = c.s2
	level := c.s2

	switch c.state {
	case RxIdle:
		if c.prev && !level {
			n.state = RxStart
			n.cnt = 0
			n.framing = false
			n.parityErr = false
		}
	case RxStart:
		if c.cnt < r.half-1 {
			n.cnt = c.cnt + 1
			break
		}
		n.cnt = 0
		if level {
			// Glitch: the line went back high before mid start bit.
			n.framing = true
			n.state = RxIdle
			break
		}
		n.shift = 0
		n.bit = 0
		n.state = RxData
	case RxData:
		if c.cnt < r.div-1 {
			n.cnt = c.cnt + 1
			break
		}
		n.cnt = 0
		n.shift = c.shift >> 1
		if level {
			n.shift |= 0x80
		}
		n.bit = c.bit + 1
		if n.bit == r.cfg.DataBits {
			n.stop = 0
			if r.cfg.Parity != ParityNone {
				n.state = RxParity
			} else {
				n.state = RxStop
			}
		}
	case RxParity:
		if c.cnt < r.div-1 {
			n.cnt = c.cnt + 1
			break
		}
		n.cnt = 0
		if level != r.cfg.Parity.bit(r.assembled(c.shift), r.cfg.DataBits) {
			n.parityErr = true
		}
		n.state = RxStop
	case RxStop:
		if c.cnt < r.div-1 {
			n.cnt = c.cnt + 1
			break
		}
		n.cnt = 0
		if !level {
			n.framing = true
			n.state = RxIdle
			break
		}
		n.data = r.assembled(c.shift)
		n.valid = true
		if c.stop+1 < r.cfg.StopBits {
			n.stop = c.stop + 1
		} else {
			n.state = RxIdle
		}
	}
	r.next = n
}

func (r *Rx) Commit() { r.cur = r.next }

// Reset returns to IDLE with the synchroniser primed to an idle-high line.
func (r *Rx) Reset() {
	r.cur = rxRegs{s1: true, s2: true, prev: true}
	r.next = r.cur
}

// assembled right-aligns a frame shorter than 8 data bits.
func (r *Rx) assembled(shift uint8) uint8 {
	return shift >> (8 - r.cfg.DataBits)
}
