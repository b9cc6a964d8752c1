package uart

// TxState is the transmitter's framing position.
type TxState uint8

const (
	TxIdle TxState = iota
	TxStart
	TxData
	TxParity
	TxStop
)

func (s TxState) String() string {
	return [...]string{"idle", "start", "data", "parity", "stop"}[s]
}

type txRegs struct {
	state TxState
	cnt   uint32 // bit divider
	shift uint8
	data  uint8 // frame byte, kept for parity
	bit   uint8
	stop  uint8
	line  bool
	busy  bool
	done  bool
}

// Tx shifts a byte out LSB first, framed by start, optional parity and stop
// bits. Every state change after the start bit waits for the bit divider's
// terminal count.
type Tx struct {
	cfg  Config
	div  uint32
	send func() bool
	data func() uint8

	cur, next txRegs
}

// NewTx builds a transmitter. send is the one-tick request line, data the
// byte it loads.
func NewTx(cfg Config, send func() bool, data func() uint8) *Tx {
	t := &Tx{cfg: cfg, div: cfg.Divider(), send: send, data: data}
	t.Reset()
	return t
}

func (t *Tx) Line() bool     { return t.cur.line }
func (t *Tx) Busy() bool     { return t.cur.busy }
func (t *Tx) Done() bool     { return t.cur.done }
func (t *Tx) State() TxState { return t.cur.state }
func (t *Tx) Config() Config { return t.cfg }

func (t *Tx) Eval() {
	c := t.cur
	n := c
	n.done = false

	tc := c.cnt >= t.div-1
	if tc {
		n.cnt = 0
	} else {
		n.cnt = c.cnt + 1
	}

	switch c.state {
	case TxIdle:
		n.line = true
		if t.send() {
			b := t.data()
			n.shift, n.data = b, b
			n.busy = true
			n.line = false
			n.state = TxStart
			n.cnt = 0 // start bit gets a full period
		}
	case TxStart:
		if tc {
			n.line = c.shift&1 != 0
			n.shift = c.shift >> 1
			n.bit = 0
			n.state = TxData
		}
	case TxData:
		if !tc {
			break
		}
		switch {
		case c.bit+1 < t.cfg.DataBits:
			n.line = c.shift&1 != 0
			n.shift = c.shift >> 1
			n.bit = c.bit + 1
		case t.cfg.Parity != ParityNone:
			n.line = t.cfg.Parity.bit(c.data, t.cfg.DataBits)
			n.state = TxParity
		default:
			n.line = true
			n.stop = 0
			n.state = TxStop
		}
	case TxParity:
		if tc {
			n.line = true
			n.stop = 0
			n.state = TxStop
		}
	case TxStop:
		if !tc {
			break
		}
		if c.stop+1 < t.cfg.StopBits {
			n.stop = c.stop + 1
			break
		}
		n.state = TxIdle
		n.busy = false
		n.done = true
	}
	t.next = n
}

func (t *Tx) Commit() { t.cur = t.next }

// Reset returns to IDLE with the line held high.
func (t *Tx) Reset() {
	t.cur = txRegs{line: true}
	t.next = t.cur
}
