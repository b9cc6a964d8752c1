package uart

import "periphsim/apb"

// Register offsets.
const (
	RegControl uint8 = 0x00
	RegStatus  uint8 = 0x04
	RegTxData  uint8 = 0x08
	RegRxData  uint8 = 0x0C
)

// STATUS bits.
const (
	StatusBusy    uint32 = 1 << 0
	StatusTxDone  uint32 = 1 << 1
	StatusRxValid uint32 = 1 << 2
	StatusRxError uint32 = 1 << 3
)

type bridgeRegs struct {
	send   bool // one-tick send request to Tx
	rxData uint8
	irq    bool
}

// Bridge decodes bus registers onto a Tx/Rx pair.
type Bridge struct {
	slave *apb.Slave
	tx    *Tx
	rx    *Rx

	cur, next bridgeRegs
}

// NewBridge wires a transmitter and a receiver behind a bus slave. rxLine is
// the receive input.
func NewBridge(cfg Config, rxLine func() bool) *Bridge {
	b := &Bridge{}
	b.slave = apb.NewSlave(b)
	b.tx = NewTx(cfg, func() bool { return b.cur.send }, func() uint8 {
		return uint8(b.slave.Regs().Read(RegTxData))
	})
	b.rx = NewRx(cfg, rxLine)
	return b
}

// Port is the bus-facing side.
func (b *Bridge) Port() apb.Port { return b.slave }

func (b *Bridge) Tx() *Tx        { return b.tx }
func (b *Bridge) Rx() *Rx        { return b.rx }
func (b *Bridge) TxLine() bool   { return b.tx.Line() }
func (b *Bridge) IRQ() bool      { return b.cur.irq }
func (b *Bridge) RxData() uint8  { return b.cur.rxData }
func (b *Bridge) Config() Config { return b.tx.cfg }

// FramingError and ParityError split the STATUS rx-error bit by cause.
func (b *Bridge) FramingError() bool { return b.rx.FramingError() }
func (b *Bridge) ParityError() bool  { return b.rx.ParityError() }

// Status is the STATUS word, a pure function of committed engine state.
func (b *Bridge) Status() uint32 {
	var s uint32
	if b.tx.Busy() || b.cur.send {
		s |= StatusBusy
	}
	if b.tx.Done() {
		s |= StatusTxDone
	}
	if b.rx.Valid() {
		s |= StatusRxValid
	}
	if b.rx.Err() {
		s |= StatusRxError
	}
	return s
}

// Writable implements apb.RegisterMap.
func (b *Bridge) Writable(addr uint8) bool {
	return addr == RegControl || addr == RegTxData
}

// Read implements apb.RegisterMap.
func (b *Bridge) Read(regs *apb.RegFile, addr uint8) uint32 {
	switch addr {
	case RegControl:
		return regs.Read(RegControl)
	case RegStatus:
		return b.Status()
	case RegTxData:
		return regs.Read(RegTxData) & 0xFF
	case RegRxData:
		return uint32(b.cur.rxData)
	default:
		return 0
	}
}

func (b *Bridge) Eval() {
	b.slave.Eval()
	b.tx.Eval()
	b.rx.Eval()

	n := b.cur
	acc := b.slave.Pending()
	// A write to TX_DATA while busy is absorbed; there is no queue.
	n.send = acc.WritesTo(RegTxData) && !b.tx.Busy() && !b.cur.send
	if b.rx.Valid() {
		n.rxData = b.rx.Data()
	}
	n.irq = b.rx.Valid() || b.tx.Done() || b.rx.Err()
	b.next = n
}

func (b *Bridge) Commit() {
	b.slave.Commit()
	b.tx.Commit()
	b.rx.Commit()
	b.cur = b.next
}

func (b *Bridge) Reset() {
	b.slave.Reset()
	b.tx.Reset()
	b.rx.Reset()
	b.cur, b.next = bridgeRegs{}, bridgeRegs{}
}
