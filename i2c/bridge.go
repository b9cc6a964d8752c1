package i2c

import (
	"periphsim/apb"
	"periphsim/line"
)

// Register offsets.
const (
	RegControl uint8 = 0x00
	RegStatus  uint8 = 0x04
	RegAddr    uint8 = 0x08
	RegTxData  uint8 = 0x0C
	RegRxData  uint8 = 0x10
)

// CONTROL request bits. Writing them pulses the engine request lines once.
const (
	CtrlStart uint32 = 1 << 0
	CtrlStop  uint32 = 1 << 1
	CtrlRead  uint32 = 1 << 2
	CtrlWrite uint32 = 1 << 3
)

// STATUS bits.
const (
	StatusBusy     uint32 = 1 << 0
	StatusDone     uint32 = 1 << 1
	StatusAckError uint32 = 1 << 2
)

type bridgeRegs struct {
	req    Request
	rxData uint8
	irq    bool
}

// Bridge decodes bus registers onto a Master and owns the two open-drain
// lines. External participants attach to SDA/SCL.
type Bridge struct {
	slave  *apb.Slave
	master *Master
	scl    *line.Line
	sda    *line.Line

	cur, next bridgeRegs
}

func NewBridge(cfg Config) *Bridge {
	b := &Bridge{scl: line.New("scl"), sda: line.New("sda")}
	b.slave = apb.NewSlave(b)
	regs := b.slave.Regs()
	b.master = NewMaster(cfg,
		func() Request { return b.cur.req },
		func() uint8 { return uint8(regs.Read(RegAddr)) },
		func() uint8 { return uint8(regs.Read(RegTxData)) },
		b.sda.Level,
	)
	b.scl.Attach(b.master.SCL)
	b.sda.Attach(b.master.SDA)
	return b
}

// Port is the bus-facing side.
func (b *Bridge) Port() apb.Port { return b.slave }

func (b *Bridge) Master() *Master { return b.master }
func (b *Bridge) SCL() *line.Line { return b.scl }
func (b *Bridge) SDA() *line.Line { return b.sda }
func (b *Bridge) IRQ() bool       { return b.cur.irq }
func (b *Bridge) RxData() uint8   { return b.cur.rxData }

// AttachTarget connects a simulated target to both lines. The target must also
// be added to the clock.
func (b *Bridge) AttachTarget(addr uint8, h Handler) *Target {
	t := NewTarget(addr, h, b.scl.Level, b.sda.Level)
	b.sda.Attach(t.SDA)
	return t
}

// Status is the STATUS word, a pure function of committed engine state.
func (b *Bridge) Status() uint32 {
	var s uint32
	if b.master.Busy() {
		s |= StatusBusy
	}
	if b.master.Done() {
		s |= StatusDone
	}
	if b.master.AckError() {
		s |= StatusAckError
	}
	return s
}

// Writable implements apb.RegisterMap.
func (b *Bridge) Writable(addr uint8) bool {
	switch addr {
	case RegControl, RegAddr, RegTxData:
		return true
	}
	return false
}

// Read implements apb.RegisterMap.
func (b *Bridge) Read(regs *apb.RegFile, addr uint8) uint32 {
	switch addr {
	case RegControl:
		return regs.Read(RegControl)
	case RegStatus:
		return b.Status()
	case RegAddr:
		return regs.Read(RegAddr) & 0x7F
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
	b.master.Eval()

	n := b.cur
	n.req = Request{}
	// Request bits live in lane 0; a write that leaves it unstrobed requests
	// nothing, whatever CONTROL last held.
	if acc := b.slave.Pending(); acc.WritesTo(RegControl) && acc.Strobe&1 != 0 {
		v := acc.Data
		n.req = Request{
			Start: v&CtrlStart != 0,
			Stop:  v&CtrlStop != 0,
			Read:  v&CtrlRead != 0,
			Write: v&CtrlWrite != 0,
		}
	}
	if b.master.Done() && b.master.Reading() {
		n.rxData = b.master.RxData()
	}
	n.irq = b.master.Done() || b.master.AckError()
	b.next = n
}

func (b *Bridge) Commit() {
	b.slave.Commit()
	b.master.Commit()
	b.cur = b.next
}

func (b *Bridge) Reset() {
	b.slave.Reset()
	b.master.Reset()
	b.cur, b.next = bridgeRegs{}, bridgeRegs{}
}
