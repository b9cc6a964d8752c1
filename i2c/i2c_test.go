package i2c

import (
	"bytes"
	"testing"

	"periphsim/apb"
	"periphsim/sim"
)

// One tick per quarter bit-cell.
var fastCfg = Config{ClockHz: 400, BusHz: 100}

const maxTicks = 2000

type bench struct {
	b   *Bridge
	t   *Target
	clk *sim.Clock
	m   *apb.Master

	seenBusy bool
	doneAt   []uint64
	irqAt    []uint64
	ackErrs  int
}

func newBench(addr uint8, h Handler) *bench {
	bb := &bench{b: NewBridge(fastCfg)}
	bb.t = bb.b.AttachTarget(addr, h)
	bb.clk = sim.NewClock(bb.b, bb.t)
	bb.m = apb.NewMaster(bb.b.Port(), bb.clk)
	bb.clk.Observe(func(tick uint64) {
		mm := bb.b.Master()
		if mm.Busy() {
			bb.seenBusy = true
		}
		if mm.Done() {
			bb.doneAt = append(bb.doneAt, tick)
		}
		if mm.AckError() {
			bb.ackErrs++
		}
		if bb.b.IRQ() {
			bb.irqAt = append(bb.irqAt, tick)
		}
	})
	return bb
}

func (bb *bench) write(t *testing.T, addr uint8, v uint32) {
	t.Helper()
	if err := bb.m.Write(addr, v); err != nil {
		t.Fatalf("write %#x: %v", addr, err)
	}
}

func (bb *bench) read(t *testing.T, addr uint8) uint32 {
	t.Helper()
	v, err := bb.m.Read(addr)
	if err != nil {
		t.Fatalf("read %#x: %v", addr, err)
	}
	return v
}

func (bb *bench) finish(t *testing.T) {
	t.Helper()
	if _, err := bb.clk.RunUntil(func() bool { return bb.seenBusy && !bb.b.Master().Busy() }, maxTicks); err != nil {
		t.Fatalf("transaction did not finish: %v (state=%v)", err, bb.b.Master().State())
	}
}

func TestWriteTransaction_Acked(t *testing.T) {
	echo := &Echo{}
	bb := newBench(0x42, echo)

	bb.write(t, RegAddr, 0x42)
	bb.write(t, RegTxData, 0xA5)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)

	if got, want := bb.t.Observed(), []byte{0x42 << 1, 0xA5}; !bytes.Equal(got, want) {
		t.Fatalf("observed % X, want % X", got, want)
	}
	if len(bb.doneAt) != 1 {
		t.Fatalf("done pulses=%d, want 1", len(bb.doneAt))
	}
	if bb.ackErrs != 0 {
		t.Fatal("unexpected ack-error")
	}
	if s := bb.b.Master().State(); s != StateIdle {
		t.Fatalf("state=%v", s)
	}
	if echo.Pending() != 1 || echo.Stops() != 1 {
		t.Fatalf("echo pending=%d stops=%d", echo.Pending(), echo.Stops())
	}
	if !bb.b.SCL().Level() || !bb.b.SDA().Level() {
		t.Fatal("lines not released after STOP")
	}
}

func TestWriteTransaction_Nack(t *testing.T) {
	bb := newBench(0x42, Nack{})

	bb.write(t, RegAddr, 0x42)
	bb.write(t, RegTxData, 0xA5)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)

	if len(bb.doneAt) != 0 {
		t.Fatalf("done asserted on NACK at %v", bb.doneAt)
	}
	mm := bb.b.Master()
	if !mm.AckError() || mm.Busy() || mm.State() != StateIdle {
		t.Fatalf("ackErr=%v busy=%v state=%v", mm.AckError(), mm.Busy(), mm.State())
	}
	if got := bb.t.Observed(); !bytes.Equal(got, []byte{0x84}) {
		t.Fatalf("observed % X; data must not be sent after NACK", got)
	}
	if s := bb.read(t, RegStatus); s != StatusAckError {
		t.Fatalf("STATUS=%#x", s)
	}
	if !bb.b.IRQ() {
		t.Fatal("irq must follow sticky ack-error")
	}
}

// refuseData acknowledges its address but no data byte.
type refuseData struct{}

func (refuseData) Address(bool) bool { return true }
func (refuseData) Write(byte) bool   { return false }
func (refuseData) Read() byte        { return 0xFF }
func (refuseData) Stop()             {}

func TestWriteTransaction_DataNack(t *testing.T) {
	bb := newBench(0x42, refuseData{})

	bb.write(t, RegAddr, 0x42)
	bb.write(t, RegTxData, 0x5A)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)

	if got, want := bb.t.Observed(), []byte{0x84, 0x5A}; !bytes.Equal(got, want) {
		t.Fatalf("observed % X, want % X", got, want)
	}
	if len(bb.doneAt) != 0 {
		t.Fatalf("done asserted on data NACK at %v", bb.doneAt)
	}
	mm := bb.b.Master()
	if !mm.AckError() || mm.Busy() || mm.State() != StateIdle {
		t.Fatalf("ackErr=%v busy=%v state=%v", mm.AckError(), mm.Busy(), mm.State())
	}
	if !bb.b.SCL().Level() || !bb.b.SDA().Level() {
		t.Fatal("lines not released after STOP")
	}
}

func TestWrongAddressIsNacked(t *testing.T) {
	bb := newBench(0x10, &Echo{})
	bb.write(t, RegAddr, 0x11)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)
	if !bb.b.Master().AckError() {
		t.Fatal("expected ack-error for absent device")
	}
}

func TestAckErrorClearedOnNextStart(t *testing.T) {
	bb := newBench(0x10, &Echo{})
	bb.write(t, RegAddr, 0x11)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)

	bb.seenBusy = false
	bb.write(t, RegAddr, 0x10)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)
	if bb.b.Master().AckError() {
		t.Fatal("ack-error survived a successful transaction")
	}
}

func TestReadTransaction(t *testing.T) {
	echo := &Echo{}
	echo.Write(0x3C)
	bb := newBench(0x21, echo)

	bb.write(t, RegAddr, 0x21)
	bb.write(t, RegControl, CtrlStart|CtrlRead)
	bb.finish(t)

	if len(bb.doneAt) != 1 || bb.ackErrs != 0 {
		t.Fatalf("done=%v ackErrs=%d", bb.doneAt, bb.ackErrs)
	}
	if v := bb.read(t, RegRxData); v != 0x3C {
		t.Fatalf("RX_DATA=%#x", v)
	}
	if got := bb.t.Observed(); !bytes.Equal(got, []byte{0x21<<1 | 1}) {
		t.Fatalf("observed % X", got)
	}
	if got := bb.t.Sent(); !bytes.Equal(got, []byte{0x3C}) {
		t.Fatalf("sent % X", got)
	}
	if acks := bb.t.MasterAcks(); len(acks) != 1 || !acks[0] {
		t.Fatalf("master acks=%v", acks)
	}
}

func TestRxDataNotLatchedOnWrite(t *testing.T) {
	echo := &Echo{}
	echo.Write(0x99)
	bb := newBench(0x21, echo)
	bb.write(t, RegAddr, 0x21)
	bb.write(t, RegControl, CtrlStart|CtrlRead)
	bb.finish(t)

	bb.seenBusy = false
	bb.write(t, RegTxData, 0x11)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)
	if v := bb.read(t, RegRxData); v != 0x99 {
		t.Fatalf("RX_DATA=%#x, write must not disturb it", v)
	}
}

func TestIRQRegisteredOneTickAfterDone(t *testing.T) {
	bb := newBench(0x42, &Echo{})
	bb.write(t, RegAddr, 0x42)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)
	bb.clk.Run(2)

	if len(bb.doneAt) != 1 || len(bb.irqAt) != 1 {
		t.Fatalf("done=%v irq=%v", bb.doneAt, bb.irqAt)
	}
	if bb.irqAt[0] != bb.doneAt[0]+1 {
		t.Fatalf("irq at %d, done at %d", bb.irqAt[0], bb.doneAt[0])
	}
}

func TestStartWhileBusyIgnored(t *testing.T) {
	bb := newBench(0x42, &Echo{})
	bb.write(t, RegAddr, 0x42)
	bb.write(t, RegTxData, 0x01)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.clk.Run(10)
	if !bb.b.Master().Busy() {
		t.Fatal("expected busy")
	}
	bb.write(t, RegTxData, 0x02)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)
	bb.clk.Run(50)

	if got := bb.t.Observed(); !bytes.Equal(got, []byte{0x84, 0x01}) {
		t.Fatalf("observed % X; in-flight data must be latched at start", got)
	}
	if bb.b.Master().Busy() || len(bb.doneAt) != 1 {
		t.Fatalf("busy=%v done=%v; request while busy must not queue", bb.b.Master().Busy(), bb.doneAt)
	}
}

// conditions counts START and STOP conditions on the resolved lines.
type conditions struct {
	prevSCL, prevSDA bool
	starts, stops    int
	rises            int
}

func watch(bb *bench) *conditions {
	c := &conditions{prevSCL: true, prevSDA: true}
	bb.clk.Observe(func(uint64) {
		scl, sda := bb.b.SCL().Level(), bb.b.SDA().Level()
		switch {
		case c.prevSCL && scl && c.prevSDA && !sda:
			c.starts++
		case c.prevSCL && scl && !c.prevSDA && sda:
			c.stops++
		}
		if !c.prevSCL && scl {
			c.rises++
		}
		c.prevSCL, c.prevSDA = scl, sda
	})
	return c
}

func TestWaveformConditions(t *testing.T) {
	bb := newBench(0x42, &Echo{})
	c := watch(bb)
	bb.write(t, RegAddr, 0x42)
	bb.write(t, RegTxData, 0xFF)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)

	if c.starts != 1 || c.stops != 1 {
		t.Fatalf("starts=%d stops=%d", c.starts, c.stops)
	}
	// 8 address, 1 ack, 8 data, 1 ack, 1 stop.
	if c.rises != 19 {
		t.Fatalf("SCL rises=%d, want 19", c.rises)
	}
}

func TestBareStop(t *testing.T) {
	echo := &Echo{}
	bb := newBench(0x42, echo)
	c := watch(bb)
	bb.write(t, RegControl, CtrlStop)
	bb.finish(t)

	if c.starts != 0 || c.stops != 1 {
		t.Fatalf("starts=%d stops=%d", c.starts, c.stops)
	}
	if len(bb.doneAt) != 0 || bb.ackErrs != 0 {
		t.Fatal("bare STOP must not complete a transfer")
	}
	if echo.Stops() != 0 {
		t.Fatal("unaddressed target saw a stop callback")
	}
}

func TestResetMidPhase(t *testing.T) {
	bb := newBench(0x42, &Echo{})
	bb.write(t, RegAddr, 0x42)
	bb.write(t, RegTxData, 0x5A)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.clk.Run(21)

	mm := bb.b.Master()
	if mm.State() != StateAddrSend {
		t.Fatalf("state=%v before reset", mm.State())
	}
	bb.clk.Reset()
	if mm.State() != StateIdle || mm.Phase() != PhaseSetup || mm.Busy() {
		t.Fatalf("after reset state=%v phase=%v busy=%v", mm.State(), mm.Phase(), mm.Busy())
	}
	if !bb.b.SCL().Level() || !bb.b.SDA().Level() {
		t.Fatal("lines not released by reset")
	}
	if bb.b.Status() != 0 || bb.b.IRQ() {
		t.Fatal("status/irq not cleared by reset")
	}
	bb.clk.Run(20)
	if mm.Busy() {
		t.Fatal("reset must not leave a pending request")
	}

	bb.seenBusy = false
	bb.write(t, RegAddr, 0x42)
	bb.write(t, RegTxData, 0x5A)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)
	if got := bb.t.Observed(); !bytes.Equal(got, []byte{0x84, 0x5A}) {
		t.Fatalf("observed % X after reset", got)
	}
}

func TestBridgeRegisterDecode(t *testing.T) {
	bb := newBench(0x42, &Echo{})
	bb.write(t, RegAddr, 0xFF)
	if v := bb.read(t, RegAddr); v != 0x7F {
		t.Fatalf("ADDR=%#x", v)
	}
	bb.write(t, RegTxData, 0x1FF)
	if v := bb.read(t, RegTxData); v != 0xFF {
		t.Fatalf("TX_DATA=%#x", v)
	}
	bb.write(t, RegControl, 0x30)
	if v := bb.read(t, RegControl); v != 0x30 {
		t.Fatalf("CONTROL=%#x", v)
	}
	bb.write(t, RegStatus, 0xFFFFFFFF)
	bb.write(t, RegRxData, 0xFF)
	bb.write(t, 0x40, 0x1234)
	for _, a := range []uint8{RegStatus, RegRxData, 0x40} {
		if v := bb.read(t, a); v != 0 {
			t.Fatalf("read %#x=%#x", a, v)
		}
	}
	if bb.b.Master().Busy() {
		t.Fatal("CONTROL without request bits started a transfer")
	}
}

func TestMasterDivider(t *testing.T) {
	for _, tc := range []struct {
		cfg  Config
		want uint32
	}{
		{DefaultConfig(), 250},
		{Config{ClockHz: 400, BusHz: 100}, 1},
		{Config{ClockHz: 48_000_000, BusHz: 400_000}, 30},
	} {
		if got := tc.cfg.Divider(); got != tc.want {
			t.Errorf("%+v: divider=%d want %d", tc.cfg, got, tc.want)
		}
	}
	if err := (Config{ClockHz: 100, BusHz: 100}).Validate(); err == nil {
		t.Fatal("expected error for bus above clock/4")
	}
}

func TestMasterPhaseAdvancesOnDivider(t *testing.T) {
	req := Request{Start: true, Write: true}
	m := NewMaster(Config{ClockHz: 1600, BusHz: 100}, func() Request { r := req; req = Request{}; return r },
		func() uint8 { return 0x42 }, func() uint8 { return 0 }, func() bool { return false })
	clk := sim.NewClock(m)
	clk.Tick()
	if m.State() != StateStart || m.Phase() != PhaseSetup {
		t.Fatalf("state=%v phase=%v", m.State(), m.Phase())
	}
	if _, err := clk.RunUntil(func() bool { return m.Phase() == PhaseRise }, 8); err != nil {
		t.Fatal(err)
	}
	// Divider is 4: once aligned, every phase lasts four ticks.
	n, err := clk.RunUntil(func() bool { return m.Phase() == PhaseHold }, 8)
	if err != nil || n != 4 {
		t.Fatalf("phase lasted %d ticks (%v), want 4", n, err)
	}
}

func TestControlWithoutLaneZeroRequestsNothing(t *testing.T) {
	bb := newBench(0x42, &Echo{})
	bb.write(t, RegAddr, 0x42)
	bb.write(t, RegTxData, 0x11)
	bb.write(t, RegControl, CtrlStart|CtrlWrite)
	bb.finish(t)

	bb.seenBusy = false
	if err := bb.m.WriteStrobe(RegControl, 0, 0x2); err != nil {
		t.Fatal(err)
	}
	bb.clk.Run(40)
	if bb.seenBusy {
		t.Fatal("lane-1 CONTROL write started a transaction")
	}
	if got := bb.t.Observed(); !bytes.Equal(got, []byte{0x84, 0x11}) {
		t.Fatalf("observed % X", got)
	}
	if v := bb.read(t, RegControl); v != CtrlStart|CtrlWrite {
		t.Fatalf("CONTROL=%#x, lane 0 must keep its value", v)
	}
}
