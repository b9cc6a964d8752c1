package uart

import (
	"testing"

	"periphsim/apb"
	"periphsim/sim"
)

type bridgeBench struct {
	b   *Bridge
	clk *sim.Clock
	m   *apb.Master
}

func newLoopbackBridge(cfg Config) *bridgeBench {
	bb := &bridgeBench{}
	bb.b = NewBridge(cfg, func() bool { return bb.b.TxLine() })
	bb.clk = sim.NewClock(bb.b)
	bb.m = apb.NewMaster(bb.b.Port(), bb.clk)
	return bb
}

func (bb *bridgeBench) read(t *testing.T, addr uint8) uint32 {
	t.Helper()
	v, err := bb.m.Read(addr)
	if err != nil {
		t.Fatalf("read %#x: %v", addr, err)
	}
	return v
}

func (bb *bridgeBench) write(t *testing.T, addr uint8, v uint32) {
	t.Helper()
	if err := bb.m.Write(addr, v); err != nil {
		t.Fatalf("write %#x: %v", addr, err)
	}
}

func TestBridge_RegisterDecode(t *testing.T) {
	bb := newLoopbackBridge(fastCfg)
	bb.write(t, RegControl, 0xCAFEF00D)
	if v := bb.read(t, RegControl); v != 0xCAFEF00D {
		t.Fatalf("CONTROL=%#x", v)
	}
	bb.write(t, RegStatus, 0xFFFFFFFF)
	bb.write(t, 0x40, 0x1234)
	if v := bb.read(t, 0x40); v != 0 {
		t.Fatalf("unmapped read=%#x", v)
	}
	if v := bb.read(t, RegRxData); v != 0 {
		t.Fatalf("RX_DATA at reset=%#x", v)
	}
	if bb.b.Port().SlaveError() {
		t.Fatal("slave error must never assert")
	}
}

func TestBridge_LoopbackFrame(t *testing.T) {
	bb := newLoopbackBridge(fastCfg)

	var doneAt, validAt, irqAt []uint64
	bb.clk.Observe(func(tick uint64) {
		if bb.b.Tx().Done() {
			doneAt = append(doneAt, tick)
		}
		if bb.b.Rx().Valid() {
			validAt = append(validAt, tick)
		}
		if bb.b.IRQ() {
			irqAt = append(irqAt, tick)
		}
	})

	bb.write(t, RegTxData, 0x1C3)
	if bb.read(t, RegStatus)&StatusBusy == 0 {
		t.Fatal("expected busy after TX_DATA write")
	}
	if v := bb.read(t, RegTxData); v != 0xC3 {
		t.Fatalf("TX_DATA echo=%#x", v)
	}
	if _, err := bb.clk.RunUntil(func() bool { return len(validAt) > 0 && len(doneAt) > 0 }, 400); err != nil {
		t.Fatal(err)
	}
	bb.clk.Run(4)

	if v := bb.read(t, RegRxData); v != 0xC3 {
		t.Fatalf("RX_DATA=%#x", v)
	}
	if bb.read(t, RegStatus) != 0 {
		t.Fatal("status should be clear once the frame is over")
	}
	// IRQ follows each trigger by exactly one tick.
	want := map[uint64]bool{}
	for _, k := range append(doneAt, validAt...) {
		want[k+1] = true
	}
	if len(irqAt) != len(want) {
		t.Fatalf("irq ticks=%v want %v", irqAt, want)
	}
	for _, k := range irqAt {
		if !want[k] {
			t.Fatalf("irq at %d not one tick after a trigger (done=%v valid=%v)", k, doneAt, validAt)
		}
	}
}

func TestBridge_WriteWhileBusyIsAbsorbed(t *testing.T) {
	bb := newLoopbackBridge(fastCfg)
	var frames int
	bb.clk.Observe(func(uint64) {
		if bb.b.Tx().Done() {
			frames++
		}
	})
	bb.write(t, RegTxData, 0x41)
	bb.write(t, RegTxData, 0x41)
	bb.write(t, RegTxData, 0x42)
	bb.clk.Run(300)
	if frames != 1 {
		t.Fatalf("frames=%d want 1", frames)
	}
	if v := bb.read(t, RegRxData); v != 0x41 {
		t.Fatalf("in-flight byte altered: RX_DATA=%#x", v)
	}
	// The register still echoes the last value written.
	if v := bb.read(t, RegTxData); v != 0x42 {
		t.Fatalf("TX_DATA=%#x", v)
	}
}

func TestBridge_StatusMirrorsEngines(t *testing.T) {
	bb := newLoopbackBridge(fastCfg)
	bb.write(t, RegTxData, 0x7E)
	seen := uint32(0)
	bb.clk.Observe(func(uint64) {
		s := bb.b.Status()
		seen |= s
		if (s&StatusTxDone != 0) != bb.b.Tx().Done() || (s&StatusRxValid != 0) != bb.b.Rx().Valid() {
			t.Fatalf("status %#x out of step with engines", s)
		}
	})
	bb.clk.Run(200)
	if seen&(StatusBusy|StatusTxDone|StatusRxValid) != StatusBusy|StatusTxDone|StatusRxValid {
		t.Fatalf("status bits seen=%#x", seen)
	}
	if seen&StatusRxError != 0 {
		t.Fatal("unexpected rx error")
	}
}

func TestBridge_ResetMidFrame(t *testing.T) {
	bb := newLoopbackBridge(fastCfg)
	bb.write(t, RegControl, 7)
	bb.write(t, RegTxData, 0xAA)
	bb.clk.Run(25)
	bb.clk.Reset()
	if bb.b.Status() != 0 || bb.b.IRQ() || !bb.b.TxLine() {
		t.Fatal("reset left state behind")
	}
	bb.clk.Tick()
	if bb.b.Tx().State() != TxIdle || bb.b.Rx().State() != RxIdle {
		t.Fatal("engines not idle on the tick after reset")
	}
	if v := bb.read(t, RegControl); v != 0 {
		t.Fatalf("CONTROL after reset=%#x", v)
	}
}
