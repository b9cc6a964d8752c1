package apb

import "periphsim/errcode"

// Ticker advances the shared time base by one step.
type Ticker interface {
	Tick()
}

// DefaultMaxWait bounds how long a master waits for ready.
const DefaultMaxWait = 16

// Master drives complete transfers into one Port.
type Master struct {
	port    Port
	clk     Ticker
	MaxWait int
}

func NewMaster(p Port, clk Ticker) *Master {
	return &Master{port: p, clk: clk, MaxWait: DefaultMaxWait}
}

// Write stores data at addr with every byte lane enabled.
func (m *Master) Write(addr uint8, data uint32) error {
	return m.WriteStrobe(addr, data, StrobeAll)
}

// WriteStrobe stores the strobed lanes of data at addr.
func (m *Master) WriteStrobe(addr uint8, data uint32, strobe uint8) error {
	_, err := m.transfer(Signals{Addr: addr, Write: true, WData: data, Strobe: strobe}, "apb.write")
	return err
}

// Read returns the word presented for addr.
func (m *Master) Read(addr uint8) (uint32, error) {
	return m.transfer(Signals{Addr: addr}, "apb.read")
}

// transfer runs one setup tick, holds enable until ready, then completes on
// the following tick and returns the bus to idle.
func (m *Master) transfer(sig Signals, op string) (uint32, error) {
	sig.Sel, sig.Enable = true, false
	m.port.Drive(sig)
	m.clk.Tick()

	sig.Enable = true
	m.port.Drive(sig)
	for n := 0; !m.port.Ready(); n++ {
		if n >= m.MaxWait {
			m.port.Drive(Signals{})
			return 0, errcode.New(errcode.Timeout, op, "ready not asserted")
		}
		m.clk.Tick()
	}
	m.clk.Tick()
	m.port.Drive(Signals{})
	if m.port.SlaveError() {
		return 0, errcode.New(errcode.Error, op, "slave error")
	}
	return m.port.ReadData(), nil
}
