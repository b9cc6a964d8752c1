// Package apb implements the bus slave transaction engine: a three-phase
// setup/access handshake in front of a register file, plus a bus master
// helper that drives it.
package apb

// Signals are the master-driven inputs sampled by a slave on every tick.
type Signals struct {
	Addr   uint8
	Sel    bool
	Enable bool
	Write  bool
	WData  uint32
	Strobe uint8 // bit i enables byte lane i
}

// Phase is the handshake state.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseSetup
	PhaseAccess
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSetup:
		return "setup"
	case PhaseAccess:
		return "access"
	default:
		return "unknown"
	}
}

// Access is the qualified transfer a slave performs on the current tick.
type Access struct {
	Valid  bool
	Write  bool
	Addr   uint8
	Data   uint32
	Strobe uint8
}

// WritesTo reports whether a is a qualified write to addr.
func (a Access) WritesTo(addr uint8) bool { return a.Valid && a.Write && a.Addr == addr }

// RegisterMap customises which registers a Slave stores and what it presents
// on reads. A nil map stores every address and reads the register file.
type RegisterMap interface {
	Writable(addr uint8) bool
	Read(regs *RegFile, addr uint8) uint32
}

// Port is the bus-facing side of a slave, as seen by a master.
type Port interface {
	Drive(Signals)
	Ready() bool
	ReadData() uint32
	SlaveError() bool
}

type slaveState struct {
	phase Phase
	rdata uint32
}

// Slave is the handshake engine. It implements sim.Clocked and Port.
type Slave struct {
	m    RegisterMap
	regs RegFile
	in   Signals

	cur, next slaveState
	pend      Access
}

// NewSlave returns an idle slave with a zeroed register file.
func NewSlave(m RegisterMap) *Slave { return &Slave{m: m} }

var _ Port = (*Slave)(nil)

// Drive sets the bus inputs sampled at the next tick.
func (s *Slave) Drive(in Signals) { s.in = in }

// Phase returns the committed handshake state.
func (s *Slave) Phase() Phase { return s.cur.phase }

// Ready is asserted throughout ACCESS; there are no wait states.
func (s *Slave) Ready() bool { return s.cur.phase == PhaseAccess }

// ReadData is the word latched by the most recent qualified read.
func (s *Slave) ReadData() uint32 { return s.cur.rdata }

// SlaveError is never asserted: no address range checking exists.
func (s *Slave) SlaveError() bool { return false }

// Regs exposes committed register contents for decode layers.
func (s *Slave) Regs() *RegFile { return &s.regs }

// Pending returns the access computed by the last Eval.
func (s *Slave) Pending() Access { return s.pend }

func (s *Slave) Eval() {
	in := s.in
	n := s.cur
	acc := Access{}
	switch s.cur.phase {
	case PhaseIdle:
		if in.Sel && !in.Enable {
			n.phase = PhaseSetup
		}
	case PhaseSetup:
		n.phase = PhaseAccess
	case PhaseAccess:
		if in.Sel && in.Enable {
			acc = Access{Valid: true, Write: in.Write, Addr: in.Addr, Data: in.WData, Strobe: in.Strobe}
			if !in.Write {
				n.rdata = s.present(in.Addr)
			}
		}
		if in.Sel {
			n.phase = PhaseSetup
		} else {
			n.phase = PhaseIdle
		}
	}
	s.next = n
	s.pend = acc
}

func (s *Slave) Commit() {
	s.cur = s.next
	if a := s.pend; a.Valid && a.Write && (s.m == nil || s.m.Writable(a.Addr)) {
		s.regs.write(a.Addr, a.Data, a.Strobe)
	}
	s.pend = Access{}
}

// Reset returns to IDLE with an all-zero register file.
func (s *Slave) Reset() {
	s.cur, s.next = slaveState{}, slaveState{}
	s.pend = Access{}
	s.in = Signals{}
	s.regs.clear()
}

func (s *Slave) present(addr uint8) uint32 {
	if s.m == nil {
		return s.regs.Read(addr)
	}
	return s.m.Read(&s.regs, addr)
}
