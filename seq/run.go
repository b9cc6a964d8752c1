package seq

import (
	"fmt"

	"periphsim/apb"
	"periphsim/errcode"
)

// System is what a script drives.
type System interface {
	Master(name string) (*apb.Master, error)
	WaitIRQ(name string, max uint64) (uint64, error)
	Run(n uint64)
	Reset()
	SendRX(b ...uint8) error
	SetRX(level bool)
	SetSDA(level bool)
	RXIdle() bool
	Now() uint64
}

// Step reports one executed command.
type Step struct {
	Cmd    Command
	Tick   uint64 // clock after the command
	Value  uint32 // word read by read/expect
	Waited uint64
}

// Runner executes commands in order and stops at the first error.
type Runner struct {
	Sys System
	// OnStep, when set, is called after every successful command.
	OnStep func(Step)
}

func (r *Runner) Run(cmds []Command) error {
	for _, c := range cmds {
		st, err := r.Exec(c)
		if err != nil {
			return err
		}
		if r.OnStep != nil {
			r.OnStep(st)
		}
	}
	return nil
}

func wrap(c Command, err error) error {
	return &errcode.E{C: errcode.Of(err), Op: "seq.exec", Msg: fmt.Sprintf("line %d: %s", c.Line, c), Err: err}
}

// Exec executes one command.
func (r *Runner) Exec(c Command) (Step, error) {
	st := Step{Cmd: c}
	var err error
	switch c.Op {
	case OpWrite:
		var m *apb.Master
		if m, err = r.Sys.Master(c.Periph); err == nil {
			err = m.WriteStrobe(c.Addr, c.Value, uint8(c.Extra))
		}
	case OpRead, OpExpect:
		var m *apb.Master
		if m, err = r.Sys.Master(c.Periph); err == nil {
			st.Value, err = m.Read(c.Addr)
		}
		if err == nil && c.Op == OpExpect && st.Value&c.Extra != c.Value&c.Extra {
			err = fmt.Errorf("%w: read %#x, want %#x (mask %#x)", ErrExpect, st.Value, c.Value, c.Extra)
		}
	case OpRun:
		r.Sys.Run(c.Count)
	case OpWait:
		if c.Event == "irq" {
			st.Waited, err = r.Sys.WaitIRQ(c.Periph, c.Count)
			break
		}
		start := r.Sys.Now()
		for !r.Sys.RXIdle() {
			if r.Sys.Now()-start >= c.Count {
				err = errcode.Timeout
				break
			}
			r.Sys.Run(1)
		}
		st.Waited = r.Sys.Now() - start
	case OpRX:
		err = r.Sys.SendRX(c.Bytes...)
	case OpRXLine:
		r.Sys.SetRX(c.Value != 0)
	case OpSDA:
		r.Sys.SetSDA(c.Value != 0)
	case OpReset:
		r.Sys.Reset()
	default:
		err = errcode.Unsupported
	}
	st.Tick = r.Sys.Now()
	if err != nil {
		return st, wrap(c, err)
	}
	return st, nil
}
