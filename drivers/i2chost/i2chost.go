// Package i2chost drives the I2C bridge registers from the host side and
// presents the result as a tinygo.org/x/drivers.I2C bus.
//
// The engine moves one byte per START..STOP transaction, so Tx issues one
// transaction per byte written and per byte read.
package i2chost

import (
	"time"

	"github.com/jpillora/backoff"
	"tinygo.org/x/drivers"

	"periphsim/apb"
	"periphsim/errcode"
	"periphsim/i2c"
	"periphsim/x/timex"
)

// DefaultMaxPolls bounds STATUS reads per transaction.
const DefaultMaxPolls = 4096

var _ drivers.I2C = (*Bus)(nil)

type Bus struct {
	m       *apb.Master
	clk     apb.Ticker
	clockHz uint32

	MaxPolls int
	// Retries is the number of extra attempts for a NACKed byte. Attempts
	// are spaced by Backoff in simulated time.
	Retries int
	Backoff *backoff.Backoff

	retried int
}

// New returns a Bus issuing cycles through m. clk and clockHz are used to
// idle the simulation between retries.
func New(m *apb.Master, clk apb.Ticker, clockHz uint32) *Bus {
	return &Bus{
		m:        m,
		clk:      clk,
		clockHz:  clockHz,
		MaxPolls: DefaultMaxPolls,
		Backoff: &backoff.Backoff{
			Min:    50 * time.Microsecond,
			Max:    2 * time.Millisecond,
			Factor: 2,
			Jitter: false,
		},
	}
}

// Retried returns the number of retries performed since construction.
func (b *Bus) Retried() int { return b.retried }

// Tx writes w then reads len(r) bytes from the 7-bit address addr. With both
// empty it probes the address.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return errcode.New(errcode.InvalidParams, "i2chost.tx", "address beyond 7 bits")
	}
	a := uint8(addr)
	if len(w) == 0 && len(r) == 0 {
		_, err := b.attempt(a, i2c.CtrlStart, 0)
		return err
	}
	for _, v := range w {
		if _, err := b.attempt(a, i2c.CtrlStart|i2c.CtrlWrite, v); err != nil {
			return err
		}
	}
	for i := range r {
		v, err := b.attempt(a, i2c.CtrlStart|i2c.CtrlRead, 0)
		if err != nil {
			return err
		}
		r[i] = v
	}
	return nil
}

// attempt runs one transaction, retrying NACKs with backoff.
func (b *Bus) attempt(addr uint8, ctrl uint32, data uint8) (uint8, error) {
	b.Backoff.Reset()
	for try := 0; ; try++ {
		v, err := b.transact(addr, ctrl, data)
		if errcode.Of(err) != errcode.Nack || try >= b.Retries {
			return v, err
		}
		b.retried++
		b.idle(b.Backoff.Duration())
	}
}

func (b *Bus) transact(addr uint8, ctrl uint32, data uint8) (uint8, error) {
	if _, err := b.waitIdle(); err != nil {
		return 0, err
	}
	if err := b.m.Write(i2c.RegAddr, uint32(addr)); err != nil {
		return 0, err
	}
	if ctrl&i2c.CtrlWrite != 0 {
		if err := b.m.Write(i2c.RegTxData, uint32(data)); err != nil {
			return 0, err
		}
	}
	if err := b.m.Write(i2c.RegControl, ctrl); err != nil {
		return 0, err
	}
	st, err := b.waitIdle()
	if err != nil {
		return 0, err
	}
	if st&i2c.StatusAckError != 0 {
		return 0, errcode.New(errcode.Nack, "i2chost.tx", "no acknowledge")
	}
	if ctrl&i2c.CtrlRead == 0 {
		return 0, nil
	}
	v, err := b.m.Read(i2c.RegRxData)
	return uint8(v), err
}

// waitIdle polls STATUS until busy clears and returns the last value read.
func (b *Bus) waitIdle() (uint32, error) {
	for n := 0; n < b.MaxPolls; n++ {
		st, err := b.m.Read(i2c.RegStatus)
		if err != nil {
			return 0, err
		}
		if st&i2c.StatusBusy == 0 {
			return st, nil
		}
	}
	return 0, errcode.New(errcode.Timeout, "i2chost.tx", "busy did not clear")
}

func (b *Bus) idle(d time.Duration) {
	for n := timex.Ticks(d, b.clockHz); n > 0; n-- {
		b.clk.Tick()
	}
}
