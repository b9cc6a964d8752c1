// Package seq runs linear test scripts against a simulated system using only
// bus cycles and interrupt outputs.
//
// One command per line; '#' starts a comment. Numbers accept 0x/0o/0b
// prefixes.
//
//	write <uart|i2c> <addr> <value> [strobe]
//	read <uart|i2c> <addr>
//	expect <uart|i2c> <addr> <value> [mask]
//	run <ticks>
//	wait irq <uart|i2c> <max-ticks>
//	wait rx <max-ticks>
//	rx <byte>...
//	rxline <0|1>
//	sdaline <0|1>
//	reset
package seq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"periphsim/errcode"
	"periphsim/system"
)

var ErrExpect = errors.New("expectation failed")

// Op is a script verb.
type Op string

const (
	OpWrite  Op = "write"
	OpRead   Op = "read"
	OpExpect Op = "expect"
	OpRun    Op = "run"
	OpWait   Op = "wait"
	OpRX     Op = "rx"
	OpRXLine Op = "rxline"
	OpSDA    Op = "sdaline"
	OpReset  Op = "reset"
)

// Command is one parsed script line.
type Command struct {
	Line   int
	Op     Op
	Periph string  // write/read/expect/wait irq
	Addr   uint8   // write/read/expect
	Value  uint32  // write/expect value, rxline level
	Extra  uint32  // write strobe, expect mask
	Count  uint64  // run ticks, wait budget
	Event  string  // wait: "irq" or "rx"
	Bytes  []uint8 // rx payload
}

func (c Command) String() string {
	switch c.Op {
	case OpWrite:
		return fmt.Sprintf("write %s %#02x %#08x", c.Periph, c.Addr, c.Value)
	case OpRead, OpExpect:
		return fmt.Sprintf("%s %s %#02x", c.Op, c.Periph, c.Addr)
	case OpRun:
		return fmt.Sprintf("run %d", c.Count)
	case OpWait:
		return strings.Join(strings.Fields(fmt.Sprintf("wait %s %s %d", c.Event, c.Periph, c.Count)), " ")
	}
	return string(c.Op)
}

func syntax(line int, msg string) error {
	return errcode.New(errcode.InvalidParams, "seq.parse", fmt.Sprintf("line %d: %s", line, msg))
}

// Parse reads a whole script.
func Parse(r io.Reader) ([]Command, error) {
	var cmds []Command
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		c, ok, err := ParseLine(n, sc.Text())
		if err != nil {
			return nil, err
		}
		if ok {
			cmds = append(cmds, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cmds, nil
}

// ParseLine parses one line. ok is false for blank and comment lines.
func ParseLine(n int, text string) (c Command, ok bool, err error) {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	f, err := shlex.Split(text)
	if err != nil {
		return c, false, syntax(n, err.Error())
	}
	if len(f) == 0 {
		return c, false, nil
	}
	c = Command{Line: n, Op: Op(strings.ToLower(f[0]))}
	args := f[1:]
	want := func(min, max int) error {
		if len(args) < min || len(args) > max {
			return syntax(n, fmt.Sprintf("%s: want %d..%d arguments, got %d", c.Op, min, max, len(args)))
		}
		return nil
	}
	num := func(s string, bits int) (uint64, error) {
		v, err := strconv.ParseUint(s, 0, bits)
		if err != nil {
			return 0, syntax(n, fmt.Sprintf("%s: bad number %q", c.Op, s))
		}
		return v, nil
	}
	periph := func(s string) (string, error) {
		switch s {
		case system.UART, system.I2C:
			return s, nil
		}
		return "", syntax(n, "unknown peripheral "+strconv.Quote(s))
	}

	switch c.Op {
	case OpWrite, OpExpect:
		if err = want(3, 4); err != nil {
			return
		}
		c.Extra = 0xFFFFFFFF
		if c.Op == OpWrite {
			c.Extra = 0xF
		}
		if len(args) == 4 {
			var v uint64
			if v, err = num(args[3], 32); err != nil {
				return
			}
			c.Extra = uint32(v)
		}
		var v uint64
		if v, err = num(args[2], 32); err != nil {
			return
		}
		c.Value = uint32(v)
		fallthrough
	case OpRead:
		if c.Op == OpRead {
			if err = want(2, 2); err != nil {
				return
			}
		}
		if c.Periph, err = periph(args[0]); err != nil {
			return
		}
		var a uint64
		if a, err = num(args[1], 8); err != nil {
			return
		}
		c.Addr = uint8(a)
	case OpRun:
		if err = want(1, 1); err != nil {
			return
		}
		c.Count, err = num(args[0], 64)
	case OpWait:
		if err = want(2, 3); err != nil {
			return
		}
		c.Event = args[0]
		switch {
		case c.Event == "irq" && len(args) == 3:
			if c.Periph, err = periph(args[1]); err != nil {
				return
			}
			c.Count, err = num(args[2], 64)
		case c.Event == "rx" && len(args) == 2:
			c.Count, err = num(args[1], 64)
		default:
			err = syntax(n, "wait: want 'irq <periph> <ticks>' or 'rx <ticks>'")
		}
	case OpRX:
		if err = want(1, 256); err != nil {
			return
		}
		for _, s := range args {
			var v uint64
			if v, err = num(s, 8); err != nil {
				return
			}
			c.Bytes = append(c.Bytes, uint8(v))
		}
	case OpRXLine, OpSDA:
		if err = want(1, 1); err != nil {
			return
		}
		var v uint64
		if v, err = num(args[0], 1); err != nil {
			return
		}
		c.Value = uint32(v)
	case OpReset:
		err = want(0, 0)
	default:
		err = syntax(n, "unknown command "+strconv.Quote(f[0]))
	}
	if err != nil {
		return c, false, err
	}
	return c, true, nil
}
