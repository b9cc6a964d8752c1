// Command periphsim runs sequencer scripts against the simulated UART and I2C
// peripherals.
//
//	periphsim [-v] [-i] [-config FILE] [-script FILE] [-run TICKS] [SCRIPT]
//
// With -i, or when SCRIPT is "-", commands are read from standard input.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/liner"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
	uuid "github.com/satori/go.uuid"

	"periphsim/bus"
	"periphsim/config"
	"periphsim/seq"
	"periphsim/system"
	"periphsim/x/conv"
	"periphsim/x/timex"
)

const usage = "periphsim [-v] [-i] [-config FILE] [-script FILE] [-run TICKS] [SCRIPT]"

func main() {
	if err := run(os.Args[1:]...); err != nil {
		log.Print("err: ", err)
		fmt.Fprintln(os.Stderr, "periphsim:", err)
		os.Exit(1)
	}
}

func run(args ...string) error {
	flag, args := flags.New(args, "-v", "-i", "-h", "-help")
	parm, args := parms.New(args, "-config", "-script", "-run")
	if flag.ByName["-h"] || flag.ByName["-help"] {
		fmt.Println("usage:", usage)
		return nil
	}
	script := parm.ByName["-script"]
	switch len(args) {
	case 0:
	case 1:
		if script != "" {
			return fmt.Errorf("%s: script given twice", args[0])
		}
		script = args[0]
	default:
		return fmt.Errorf("%v: unexpected", args[1:])
	}

	cfg := config.Default()
	if fn := parm.ByName["-config"]; fn != "" {
		b, err := os.ReadFile(fn)
		if err != nil {
			return err
		}
		if cfg, err = config.Parse(b); err != nil {
			return fmt.Errorf("%s: %w", fn, err)
		}
	}

	hub := bus.NewBus(64)
	sys, err := system.New(cfg, hub)
	if err != nil {
		return err
	}
	defer sys.Close()

	sim := &session{
		id:      uuid.NewV4().String(),
		sys:     sys,
		verbose: flag.ByName["-v"],
		events:  hub.NewConnection("cli").Subscribe(bus.T(bus.Rest)),
	}
	sim.runner = &seq.Runner{Sys: sys, OnStep: sim.step}
	log.Print("notice: periphsim run ", sim.id, " clock ", cfg.ClockHz, "Hz (", timex.PeriodFromHz(cfg.ClockHz),
		"ns/tick) uart ", cfg.UART.Baud, " baud i2c ", cfg.I2C.BusHz, "Hz")

	switch {
	case flag.ByName["-i"] || script == "-":
		err = sim.interactive()
	case script != "":
		err = sim.file(script)
	}
	if err != nil {
		return err
	}
	if s := parm.ByName["-run"]; s != "" {
		n, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return fmt.Errorf("-run: %w", err)
		}
		sys.Run(n)
		sim.drain()
	}
	log.Print("info: periphsim run ", sim.id, " finished at tick ", sys.Now(),
		" (", timex.Elapsed(sys.Now(), cfg.ClockHz), " simulated)")
	if sim.verbose {
		sim.dumpTargets()
	}
	return nil
}

// dumpTargets logs the byte stream each simulated I2C device received.
func (s *session) dumpTargets() {
	for _, t := range s.sys.Targets() {
		var sb strings.Builder
		var buf [2]byte
		for i, b := range t.Observed() {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.Write(conv.U8Hex(buf[:], b))
		}
		log.Print("info: target 0x", string(conv.U8Hex(buf[:], t.Addr)), " observed [", sb.String(), "]")
	}
}

type session struct {
	id      string
	sys     *system.System
	runner  *seq.Runner
	events  *bus.Subscription
	verbose bool
}

func (s *session) step(st seq.Step) {
	switch st.Cmd.Op {
	case seq.OpRead, seq.OpExpect:
		fmt.Printf("%8d  %-24s = %s\n", st.Tick, st.Cmd, conv.Word(st.Value))
	case seq.OpWait:
		fmt.Printf("%8d  %-24s after %d ticks\n", st.Tick, st.Cmd, st.Waited)
	default:
		if s.verbose {
			fmt.Printf("%8d  %s\n", st.Tick, st.Cmd)
		}
	}
	s.drain()
}

// drain logs queued events without waiting.
func (s *session) drain() {
	for {
		select {
		case m := <-s.events.Channel():
			if !s.verbose {
				continue
			}
			switch ev := m.Payload.(type) {
			case system.IRQEvent:
				log.Print("info: irq ", m.Topic[1], " tick ", ev.Tick, " status ", conv.Word(ev.Status))
			case system.ResetEvent:
				log.Print("notice: reset after ", ev.Tick, " ticks")
			}
		default:
			return
		}
	}
}

func (s *session) file(fn string) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	cmds, err := seq.Parse(f)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	if err := s.runner.Run(cmds); err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}

// interactive executes lines as they are entered. Errors are reported and
// the session continues; only a script fed through a pipe stops on error.
func (s *session) interactive() error {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return s.stream(os.Stdin)
	}
	l := liner.NewLiner()
	defer l.Close()
	l.SetCtrlCAborts(true)
	for n := 1; ; n++ {
		text, err := l.Prompt("periphsim> ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		l.AppendHistory(text)
		if err := s.line(n, text); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (s *session) stream(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		if err := s.line(n, sc.Text()); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (s *session) line(n int, text string) error {
	c, ok, err := seq.ParseLine(n, text)
	if err != nil || !ok {
		return err
	}
	st, err := s.runner.Exec(c)
	if err != nil {
		return err
	}
	s.step(st)
	return nil
}
