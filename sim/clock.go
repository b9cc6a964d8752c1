// Package sim provides the shared discrete time base.
//
// Every part is advanced in two phases per tick: Eval computes the next state
// from committed state only, then Commit publishes it. No part can observe
// another part's next state within the same tick.
package sim

import "periphsim/errcode"

// Clocked is a synchronous part advanced once per tick.
type Clocked interface {
	// Eval computes next state from committed state. It must not publish.
	Eval()
	// Commit publishes the state computed by Eval.
	Commit()
}

// Resetter is implemented by parts that can be forced to their initial state.
type Resetter interface {
	Reset()
}

// Clock owns the tick counter and the ordered set of parts.
type Clock struct {
	parts     []Clocked
	observers []func(tick uint64)
	now       uint64
}

func NewClock(parts ...Clocked) *Clock {
	c := &Clock{}
	c.Add(parts...)
	return c
}

// Add registers parts. Order does not affect results.
func (c *Clock) Add(parts ...Clocked) {
	c.parts = append(c.parts, parts...)
}

// Observe registers fn to run after every committed tick.
func (c *Clock) Observe(fn func(tick uint64)) {
	c.observers = append(c.observers, fn)
}

// Now returns the number of ticks committed since construction or Reset.
func (c *Clock) Now() uint64 { return c.now }

// Tick advances every part by one step.
func (c *Clock) Tick() {
	for _, p := range c.parts {
		p.Eval()
	}
	for _, p := range c.parts {
		p.Commit()
	}
	c.now++
	for _, fn := range c.observers {
		fn(c.now)
	}
}

// Run advances n ticks.
func (c *Clock) Run(n uint64) {
	for i := uint64(0); i < n; i++ {
		c.Tick()
	}
}

// RunUntil ticks until cond reports true (checked before each tick) or max
// ticks have elapsed. It returns the number of ticks taken.
func (c *Clock) RunUntil(cond func() bool, max uint64) (uint64, error) {
	for n := uint64(0); ; n++ {
		if cond() {
			return n, nil
		}
		if n >= max {
			return n, errcode.Timeout
		}
		c.Tick()
	}
}

// Reset forces every resettable part to its initial state and clears the
// tick counter.
func (c *Clock) Reset() {
	for _, p := range c.parts {
		if r, ok := p.(Resetter); ok {
			r.Reset()
		}
	}
	c.now = 0
}
