package system

import "periphsim/uart"

type peerRegs struct {
	send bool
	data uint8
}

// peer is the remote end of the serial link: a transmitter fed from a queue,
// driving the bridge's receive line when loopback is off.
type peer struct {
	tx    *uart.Tx
	queue []uint8

	cur, next peerRegs
}

func newPeer(cfg uart.Config) *peer {
	p := &peer{}
	p.tx = uart.NewTx(cfg, func() bool { return p.cur.send }, func() uint8 { return p.cur.data })
	return p
}

func (p *peer) enqueue(b ...uint8) { p.queue = append(p.queue, b...) }

func (p *peer) line() bool { return p.tx.Line() }

// idle reports whether every queued byte has left the line.
func (p *peer) idle() bool { return len(p.queue) == 0 && !p.cur.send && !p.tx.Busy() }

func (p *peer) Eval() {
	p.tx.Eval()
	n := peerRegs{data: p.cur.data}
	if !p.cur.send && !p.tx.Busy() && len(p.queue) > 0 {
		n.send, n.data = true, p.queue[0]
	}
	p.next = n
}

func (p *peer) Commit() {
	p.tx.Commit()
	if p.next.send {
		p.queue = p.queue[1:]
	}
	p.cur = p.next
}

func (p *peer) Reset() {
	p.tx.Reset()
	p.queue = nil
	p.cur, p.next = peerRegs{}, peerRegs{}
}
