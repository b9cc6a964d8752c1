// Package line models open-drain (wired-AND) signals.
package line

// Drive is one participant's contribution to an open-drain line.
// A participant that is not enabled has released the line.
type Drive struct {
	Enable bool
	Value  bool
}

// Released is the zero Drive.
var Released = Drive{}

// Low pulls the line low.
var Low = Drive{Enable: true, Value: false}

// High drives a high level, which on an open-drain line is the same as release.
var High = Drive{Enable: true, Value: true}

// Pulls reports whether d forces the line low.
func (d Drive) Pulls() bool { return d.Enable && !d.Value }

// Resolve returns the observed level: low if any enabled driver drives low,
// otherwise high (pull-up).
func Resolve(ds ...Drive) bool {
	for _, d := range ds {
		if d.Pulls() {
			return false
		}
	}
	return true
}

// Line is a named open-drain net. Sources report each participant's committed
// drive, so Level is a pure function of committed state.
type Line struct {
	Name    string
	sources []func() Drive
}

func New(name string) *Line { return &Line{Name: name} }

// Attach adds a participant.
func (l *Line) Attach(src func() Drive) { l.sources = append(l.sources, src) }

// Level resolves all attached participants.
func (l *Line) Level() bool {
	for _, src := range l.sources {
		if src().Pulls() {
			return false
		}
	}
	return true
}

// Pull returns a manually controlled participant, used for external devices
// and tests.
func (l *Line) Pull() *Puller {
	p := &Puller{}
	l.Attach(p.Drive)
	return p
}

// Puller is an externally controlled driver on a Line.
type Puller struct{ d Drive }

func (p *Puller) Set(d Drive)  { p.d = d }
func (p *Puller) Drive() Drive { return p.d }
func (p *Puller) Low()         { p.d = Low }
func (p *Puller) Release()     { p.d = Released }
