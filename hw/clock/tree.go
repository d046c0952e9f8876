// Package clock models the clock tree of the SoC: frequency sources,
// dividers and the per-peripheral gates controlled by a Control register.
//
// Every node notifies its listeners when its output frequency changes, so
// that timers can rebase their counters at the exact instant of the change.
package clock

import "bbemu/emu/log"

// A Node is a point of the clock tree delivering a frequency.
type Node interface {
	Name() string
	Freq() uint64
	OnFrequencyChange(fn func(hz uint64))
}

type listeners struct {
	fns []func(hz uint64)
}

func (l *listeners) OnFrequencyChange(fn func(hz uint64)) {
	l.fns = append(l.fns, fn)
}

func (l *listeners) notify(name string, hz uint64) {
	log.ModClock.DebugZ("frequency change").
		String("clock", name).
		Uint64("hz", hz).
		End()
	for _, fn := range l.fns {
		fn(hz)
	}
}

// Source is a root clock, fixed or programmable (PLL output, oscillator).
type Source struct {
	listeners
	name string
	hz   uint64
}

func NewSource(name string, hz uint64) *Source {
	return &Source{name: name, hz: hz}
}

func (s *Source) Name() string { return s.name }
func (s *Source) Freq() uint64 { return s.hz }

func (s *Source) SetFreq(hz uint64) {
	if hz == s.hz {
		return
	}
	s.hz = hz
	s.notify(s.name, hz)
}

// Divider derives parent/div.
type Divider struct {
	listeners
	name   string
	parent Node
	div    uint64
	hz     uint64
}

// NewDivider returns a divider of parent. A div of 0 counts as 1.
func NewDivider(name string, parent Node, div uint64) *Divider {
	d := &Divider{name: name, parent: parent, div: max(div, 1)}
	d.hz = parent.Freq() / d.div
	parent.OnFrequencyChange(func(uint64) { d.update() })
	return d
}

func (d *Divider) Name() string { return d.name }
func (d *Divider) Freq() uint64 { return d.hz }

func (d *Divider) SetDiv(div uint64) {
	d.div = max(div, 1)
	d.update()
}

func (d *Divider) update() {
	hz := d.parent.Freq() / d.div
	if hz == d.hz {
		return
	}
	d.hz = hz
	d.notify(d.name, hz)
}

// Gate derives parent/prescaler, gated by a Control register: its
// frequency is 0 while the control register is disabled.
type Gate struct {
	listeners
	name   string
	parent Node
	ctl    *Control
	hz     uint64
}

func NewGate(name string, parent Node, ctl *Control) *Gate {
	g := &Gate{name: name, parent: parent, ctl: ctl}
	g.hz = g.compute()
	parent.OnFrequencyChange(func(uint64) { g.update() })
	ctl.OnChange(g.update)
	return g
}

func (g *Gate) Name() string { return g.name }
func (g *Gate) Freq() uint64 { return g.hz }

func (g *Gate) compute() uint64 {
	if !g.ctl.Enabled() {
		return 0
	}
	return g.parent.Freq() / uint64(max(g.ctl.Prescaler(), 1))
}

func (g *Gate) update() {
	hz := g.compute()
	if hz == g.hz {
		return
	}
	g.hz = hz
	g.notify(g.name, hz)
}
