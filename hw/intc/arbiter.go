// Package intc implements the top-level interrupt arbiter of the SoC.
//
// Lines are grouped in two independent classes (normal and fast), each
// driving one CPU input. For each class the arbiter selects the single
// highest-priority pending line and drives the class output. The CPU
// claims the selected line, which locks the class, and acknowledges it
// once serviced, which releases the lock and re-arbitrates.
package intc

import (
	"fmt"

	"bbemu/emu/log"
	"bbemu/hw/hwerr"
	"bbemu/hw/hwio"
	"bbemu/hw/irq"
)

// MaxLines is the maximum number of lines of an arbiter.
const MaxLines = 256

// NoLine is returned when no line is selected.
const NoLine LineID = -1

// State of an arbitration class.
type State uint8

const (
	Idle    State = iota // no line selected, output low
	Pending              // a line is selected, output high
	Locked               // the CPU claimed the selected line
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Locked:
		return "locked"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

type line struct {
	class    Class
	prio     uint8
	weight   uint8
	trigger  Trigger
	input    bool // last level driven on the line
	asserted bool // request seen by arbitration
	relatch  bool // edge line raised again while in service
}

type classState struct {
	state    State
	selected LineID
	out      irq.Line
	pending  hwio.Bitset // asserted lines of this class

	masked    bool
	maskLevel uint8 // ignore priority <= maskLevel when masked
}

type Arbiter struct {
	name   string
	table  *LineTable
	policy Policy
	lines  []line
	cls    [NumClasses]classState
}

// New returns an arbiter for the lines of table, driving normal and fast
// with the state of the corresponding class.
func New(name string, table *LineTable, policy Policy, normal, fast irq.Line) (*Arbiter, error) {
	if table == nil || table.Len() == 0 {
		return nil, hwerr.Configf(name, "arbiter without lines")
	}
	if table.Len() > MaxLines {
		return nil, hwerr.Configf(name, "%d lines, at most %d supported", table.Len(), MaxLines)
	}
	if normal == nil {
		return nil, hwerr.Configf(name, "normal output is not wired")
	}
	if fast == nil {
		return nil, hwerr.Configf(name, "fast output is not wired")
	}

	a := &Arbiter{
		name:   name,
		table:  table,
		policy: policy,
		lines:  make([]line, table.Len()),
	}
	a.cls[Normal].out = normal
	a.cls[Fast].out = fast
	for c := range a.cls {
		a.cls[c].pending = hwio.NewBitset(uint(table.Len()))
		a.cls[c].selected = NoLine
	}
	a.loadSpecs()
	return a, nil
}

func (a *Arbiter) loadSpecs() {
	for i, spec := range a.table.specs {
		a.lines[i] = line{
			class:   spec.Class,
			prio:    spec.Priority,
			weight:  spec.Weight,
			trigger: spec.Trigger,
		}
	}
}

func (a *Arbiter) Name() string            { return a.name }
func (a *Arbiter) Table() *LineTable       { return a.table }
func (a *Arbiter) Policy() Policy          { return a.policy }
func (a *Arbiter) State(c Class) State     { return a.class(c).state }
func (a *Arbiter) Selected(c Class) LineID { return a.class(c).selected }

// Asserted reports whether line id is requesting service.
func (a *Arbiter) Asserted(id LineID) bool {
	return a.line(id).asserted
}

// Reset returns every line and class to its power-up state.
func (a *Arbiter) Reset() {
	a.loadSpecs()
	for c := range a.cls {
		cs := &a.cls[c]
		cs.pending.Reset()
		cs.masked = false
		if cs.state == Pending {
			cs.out.SetLevel(irq.Low)
		}
		cs.state = Idle
		cs.selected = NoLine
	}
}

func (a *Arbiter) line(id LineID) *line {
	if id < 0 || int(id) >= len(a.lines) {
		hwerr.Panicf(a.name, "line %d out of range [0,%d)", id, len(a.lines))
	}
	return &a.lines[id]
}

func (a *Arbiter) class(c Class) *classState {
	if c >= NumClasses {
		hwerr.Panicf(a.name, "invalid class %d", c)
	}
	return &a.cls[c]
}

// SetLevel drives line id. The line takes the given class, priority and
// nesting weight, then every class that is not locked is re-arbitrated.
func (a *Arbiter) SetLevel(id LineID, class Class, priority, weight uint8, level bool) {
	l := a.line(id)
	a.class(class)
	serviced := a.inService(id)

	if l.class != class && l.asserted {
		a.cls[l.class].pending.Clear(uint(id))
	}
	l.class = class
	l.prio = priority
	l.weight = weight

	changed := level != l.input
	l.input = level
	switch {
	case l.trigger == Level:
		l.asserted = level
	case !changed:
	case serviced:
		// Serviced edge lines keep their latch until ack, a new rising
		// edge is remembered for then.
		l.relatch = level
	default:
		l.asserted = level
	}
	a.cls[class].pending.SetTo(uint(id), l.asserted)

	log.ModIntc.DebugZ("set level").
		String("line", a.table.specs[id].Name).
		Stringer("class", class).
		Uint8("prio", priority).
		Bool("level", level).
		Bool("asserted", l.asserted).
		End()

	for c := Class(0); c < NumClasses; c++ {
		if a.cls[c].state != Locked {
			a.arbitrate(c)
		}
	}
}

// inService reports whether line id is the locked line of its class.
func (a *Arbiter) inService(id LineID) bool {
	cs := &a.cls[a.lines[id].class]
	return cs.state == Locked && cs.selected == id
}

// Port returns the input of line id, as an irq.Line. The class, priority
// and weight of the line are those of its LineSpec, except for dynamic
// lines, whose priority is the driven level minus one. A class set by a
// direct SetLevel call is overridden by the next port level.
func (a *Arbiter) Port(id LineID) irq.Line {
	a.line(id)
	return port{a: a, id: id}
}

type port struct {
	a  *Arbiter
	id LineID
}

func (p port) SetLevel(level uint8) {
	spec := p.a.table.specs[p.id]
	prio := spec.Priority
	if spec.Dynamic {
		prio = p.a.lines[p.id].prio
		if level != irq.Low {
			prio = level - 1
		}
	}
	p.a.SetLevel(p.id, spec.Class, prio, spec.Weight, level != irq.Low)
}

// SetPriorityMask excludes from arbitration the lines of class c whose
// priority is lower or equal to n. Their requests are kept.
func (a *Arbiter) SetPriorityMask(c Class, n uint8) {
	cs := a.class(c)
	cs.masked, cs.maskLevel = true, n
	if cs.state != Locked {
		a.arbitrate(c)
	}
}

func (a *Arbiter) ClearPriorityMask(c Class) {
	cs := a.class(c)
	cs.masked = false
	if cs.state != Locked {
		a.arbitrate(c)
	}
}

// Claim locks class c on its selected line and returns it. The class
// output is released. Claiming a locked class returns the locked line
// again; claiming an idle class returns NoLine, false.
func (a *Arbiter) Claim(c Class) (LineID, bool) {
	cs := a.class(c)
	switch cs.state {
	case Idle:
		return NoLine, false
	case Locked:
		return cs.selected, true
	}

	cs.state = Locked
	cs.out.SetLevel(irq.Low)

	log.ModIntc.DebugZ("claim").
		Stringer("class", c).
		String("line", a.table.specs[cs.selected].Name).
		End()
	return cs.selected, true
}

// Ack acknowledges the line locked in class c. An edge-triggered line is
// cleared, unless its input rose again while in service and is still
// high. A level-triggered line follows its input. The class then goes back
// to idle or selects the next pending line. Acknowledging a class that is
// not locked is a programming error.
func (a *Arbiter) Ack(c Class) {
	cs := a.class(c)
	if cs.state != Locked {
		hwerr.Panicf(a.name, "ack of %s class in %s state", c, cs.state)
	}

	id := cs.selected
	l := &a.lines[id]
	if l.trigger == Edge {
		l.asserted = l.relatch
	} else {
		l.asserted = l.input
	}
	l.relatch = false
	a.cls[l.class].pending.SetTo(uint(id), l.asserted)

	log.ModIntc.DebugZ("ack").
		Stringer("class", c).
		String("line", a.table.specs[id].Name).
		End()

	cs.state = Idle
	cs.selected = NoLine
	a.arbitrate(c)
}

// arbitrate selects the winner of class c, which must not be locked.
func (a *Arbiter) arbitrate(c Class) {
	cs := &a.cls[c]
	winner := a.selectLine(cs)

	switch {
	case winner == NoLine && cs.state == Pending:
		cs.state = Idle
		cs.selected = NoLine
		cs.out.SetLevel(irq.Low)
	case winner != NoLine && cs.state == Idle:
		cs.state = Pending
		cs.selected = winner
		log.ModIntc.DebugZ("raise").
			Stringer("class", c).
			String("line", a.table.specs[winner].Name).
			End()
		cs.out.SetLevel(irq.High)
	case winner != NoLine:
		cs.selected = winner
	}
}

func (a *Arbiter) selectLine(cs *classState) LineID {
	best := NoLine
	cs.pending.Each(func(i uint) {
		id := LineID(i)
		l := &a.lines[id]
		if cs.masked && l.prio <= cs.maskLevel {
			return
		}
		if best == NoLine || a.policy.beats(l, id, &a.lines[best], best) {
			best = id
		}
	})
	return best
}
