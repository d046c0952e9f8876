package irq

import (
	"math/bits"

	"bbemu/emu/log"
	"bbemu/hw/hwerr"
	"bbemu/hw/hwio"
)

// MaxEvents is the number of events a RequestBank holds.
const MaxEvents = 32

// A Router maps an event number to the index of the line it is fanned to.
// It must have no side effects.
type Router func(event int) int

// RouteAll routes every event to line 0.
func RouteAll(int) int { return 0 }

// RequestBank holds up to 32 events, each raised in a raw status register
// and enabled by a mask, fanned many-to-one to physical lines. A line is
// asserted iff one of the events routed to it is both raised and enabled.
type RequestBank struct {
	Name string

	raw  uint32
	mask uint32

	lines     []Line
	lineMask  []uint32 // events routed to each line
	delivered hwio.Bitset
}

// NewRequestBank returns a bank fanning its events to lines through route.
// Routing is resolved once, at construction.
func NewRequestBank(name string, lines []Line, route Router) (*RequestBank, error) {
	if len(lines) == 0 {
		return nil, hwerr.Configf(name, "request bank without lines")
	}
	for i, l := range lines {
		if l == nil {
			return nil, hwerr.Configf(name, "line %d is not wired", i)
		}
	}
	if route == nil {
		return nil, hwerr.Configf(name, "request bank without router")
	}

	b := &RequestBank{
		Name:      name,
		lines:     append([]Line(nil), lines...),
		lineMask:  make([]uint32, len(lines)),
		delivered: hwio.NewBitset(uint(len(lines))),
	}
	for ev := 0; ev < MaxEvents; ev++ {
		idx := route(ev)
		if idx < 0 || idx >= len(lines) {
			hwerr.Panicf(name, "event %d routed to line %d, bank has %d lines", ev, idx, len(lines))
		}
		b.lineMask[idx] |= 1 << ev
	}
	return b, nil
}

// SetMask sets the enabled events. An event already raised when its mask
// bit turns on is delivered immediately.
func (b *RequestBank) SetMask(mask uint32) {
	b.mask = mask
	b.update()
}

func (b *RequestBank) Mask() uint32 { return b.mask }

// SetRaw raises the given events.
func (b *RequestBank) SetRaw(events uint32) {
	b.raw |= events
	b.update()
}

// ClearRaw lowers the given events.
func (b *RequestBank) ClearRaw(events uint32) {
	b.raw &^= events
	b.update()
}

func (b *RequestBank) Raw() uint32 { return b.raw }

// Status returns the raised and enabled events.
func (b *RequestBank) Status() uint32 { return b.raw & b.mask }

// Asserted reports whether line idx is currently driven.
func (b *RequestBank) Asserted(idx int) bool {
	return b.delivered.Test(uint(idx))
}

// Reset lowers and disables every event.
func (b *RequestBank) Reset() {
	b.raw, b.mask = 0, 0
	b.update()
}

func (b *RequestBank) update() {
	status := b.raw & b.mask
	for i, lm := range b.lineMask {
		want := status&lm != 0
		if want == b.delivered.Test(uint(i)) {
			continue
		}
		b.delivered.SetTo(uint(i), want)

		level := Low
		if want {
			level = High
		}
		log.ModIRQ.DebugZ("request bank").
			String("name", b.Name).
			Int("line", i).
			Hex32("status", status).
			Int("events", bits.OnesCount32(status&lm)).
			Bool("level", want).
			End()
		b.lines[i].SetLevel(level)
	}
}
