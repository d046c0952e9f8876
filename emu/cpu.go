package emu

import (
	"bbemu/emu/log"
	"bbemu/hw/intc"
	"bbemu/hw/irq"
)

// maxServicePerPass bounds the interrupts serviced in a row, so that a
// level-triggered line whose handler never clears its source can't hang
// the machine.
const maxServicePerPass = 256

// A Handler services the interrupt of a line. It must clear the source of
// the request at the peripheral, as an interrupt service routine would.
type Handler func(id intc.LineID)

// CPU is the interrupt-servicing half of the application processor. It
// watches the two arbiter outputs and, for each asserted class, claims the
// selected line, runs its handler and acknowledges it, fast class first.
type CPU struct {
	intc     *intc.Arbiter
	inputs   [intc.NumClasses]bool
	handlers []Handler

	// Serviced counts the interrupts serviced, per line.
	Serviced []uint64
}

func newCPU() *CPU { return &CPU{} }

// attach binds the CPU to its arbiter, once built.
func (c *CPU) attach(a *intc.Arbiter) {
	c.intc = a
	c.handlers = make([]Handler, a.Table().Len())
	c.Serviced = make([]uint64, a.Table().Len())
}

// Input returns the CPU input of class cl, to be driven by the arbiter.
func (c *CPU) Input(cl intc.Class) irq.Line {
	return irq.LineFunc(func(level uint8) {
		c.inputs[cl] = level != irq.Low
		log.ModCPU.DebugZ("input").
			Stringer("class", cl).
			Bool("level", c.inputs[cl]).
			End()
	})
}

// Asserted reports whether the input of class cl is high.
func (c *CPU) Asserted(cl intc.Class) bool { return c.inputs[cl] }

// Handle installs the handler of line id.
func (c *CPU) Handle(id intc.LineID, h Handler) {
	c.handlers[id] = h
}

// service handles every pending interrupt, and returns how many were.
func (c *CPU) service() int {
	n := 0
	for n < maxServicePerPass {
		var cl intc.Class
		switch {
		case c.inputs[intc.Fast]:
			cl = intc.Fast
		case c.inputs[intc.Normal]:
			cl = intc.Normal
		default:
			return n
		}

		id, ok := c.intc.Claim(cl)
		if !ok {
			// Spurious: the output dropped between sampling and claim.
			c.inputs[cl] = false
			continue
		}
		if h := c.handlers[id]; h != nil {
			h(id)
		}
		c.Serviced[id]++
		log.ModCPU.DebugZ("serviced").
			Stringer("class", cl).
			String("line", c.intc.Table().Name(id)).
			Uint64("count", c.Serviced[id]).
			End()
		c.intc.Ack(cl)
		n++
	}

	log.ModCPU.WarnZ("interrupt storm").Int("serviced", n).End()
	return n
}

// Reset clears the counters.
func (c *CPU) Reset() {
	clear(c.Serviced)
}
