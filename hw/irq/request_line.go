package irq

import (
	"bbemu/emu/log"
	"bbemu/hw/hwio"
)

// RequestLine register layout.
const (
	LinePending = 1 << 0
	LineEnable  = 1 << 1
	LineAssert  = 1 << 2 // command: set pending, write-only
	LineClear   = 1 << 3 // command: clear pending, write-only

	LinePrioShift = 8
	LinePrioWidth = 5 // priorities 0-31

	lineCommands = LineAssert | LineClear
)

// RequestLine is a single interrupt request bound 1:1 to a line. It is
// either idle or pending; the line is driven with 1+priority while the
// request is both pending and enabled.
type RequestLine struct {
	Name string

	value     uint32
	line      Line
	delivered bool
}

// NewRequestLine returns an idle, disabled request driving line.
func NewRequestLine(name string, line Line) *RequestLine {
	if line == nil {
		line = Detached()
	}
	return &RequestLine{Name: name, line: line}
}

// Set stores a raw register value. The Assert and Clear command bits are
// folded into the pending bit (Clear wins) and are not stored.
func (r *RequestLine) Set(v uint32) {
	if v&LineAssert != 0 {
		v |= LinePending
	}
	if v&LineClear != 0 {
		v &^= LinePending
	}
	r.value = v &^ lineCommands
	r.update()
}

func (r *RequestLine) Get() uint32 { return r.value }

func (r *RequestLine) Assert() {
	r.value |= LinePending
	r.update()
}

func (r *RequestLine) Clear() {
	r.value &^= LinePending
	r.update()
}

func (r *RequestLine) Pending() bool { return r.value&LinePending != 0 }
func (r *RequestLine) Enabled() bool { return r.value&LineEnable != 0 }

func (r *RequestLine) Priority() uint8 {
	return uint8(hwio.Field32(r.value, LinePrioShift, LinePrioWidth))
}

// Delivered reports whether the line is currently driven.
func (r *RequestLine) Delivered() bool { return r.delivered }

func (r *RequestLine) update() {
	want := r.Pending() && r.Enabled()
	if want == r.delivered {
		return
	}
	r.delivered = want

	level := Low
	if want {
		level = 1 + r.Priority()
	}
	log.ModIRQ.DebugZ("request line").
		String("name", r.Name).
		Uint8("level", level).
		End()
	r.line.SetLevel(level)
}
