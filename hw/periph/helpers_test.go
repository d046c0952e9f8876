package periph

import (
	"testing"

	"bbemu/hw/hwio"
	"bbemu/hw/irq"
)

// probe records every level delivered to a line.
type probe struct {
	levels []uint8
}

func (p *probe) SetLevel(level uint8) { p.levels = append(p.levels, level) }

func (p *probe) level() uint8 {
	if len(p.levels) == 0 {
		return irq.Low
	}
	return p.levels[len(p.levels)-1]
}

func (p *probe) wantLevel(tb testing.TB, want uint8) {
	tb.Helper()
	if got := p.level(); got != want {
		tb.Fatalf("line level = %d (history %v), want %d", got, p.levels, want)
	}
}

func wantRead32(tb testing.TB, bus *hwio.Table, addr, want uint32) {
	tb.Helper()
	if got := bus.Read32(addr); got != want {
		tb.Errorf("Read32(%08X) = %08X, want %08X", addr, got, want)
	}
}
