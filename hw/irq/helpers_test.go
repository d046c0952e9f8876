package irq

import "testing"

// probe records every level delivered to a line.
type probe struct {
	levels []uint8
}

func (p *probe) SetLevel(level uint8) { p.levels = append(p.levels, level) }

func (p *probe) last() uint8 {
	if len(p.levels) == 0 {
		return Low
	}
	return p.levels[len(p.levels)-1]
}

func (p *probe) wantToggles(tb testing.TB, n int) {
	tb.Helper()
	if len(p.levels) != n {
		tb.Fatalf("line toggled %d times %v, want %d", len(p.levels), p.levels, n)
	}
}

func newProbes(n int) ([]*probe, []Line) {
	probes := make([]*probe, n)
	lines := make([]Line, n)
	for i := range probes {
		probes[i] = &probe{}
		lines[i] = probes[i]
	}
	return probes, lines
}
