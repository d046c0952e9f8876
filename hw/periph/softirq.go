package periph

import (
	"fmt"

	"bbemu/emu/log"
	"bbemu/hw/hwerr"
	"bbemu/hw/hwio"
	"bbemu/hw/irq"
)

// MaxSoftLines is the number of request line registers a SoftIRQ decodes.
const MaxSoftLines = 64

// SoftIRQ is a block of request line registers, 4 bytes each, letting
// software raise interrupts on arbiter lines.
type SoftIRQ struct {
	Name string

	LINES hwio.Device `hwio:"offset=0x0,size=0x100,rcb,pcb,wcb"`

	base uint32
	reqs []*irq.RequestLine
}

// NewSoftIRQ returns one request line register per line.
func NewSoftIRQ(name string, lines []irq.Line) (*SoftIRQ, error) {
	if len(lines) == 0 || len(lines) > MaxSoftLines {
		return nil, hwerr.Configf(name, "%d lines, want 1 to %d", len(lines), MaxSoftLines)
	}
	s := &SoftIRQ{Name: name}
	hwio.MustInitRegs(s)
	for i, l := range lines {
		s.reqs = append(s.reqs, irq.NewRequestLine(fmt.Sprintf("%s.%d", name, i), l))
	}
	return s, nil
}

// Map maps the register block at addr.
func (s *SoftIRQ) Map(t *hwio.Table, addr uint32) {
	s.base = addr
	t.MapBank(addr, s)
}

func (s *SoftIRQ) Len() int { return len(s.reqs) }

// Line returns request line i.
func (s *SoftIRQ) Line(i int) *irq.RequestLine {
	if i < 0 || i >= len(s.reqs) {
		hwerr.Panicf(s.Name, "line %d out of range [0,%d)", i, len(s.reqs))
	}
	return s.reqs[i]
}

// Reset clears every request line.
func (s *SoftIRQ) Reset() {
	for _, r := range s.reqs {
		r.Set(0)
	}
}

func (s *SoftIRQ) req(addr uint32) *irq.RequestLine {
	idx := int(addr-s.base) / 4
	if idx >= len(s.reqs) {
		return nil
	}
	return s.reqs[idx]
}

func (s *SoftIRQ) ReadLINES(addr uint32) uint32 {
	if r := s.req(addr); r != nil {
		return r.Get()
	}
	return 0
}

func (s *SoftIRQ) PeekLINES(addr uint32) uint32 { return s.ReadLINES(addr) }

func (s *SoftIRQ) WriteLINES(addr, val uint32) {
	r := s.req(addr)
	if r == nil {
		log.ModIRQ.ErrorZ("write to missing soft line").
			String("name", s.Name).
			Hex32("addr", addr).
			End()
		return
	}
	r.Set(val)
}
