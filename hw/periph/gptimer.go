// Package periph contains the peripheral models built on the interrupt and
// timer core: register banks decoded through hwio, clocked through a clock
// gate and raising interrupts through request banks and lines.
package periph

import (
	"bbemu/emu/log"
	"bbemu/hw/clock"
	"bbemu/hw/hwerr"
	"bbemu/hw/hwio"
	"bbemu/hw/irq"
	"bbemu/hw/sched"
	"bbemu/hw/timer"
)

// GPTimer events.
const (
	EvOverflow = 1 << 0
	EvFault    = 1 << 31

	evCompare0 = 1
)

// GPTimer fault events, held in the FAULT extension register.
const (
	FaultUnderrun = 1 << 0 // LOAD beyond the modulus
)

// GPTimer control bits.
const (
	CtrlStart = 1 << 0
)

// MaxCompares is the number of compare registers of a GPTimer.
const MaxCompares = 8

// GPTimer is a general purpose timer unit: a free-running counter with a
// programmable modulus and up to 8 compare registers, clocked through its
// own clock control register. Overflow and faults are routed to the first
// interrupt line; compares go to the second one when it is wired.
type GPTimer struct {
	Name string

	CKCTL  hwio.Reg32  `hwio:"offset=0x00,rcb,pcb,wcb"`
	CTRL   hwio.Reg32  `hwio:"offset=0x04,rwmask=0x1,wcb"`
	LOAD   hwio.Reg32  `hwio:"offset=0x08,wcb"`
	COUNT  hwio.Reg32  `hwio:"offset=0x0C,readonly,rcb,pcb"`
	OVF    hwio.Reg32  `hwio:"offset=0x10,wcb"`
	STATUS hwio.Reg32  `hwio:"offset=0x14,rcb,pcb,wcb"`
	MASK   hwio.Reg32  `hwio:"offset=0x18,wcb"`
	FAULT  hwio.Reg32  `hwio:"offset=0x1C,rcb,pcb,wcb"`
	CMP    hwio.Device `hwio:"offset=0x20,size=0x20,rcb,pcb,wcb"`

	base   uint32
	ncmp   int
	nlines int
	ctl    clock.Control
	gate   *clock.Gate
	timer  *timer.DynamicTimer
	bank   *irq.RequestBank
	fault  *irq.RequestBankExtension
}

// NewGPTimer returns a timer with ncmp compare registers, clocked by
// parent, raising its events on lines (one or two).
func NewGPTimer(name string, s *sched.Scheduler, parent clock.Node, ncmp int, lines ...irq.Line) (*GPTimer, error) {
	if ncmp < 0 || ncmp > MaxCompares {
		return nil, hwerr.Configf(name, "%d compare registers, at most %d supported", ncmp, MaxCompares)
	}
	if len(lines) == 0 || len(lines) > 2 {
		return nil, hwerr.Configf(name, "%d interrupt lines, want 1 or 2", len(lines))
	}
	if parent == nil {
		return nil, hwerr.Configf(name, "timer without clock")
	}

	g := &GPTimer{Name: name, ncmp: ncmp, nlines: len(lines)}
	hwio.MustInitRegs(g)

	var err error
	if g.bank, err = irq.NewRequestBank(name, lines, g.route); err != nil {
		return nil, err
	}
	if g.fault, err = irq.NewRequestBankExtension(name+".fault", g.bank, 31); err != nil {
		return nil, err
	}
	if g.timer, err = timer.New(name, s, ncmp, g.onTimer); err != nil {
		return nil, err
	}

	g.ctl.Init()
	g.gate = clock.NewGate(name, parent, &g.ctl)
	g.gate.OnFrequencyChange(g.timer.SetFrequency)
	g.timer.SetFrequency(g.gate.Freq())
	g.fault.SetMask(FaultUnderrun)
	return g, nil
}

func (g *GPTimer) route(ev int) int {
	if g.nlines > 1 && ev >= evCompare0 && ev < evCompare0+g.ncmp {
		return 1
	}
	return 0
}

// LineEvents returns the events routed to line idx.
func (g *GPTimer) LineEvents(idx int) uint32 {
	var m uint32
	for ev := 0; ev < irq.MaxEvents; ev++ {
		if g.route(ev) == idx {
			m |= 1 << ev
		}
	}
	return m
}

// Map maps the register bank at addr.
func (g *GPTimer) Map(t *hwio.Table, addr uint32) {
	g.base = addr
	t.MapBank(addr, g)
}

// Reset restores the reset state: clock gated, counter stopped at 0.
func (g *GPTimer) Reset() {
	hwio.MustInitRegs(g)
	g.timer.Stop()
	g.ctl.Init()
	g.timer.SetOverflow(timer.DefaultModulus)
	g.timer.Reset()
	for i := 0; i < g.ncmp; i++ {
		g.timer.DisableAlarm(i)
	}
	g.fault.ClearRaw(^uint32(0))
	g.bank.Reset()
}

func (g *GPTimer) Timer() *timer.DynamicTimer { return g.timer }
func (g *GPTimer) Bank() *irq.RequestBank     { return g.bank }
func (g *GPTimer) Clock() *clock.Gate         { return g.gate }

func (g *GPTimer) onTimer(id int) {
	if id == timer.Overflow {
		g.bank.SetRaw(EvOverflow)
		return
	}
	g.bank.SetRaw(1 << (evCompare0 + id))
}

func (g *GPTimer) ReadCKCTL(uint32) uint32  { return g.ctl.Get() }
func (g *GPTimer) PeekCKCTL(uint32) uint32  { return g.ctl.Get() }
func (g *GPTimer) WriteCKCTL(_, val uint32) { g.ctl.Set(val) }

func (g *GPTimer) WriteCTRL(old, val uint32) {
	switch {
	case val&CtrlStart != 0 && old&CtrlStart == 0:
		g.timer.Start()
	case val&CtrlStart == 0 && old&CtrlStart != 0:
		g.timer.Stop()
	}
}

func (g *GPTimer) WriteLOAD(_, val uint32) {
	if uint64(val) >= g.timer.Modulus() {
		log.ModTimer.WarnZ("LOAD beyond modulus").
			String("timer", g.Name).
			Hex32("val", val).
			Uint64("modulus", g.timer.Modulus()).
			End()
		g.fault.SetRaw(FaultUnderrun)
		return
	}
	g.timer.SetCounter(uint64(val))
}

func (g *GPTimer) ReadCOUNT(uint32) uint32 { return uint32(g.timer.Counter()) }
func (g *GPTimer) PeekCOUNT(uint32) uint32 { return uint32(g.timer.Peek()) }

// WriteOVF sets the modulus; 0 selects the full 32-bit range.
func (g *GPTimer) WriteOVF(_, val uint32) {
	if val == 0 {
		g.timer.SetOverflow(timer.DefaultModulus)
		return
	}
	g.timer.SetOverflow(uint64(val))
}

func (g *GPTimer) ReadSTATUS(uint32) uint32 { return g.bank.Raw() }
func (g *GPTimer) PeekSTATUS(uint32) uint32 { return g.bank.Raw() }

// WriteSTATUS clears the events written as 1. The fault aggregate follows
// the FAULT register and is cleared there.
func (g *GPTimer) WriteSTATUS(_, val uint32) {
	g.bank.ClearRaw(val &^ EvFault)
}

func (g *GPTimer) WriteMASK(_, val uint32) { g.bank.SetMask(val) }

func (g *GPTimer) ReadFAULT(uint32) uint32  { return g.fault.Raw() }
func (g *GPTimer) PeekFAULT(uint32) uint32  { return g.fault.Raw() }
func (g *GPTimer) WriteFAULT(_, val uint32) { g.fault.ClearRaw(val) }

func (g *GPTimer) cmpIndex(addr uint32) (int, bool) {
	idx := int(addr-g.base-0x20) / 4
	return idx, idx < g.ncmp
}

func (g *GPTimer) ReadCMP(addr uint32) uint32 {
	idx, ok := g.cmpIndex(addr)
	if !ok {
		return 0
	}
	th, _ := g.timer.Alarm(idx)
	return uint32(th)
}

func (g *GPTimer) PeekCMP(addr uint32) uint32 { return g.ReadCMP(addr) }

func (g *GPTimer) WriteCMP(addr, val uint32) {
	idx, ok := g.cmpIndex(addr)
	if !ok {
		log.ModTimer.ErrorZ("write to missing compare register").
			String("timer", g.Name).
			Hex32("addr", addr).
			End()
		return
	}
	g.timer.SetAlarmThreshold(idx, uint64(val))
}
