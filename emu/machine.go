package emu

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"

	"bbemu/emu/log"
	"bbemu/hw/clock"
	"bbemu/hw/hwerr"
	"bbemu/hw/hwio"
	"bbemu/hw/intc"
	"bbemu/hw/irq"
	"bbemu/hw/periph"
	"bbemu/hw/sched"
)

// Machine is the assembled SoC: clock tree, interrupt arbiter, CPU and
// peripherals, all driven by a single virtual-time scheduler.
//
// The hardware model is single-threaded. Every access from another
// goroutine (bridge, run loop) goes through the machine lock.
type Machine struct {
	mu    sync.Mutex
	vtime atomic.Int64 // mirror of Sched.Now for log contexts

	Sched     *sched.Scheduler
	SysClk    *clock.Source
	PeriphClk *clock.Divider
	SleepClk  *clock.Source

	Lines *intc.LineTable
	Intc  *intc.Arbiter
	CPU   *CPU
	Bus   *hwio.Table

	GPTimers   []*periph.GPTimer
	SoftIRQ    *periph.SoftIRQ
	SleepTimer *periph.SleepTimer
}

// NewMachine assembles a machine from a validated configuration.
func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		Sched:    sched.New(),
		SysClk:   clock.NewSource("sys", cfg.Clock.SysHz),
		SleepClk: clock.NewSource("sleep", cfg.Clock.SleepHz),
		CPU:      newCPU(),
		Bus:      hwio.NewTable("bus"),
	}
	m.PeriphClk = clock.NewDivider("periph", m.SysClk, cfg.Clock.PeriphDiv)

	var err error
	if m.Lines, err = cfg.LineTable(); err != nil {
		return nil, err
	}
	policy, err := intc.PolicyByName(cfg.Intc.Policy)
	if err != nil {
		return nil, err
	}
	m.Intc, err = intc.New("intc", m.Lines, policy, m.CPU.Input(intc.Normal), m.CPU.Input(intc.Fast))
	if err != nil {
		return nil, errors.Wrap(err, "arbiter")
	}
	m.CPU.attach(m.Intc)

	for _, gc := range cfg.GPTimers {
		if err := m.addGPTimer(gc); err != nil {
			return nil, errors.Wrapf(err, "gptimer %s", gc.Name)
		}
	}
	if len(cfg.SoftIRQ.Lines) > 0 {
		if err := m.addSoftIRQ(cfg.SoftIRQ); err != nil {
			return nil, errors.Wrap(err, "softirq")
		}
	}
	if cfg.SleepTimer.Line != "" {
		if err := m.addSleepTimer(cfg.SleepTimer); err != nil {
			return nil, errors.Wrap(err, "sleeptimer")
		}
	}

	log.ModEmu.InfoZ("machine ready").
		Int("lines", m.Lines.Len()).
		Stringer("policy", policy).
		Int("gptimers", len(m.GPTimers)).
		End()
	return m, nil
}

func (m *Machine) port(name string) (intc.LineID, irq.Line) {
	id, ok := m.Lines.Lookup(name)
	if !ok {
		// Validate checked every line name.
		hwerr.Panicf("machine", "unknown line %q", name)
	}
	return id, m.Intc.Port(id)
}

func (m *Machine) addGPTimer(gc GPTimerConfig) error {
	ids := make([]intc.LineID, len(gc.Lines))
	lines := make([]irq.Line, len(gc.Lines))
	for i, name := range gc.Lines {
		ids[i], lines[i] = m.port(name)
	}
	g, err := periph.NewGPTimer(gc.Name, m.Sched, m.PeriphClk, gc.Compares, lines...)
	if err != nil {
		return err
	}
	g.Map(m.Bus, gc.Addr)
	m.GPTimers = append(m.GPTimers, g)

	for i, id := range ids {
		m.CPU.Handle(id, m.gptHandler(gc.Addr, g.LineEvents(i)))
	}
	return nil
}

// gptHandler acknowledges at the timer the events routed to a line.
func (m *Machine) gptHandler(base, events uint32) Handler {
	return func(intc.LineID) {
		st := m.Bus.Read32(base+0x14) & events
		if st&periph.EvFault != 0 {
			m.Bus.Write32(base+0x1C, m.Bus.Read32(base+0x1C))
		}
		m.Bus.Write32(base+0x14, st)
	}
}

func (m *Machine) addSoftIRQ(sc SoftIRQConfig) error {
	ids := make([]intc.LineID, len(sc.Lines))
	lines := make([]irq.Line, len(sc.Lines))
	for i, name := range sc.Lines {
		ids[i], lines[i] = m.port(name)
	}
	s, err := periph.NewSoftIRQ("softirq", lines)
	if err != nil {
		return err
	}
	s.Map(m.Bus, sc.Addr)
	m.SoftIRQ = s

	for i, id := range ids {
		m.CPU.Handle(id, m.clearRequestHandler(sc.Addr+uint32(i)*4))
	}
	return nil
}

func (m *Machine) addSleepTimer(sc SleepTimerConfig) error {
	id, line := m.port(sc.Line)
	st, err := periph.NewSleepTimer("sleeptimer", m.Sched, m.SleepClk, line)
	if err != nil {
		return err
	}
	m.Bus.MapBank(sc.Addr, st)
	m.SleepTimer = st
	m.CPU.Handle(id, m.clearRequestHandler(sc.Addr+0x0C))
	return nil
}

// clearRequestHandler clears the request line register at addr.
func (m *Machine) clearRequestHandler(addr uint32) Handler {
	return func(intc.LineID) {
		m.Bus.Write32(addr, m.Bus.Read32(addr)|irq.LineClear)
	}
}

// Lock acquires the machine lock, serializing accesses to the hardware.
func (m *Machine) Lock()   { m.mu.Lock() }
func (m *Machine) Unlock() { m.mu.Unlock() }

// Now returns the current virtual time, in nanoseconds. It is safe to
// call without holding the lock.
func (m *Machine) Now() int64 { return m.vtime.Load() }

// AddLogContext stamps log entries with the virtual time.
func (m *Machine) AddLogContext(e *log.EntryZ) {
	e.Int64("vtime", m.vtime.Load())
}

// RunFor advances the virtual time by d, servicing interrupts as soon as
// they are raised.
func (m *Machine) RunFor(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.Sched.Now() + int64(d)
	for {
		m.CPU.service()
		next := m.Sched.NextDeadline()
		if next > end {
			break
		}
		m.Sched.RunUntil(next)
		m.vtime.Store(m.Sched.Now())
	}
	m.Sched.RunUntil(end)
	m.vtime.Store(m.Sched.Now())
}

// InjectLevel drives line id from outside the machine, as a peripheral
// would. The class overrides the class of the line.
func (m *Machine) InjectLevel(id intc.LineID, class intc.Class, level uint8) error {
	if id < 0 || int(id) >= m.Lines.Len() {
		return errors.Errorf("line %d out of range [0,%d)", id, m.Lines.Len())
	}
	if class >= intc.NumClasses {
		return errors.Errorf("invalid class %d", class)
	}
	spec := m.Lines.Spec(id)
	prio := spec.Priority
	if spec.Dynamic && level != irq.Low {
		prio = level - 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Intc.SetLevel(id, class, prio, spec.Weight, level != irq.Low)
	m.CPU.service()
	return nil
}

// Reset puts every component back in its reset state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range m.GPTimers {
		g.Reset()
	}
	if m.SoftIRQ != nil {
		m.SoftIRQ.Reset()
	}
	if m.SleepTimer != nil {
		m.SleepTimer.Reset()
	}
	m.Intc.Reset()
	m.CPU.Reset()
	log.ModEmu.InfoZ("machine reset").End()
}

// LineTable returns the arbiter line table. It is immutable once the
// machine is built and may be used without holding the lock.
func (m *Machine) LineTable() *intc.LineTable { return m.Lines }
