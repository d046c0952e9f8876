package periph

import (
	"testing"
	"time"

	"bbemu/hw/clock"
	"bbemu/hw/hwio"
	"bbemu/hw/irq"
	"bbemu/hw/sched"
)

const sleepBase = 0x3000

func TestSleepTimerWakeup(t *testing.T) {
	s := sched.New()
	clk := clock.NewSource("sleepclk", SleepClockHz)
	p := &probe{}
	st, err := NewSleepTimer("sleep", s, clk, p)
	if err != nil {
		t.Fatal(err)
	}
	bus := hwio.NewTable("bus")
	bus.MapBank(sleepBase, st)

	bus.Write32(sleepBase+0x0C, irq.LineEnable|1<<irq.LinePrioShift)
	bus.Write32(sleepBase+0x04, SleepClockHz)
	bus.Write32(sleepBase+0x00, CtrlStart)

	s.RunFor(999 * time.Millisecond)
	p.wantLevel(t, irq.Low)
	s.RunFor(time.Millisecond)
	p.wantLevel(t, 2)
	wantRead32(t, bus, sleepBase+0x08, SleepClockHz)
	wantRead32(t, bus, sleepBase+0x0C, irq.LinePending|irq.LineEnable|1<<irq.LinePrioShift)

	bus.Write32(sleepBase+0x0C, irq.LineEnable|irq.LineClear|1<<irq.LinePrioShift)
	p.wantLevel(t, irq.Low)

	// Halving the sleep clock halves the count rate.
	clk.SetFreq(SleepClockHz / 2)
	s.RunFor(time.Second)
	wantRead32(t, bus, sleepBase+0x08, SleepClockHz+SleepClockHz/2)

	bus.Write32(sleepBase+0x00, 0)
	s.RunFor(time.Second)
	wantRead32(t, bus, sleepBase+0x08, SleepClockHz+SleepClockHz/2)

	st.Reset()
	wantRead32(t, bus, sleepBase+0x08, 0)
	if st.Timer().Running() {
		t.Errorf("running after reset")
	}
}
