package periph

import (
	"bbemu/hw/clock"
	"bbemu/hw/hwerr"
	"bbemu/hw/hwio"
	"bbemu/hw/irq"
	"bbemu/hw/sched"
	"bbemu/hw/timer"
)

// SleepClockHz is the frequency of the always-on sleep clock.
const SleepClockHz = 32768

// SleepTimer is the wakeup timer of the sleep clock domain: a 32-bit
// counter with a single wakeup threshold, requesting an interrupt through
// its own request line register.
type SleepTimer struct {
	Name string

	CTRL  hwio.Reg32 `hwio:"offset=0x00,rwmask=0x1,wcb"`
	WAKE  hwio.Reg32 `hwio:"offset=0x04,wcb"`
	COUNT hwio.Reg32 `hwio:"offset=0x08,readonly,rcb,pcb"`
	REQ   hwio.Reg32 `hwio:"offset=0x0C,rcb,pcb,wcb"`

	timer *timer.DynamicTimer
	req   *irq.RequestLine
}

// NewSleepTimer returns a stopped sleep timer counting at the frequency of
// clk, requesting its wakeup interrupt on line.
func NewSleepTimer(name string, s *sched.Scheduler, clk clock.Node, line irq.Line) (*SleepTimer, error) {
	if clk == nil {
		return nil, hwerr.Configf(name, "sleep timer without clock")
	}
	st := &SleepTimer{Name: name, req: irq.NewRequestLine(name, line)}
	hwio.MustInitRegs(st)

	var err error
	st.timer, err = timer.New(name, s, 1, st.onTimer)
	if err != nil {
		return nil, err
	}
	st.timer.SetFrequency(clk.Freq())
	clk.OnFrequencyChange(st.timer.SetFrequency)
	return st, nil
}

func (st *SleepTimer) Timer() *timer.DynamicTimer { return st.timer }
func (st *SleepTimer) Request() *irq.RequestLine  { return st.req }

// Reset stops the counter and clears the request.
func (st *SleepTimer) Reset() {
	hwio.MustInitRegs(st)
	st.timer.Stop()
	st.timer.Reset()
	st.timer.DisableAlarm(0)
	st.req.Set(0)
}

func (st *SleepTimer) onTimer(id int) {
	if id == 0 {
		st.req.Assert()
	}
}

func (st *SleepTimer) WriteCTRL(old, val uint32) {
	switch {
	case val&CtrlStart != 0 && old&CtrlStart == 0:
		st.timer.Start()
	case val&CtrlStart == 0 && old&CtrlStart != 0:
		st.timer.Stop()
	}
}

func (st *SleepTimer) WriteWAKE(_, val uint32) {
	st.timer.SetAlarmThreshold(0, uint64(val))
}

func (st *SleepTimer) ReadCOUNT(uint32) uint32 { return uint32(st.timer.Counter()) }
func (st *SleepTimer) PeekCOUNT(uint32) uint32 { return uint32(st.timer.Peek()) }

func (st *SleepTimer) ReadREQ(uint32) uint32  { return st.req.Get() }
func (st *SleepTimer) PeekREQ(uint32) uint32  { return st.req.Get() }
func (st *SleepTimer) WriteREQ(_, val uint32) { st.req.Set(val) }
