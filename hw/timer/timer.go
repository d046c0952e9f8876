// Package timer implements DynamicTimer, the virtual free-running counter
// shared by every hardware timer model.
//
// A DynamicTimer counts at a configurable frequency, wraps around at a
// configurable modulus and has a fixed number of alarm thresholds. Rather
// than being ticked, it computes the virtual instant of its next alarm or
// overflow and arms a scheduler event for exactly that instant. Every
// mutation folds the elapsed time into the counter base first, so that
// changes of frequency, start and stop never make the counter drift.
package timer

import (
	"math"
	"math/bits"

	"bbemu/emu/log"
	"bbemu/hw/hwerr"
	"bbemu/hw/sched"
)

// Overflow is the id passed to the callback when the counter wraps around.
const Overflow = -1

// Disabled is the threshold of an alarm that never fires.
const Disabled = math.MaxUint64

// DefaultModulus is the modulus of a new timer: a 32-bit counter.
const DefaultModulus = 1 << 32

const nsPerSec = 1_000_000_000

// Callback is called with the id of each alarm that fires, or Overflow.
type Callback func(id int)

type alarm struct {
	threshold uint64
	fired     bool
}

type DynamicTimer struct {
	name  string
	sched *sched.Scheduler
	ev    *sched.Event
	cb    Callback

	freq    uint64
	running bool
	modulus uint64
	alarms  []alarm

	// counter(now) = base + ticks since baseTS - wrapped
	base    uint64
	baseTS  int64
	wrapped uint64

	ticking bool
}

// New returns a stopped timer at 0 Hz, with nalarms disabled alarms.
func New(name string, s *sched.Scheduler, nalarms int, cb Callback) (*DynamicTimer, error) {
	if s == nil {
		return nil, hwerr.Configf(name, "timer without scheduler")
	}
	if cb == nil {
		return nil, hwerr.Configf(name, "timer without callback")
	}
	if nalarms < 0 {
		return nil, hwerr.Configf(name, "negative alarm count %d", nalarms)
	}

	t := &DynamicTimer{
		name:    name,
		sched:   s,
		cb:      cb,
		modulus: DefaultModulus,
		alarms:  make([]alarm, nalarms),
		baseTS:  s.Now(),
	}
	for i := range t.alarms {
		t.alarms[i].threshold = Disabled
	}
	t.ev = s.NewEvent(name, t.Tick)
	return t, nil
}

func (t *DynamicTimer) Name() string    { return t.name }
func (t *DynamicTimer) Freq() uint64    { return t.freq }
func (t *DynamicTimer) Running() bool   { return t.running }
func (t *DynamicTimer) Modulus() uint64 { return t.modulus }
func (t *DynamicTimer) NumAlarms() int  { return len(t.alarms) }

// Alarm returns the threshold of alarm id and whether it fired during the
// current counting cycle.
func (t *DynamicTimer) Alarm(id int) (threshold uint64, fired bool) {
	a := t.alarm(id)
	return a.threshold, a.fired
}

func (t *DynamicTimer) alarm(id int) *alarm {
	if id < 0 || id >= len(t.alarms) {
		hwerr.Panicf(t.name, "alarm %d out of range [0,%d)", id, len(t.alarms))
	}
	return &t.alarms[id]
}

// ticks returns the number of ticks counted since baseTS.
func (t *DynamicTimer) ticks(now int64) uint64 {
	if !t.running || t.freq == 0 || now <= t.baseTS {
		return 0
	}
	hi, lo := bits.Mul64(uint64(now-t.baseTS), t.freq)
	if hi >= nsPerSec {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, nsPerSec)
	return q
}

// raw returns the counter before wraparound is applied.
func (t *DynamicTimer) raw(now int64) uint64 {
	return t.base + t.ticks(now) - t.wrapped
}

// timeTo returns the delay from now until the counter reaches target, which
// must be above the current counter.
func (t *DynamicTimer) timeTo(now int64, target uint64) (int64, bool) {
	need := target + t.wrapped - t.base // ticks to count since baseTS
	hi, lo := bits.Mul64(need, nsPerSec)
	lo, carry := bits.Add64(lo, t.freq-1, 0)
	hi += carry
	if hi >= t.freq {
		return 0, false
	}
	ns, _ := bits.Div64(hi, lo, t.freq)
	if ns > math.MaxInt64-uint64(t.baseTS) {
		return 0, false
	}
	return max(t.baseTS+int64(ns)-now, 0), true
}

func (t *DynamicTimer) rebase(now int64, counter uint64) {
	t.base = counter
	t.baseTS = now
	t.wrapped = 0
}

// Counter returns the current counter value. Alarms and overflow due at
// the current time fire first, so the value is always below the modulus.
func (t *DynamicTimer) Counter() uint64 {
	now := t.sched.Now()
	t.settle(now)
	return t.raw(now)
}

// Peek returns the counter value Counter would return, without firing
// anything.
func (t *DynamicTimer) Peek() uint64 {
	c := t.raw(t.sched.Now())
	if c >= t.modulus {
		c %= t.modulus
	}
	return c
}

// due reports whether an alarm or the overflow is owed at now.
func (t *DynamicTimer) due(now int64) bool {
	c := t.raw(now)
	if c >= t.modulus {
		return true
	}
	for i := range t.alarms {
		a := &t.alarms[i]
		if !a.fired && a.threshold <= c {
			return true
		}
	}
	return false
}

func (t *DynamicTimer) settle(now int64) {
	if !t.ticking && t.due(now) {
		t.Tick()
	}
}

// update fires what is due and re-arms the scheduler after a mutation.
func (t *DynamicTimer) update() {
	if t.ticking {
		// Tick re-arms once the callbacks return.
		return
	}
	now := t.sched.Now()
	if t.due(now) {
		t.Tick()
		return
	}
	t.rearm(now)
}

func (t *DynamicTimer) Start() {
	if t.running {
		return
	}
	t.baseTS = t.sched.Now()
	t.running = true
	log.ModTimer.DebugZ("start").String("timer", t.name).Uint64("counter", t.base-t.wrapped).End()
	t.update()
}

// Stop freezes the counter. A later Start resumes from the frozen value.
func (t *DynamicTimer) Stop() {
	if !t.running {
		return
	}
	now := t.sched.Now()
	t.settle(now)
	t.rebase(now, t.raw(now))
	t.running = false
	t.ev.Cancel()
	log.ModTimer.DebugZ("stop").String("timer", t.name).Uint64("counter", t.base).End()
}

// Reset sets the counter to 0 and rearms every alarm.
func (t *DynamicTimer) Reset() {
	t.rebase(t.sched.Now(), 0)
	for i := range t.alarms {
		t.alarms[i].fired = false
	}
	t.update()
}

// SetFrequency changes the counting rate. Events due under the previous
// rate fire first. A frequency of 0 freezes the counter.
func (t *DynamicTimer) SetFrequency(hz uint64) {
	now := t.sched.Now()
	t.settle(now)
	t.rebase(now, t.raw(now))
	t.freq = hz

	log.ModTimer.DebugZ("set frequency").
		String("timer", t.name).
		Uint64("hz", hz).
		Uint64("counter", t.base).
		End()
	t.update()
}

// SetOverflow sets the wraparound modulus. A counter above the new modulus
// is clamped to it, so the overflow fires right away.
func (t *DynamicTimer) SetOverflow(modulus uint64) {
	if modulus == 0 {
		hwerr.Panicf(t.name, "zero overflow modulus")
	}
	now := t.sched.Now()
	if c := t.raw(now); c > modulus {
		t.rebase(now, modulus)
	}
	t.modulus = modulus
	t.update()
}

// SetCounter loads the counter. Alarms at or below v count as fired for
// the current cycle.
func (t *DynamicTimer) SetCounter(v uint64) {
	now := t.sched.Now()
	t.rebase(now, min(v, t.modulus))
	for i := range t.alarms {
		t.alarms[i].fired = t.alarms[i].threshold <= v
	}
	t.update()
}

// SetAlarmThreshold sets the threshold of alarm id. If the counter already
// reached it, the alarm is considered fired until the next wraparound.
func (t *DynamicTimer) SetAlarmThreshold(id int, threshold uint64) {
	a := t.alarm(id)
	now := t.sched.Now()
	t.settle(now)
	a.threshold = threshold
	a.fired = t.raw(now) >= threshold
	t.update()
}

// DisableAlarm prevents alarm id from firing.
func (t *DynamicTimer) DisableAlarm(id int) {
	t.SetAlarmThreshold(id, Disabled)
}

func (t *DynamicTimer) fireAlarms(now int64) {
	for i := range t.alarms {
		a := &t.alarms[i]
		if a.fired || a.threshold >= t.modulus || a.threshold > t.raw(now) {
			continue
		}
		a.fired = true
		log.ModTimer.DebugZ("alarm").String("timer", t.name).Int("id", i).End()
		t.cb(i)
	}
}

// Tick is the scheduling pass: it fires every alarm reached and the
// overflow, then arms the scheduler for the next of them.
func (t *DynamicTimer) Tick() {
	now := t.sched.Now()
	t.ticking = true

	t.fireAlarms(now)
	if c := t.raw(now); c >= t.modulus {
		t.wrapped += c / t.modulus * t.modulus
		for i := range t.alarms {
			t.alarms[i].fired = false
		}
		log.ModTimer.DebugZ("overflow").String("timer", t.name).End()
		t.cb(Overflow)

		// Alarms right at the wrap boundary fire in the same pass.
		t.fireAlarms(now)
	}

	t.ticking = false
	t.rearm(now)
}

// NextDeadline returns the delay from now to the next alarm or overflow.
// ok is false when the timer is stopped or nothing can fire.
func (t *DynamicTimer) NextDeadline() (d int64, ok bool) {
	return t.nextDeadline(t.sched.Now())
}

func (t *DynamicTimer) nextDeadline(now int64) (int64, bool) {
	if !t.running || t.freq == 0 {
		return 0, false
	}
	c := t.raw(now)

	best, found := int64(0), false
	consider := func(target uint64) {
		if target <= c {
			// Already reached, owed right now.
			best, found = 0, true
			return
		}
		if d, ok := t.timeTo(now, target); ok && (!found || d < best) {
			best, found = d, true
		}
	}

	consider(t.modulus)
	for i := range t.alarms {
		a := &t.alarms[i]
		if !a.fired && a.threshold < t.modulus {
			consider(a.threshold)
		}
	}
	return best, found
}

func (t *DynamicTimer) rearm(now int64) {
	d, ok := t.nextDeadline(now)
	if !ok {
		t.ev.Cancel()
		return
	}
	t.ev.Schedule(now + d)
}
