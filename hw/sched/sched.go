// Package sched provides the virtual clock driving the emulation, and the
// event queue hardware models use to be called back at a virtual instant.
//
// Time is expressed in nanoseconds of virtual time since power-up. Nothing
// here is tied to wall-clock time.
package sched

import (
	"container/heap"
	"math"
	"time"

	"bbemu/emu/log"
)

// Never is the deadline of an event that is not scheduled.
const Never = math.MaxInt64

// Scheduler owns the virtual clock and the queue of pending events. It is
// not safe for concurrent use.
type Scheduler struct {
	now   int64
	seq   uint64
	queue eventQueue
}

func New() *Scheduler {
	return &Scheduler{}
}

// Now returns the current virtual time in nanoseconds.
func (s *Scheduler) Now() int64 { return s.now }

// NewEvent creates an unscheduled event which calls fn when it fires.
func (s *Scheduler) NewEvent(name string, fn func()) *Event {
	return &Event{name: name, fn: fn, sched: s, index: -1, at: Never}
}

// NextDeadline returns the time of the earliest scheduled event, or Never.
func (s *Scheduler) NextDeadline() int64 {
	if len(s.queue) == 0 {
		return Never
	}
	return s.queue[0].at
}

// RunUntil fires, in order, every event scheduled at or before t, and then
// sets the clock to t. Events fired may schedule other events, which are
// fired too if due before t. Time never goes backward: RunUntil with t
// before Now only fires events already due.
func (s *Scheduler) RunUntil(t int64) {
	for len(s.queue) > 0 && s.queue[0].at <= t {
		ev := heap.Pop(&s.queue).(*Event)
		if ev.at > s.now {
			s.now = ev.at
		}
		ev.at = Never
		log.ModSched.DebugZ("fire").
			String("event", ev.name).
			Int64("now", s.now).
			End()
		ev.fn()
	}
	if t > s.now {
		s.now = t
	}
}

// RunFor advances the clock by d.
func (s *Scheduler) RunFor(d time.Duration) {
	s.RunUntil(s.now + int64(d))
}

// Step fires the next scheduled event, moving the clock to its deadline.
// It returns false if no event is scheduled.
func (s *Scheduler) Step() bool {
	if len(s.queue) == 0 {
		return false
	}
	s.RunUntil(s.queue[0].at)
	return true
}

// An Event is a callback scheduled on the virtual clock. Rescheduling an
// event replaces its previous deadline.
type Event struct {
	name  string
	fn    func()
	sched *Scheduler

	at    int64
	seq   uint64
	index int // in queue, -1 if not scheduled
}

func (ev *Event) Name() string { return ev.name }

// Schedule arms the event to fire at absolute virtual time at. A deadline
// in the past fires at the next RunUntil.
func (ev *Event) Schedule(at int64) {
	s := ev.sched
	s.seq++
	ev.at = at
	ev.seq = s.seq
	if ev.index >= 0 {
		heap.Fix(&s.queue, ev.index)
		return
	}
	heap.Push(&s.queue, ev)
}

// ScheduleIn arms the event to fire d nanoseconds from now.
func (ev *Event) ScheduleIn(d int64) {
	ev.Schedule(ev.sched.now + d)
}

// Cancel disarms the event. It is a no-op on an unscheduled event.
func (ev *Event) Cancel() {
	if ev.index >= 0 {
		heap.Remove(&ev.sched.queue, ev.index)
	}
	ev.at = Never
}

// Pending reports whether the event is scheduled.
func (ev *Event) Pending() bool { return ev.index >= 0 }

// Deadline returns the time the event is scheduled at, or Never.
func (ev *Event) Deadline() int64 { return ev.at }

// eventQueue is a min-heap ordered by (deadline, scheduling order).
type eventQueue []*Event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*Event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}
