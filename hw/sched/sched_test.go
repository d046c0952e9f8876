package sched

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSchedulerOrder(t *testing.T) {
	s := New()
	var fired []string
	mk := func(name string) *Event {
		return s.NewEvent(name, func() { fired = append(fired, name) })
	}

	a, b, c, d := mk("a"), mk("b"), mk("c"), mk("d")
	c.Schedule(300)
	a.Schedule(100)
	b.Schedule(200)
	d.Schedule(200) // same deadline as b, scheduled later

	s.RunUntil(250)
	if diff := cmp.Diff([]string{"a", "b", "d"}, fired); diff != "" {
		t.Fatalf("fired events mismatch (-want +got):\n%s", diff)
	}
	if s.Now() != 250 {
		t.Errorf("Now() = %d, want 250", s.Now())
	}
	if !c.Pending() || c.Deadline() != 300 {
		t.Errorf("c pending=%t deadline=%d", c.Pending(), c.Deadline())
	}
	if a.Pending() {
		t.Errorf("a still pending after firing")
	}
}

func TestSchedulerReschedule(t *testing.T) {
	s := New()
	n := 0
	ev := s.NewEvent("ev", func() { n++ })

	ev.Schedule(1000)
	ev.Schedule(500)
	s.RunUntil(600)
	if n != 1 {
		t.Fatalf("fired %d times, want 1", n)
	}

	ev.ScheduleIn(100)
	ev.Cancel()
	s.RunFor(time.Microsecond)
	if n != 1 {
		t.Fatalf("cancelled event fired")
	}
	if s.NextDeadline() != Never {
		t.Errorf("NextDeadline() = %d, want Never", s.NextDeadline())
	}
}

func TestSchedulerChained(t *testing.T) {
	s := New()
	var times []int64
	var ev *Event
	ev = s.NewEvent("periodic", func() {
		times = append(times, s.Now())
		if len(times) < 4 {
			ev.ScheduleIn(10)
		}
	})
	ev.Schedule(10)

	s.RunUntil(35)
	if diff := cmp.Diff([]int64{10, 20, 30}, times); diff != "" {
		t.Fatalf("fire times mismatch (-want +got):\n%s", diff)
	}
	if !s.Step() {
		t.Fatalf("Step() = false with a pending event")
	}
	if s.Now() != 40 {
		t.Errorf("Now() = %d after Step, want 40", s.Now())
	}
	if s.Step() {
		t.Errorf("Step() = true with an empty queue")
	}
}

func TestSchedulerPastDeadline(t *testing.T) {
	s := New()
	s.RunUntil(100)
	fired := false
	ev := s.NewEvent("late", func() { fired = true })
	ev.Schedule(50)
	s.RunUntil(100)
	if !fired {
		t.Fatalf("past deadline not fired")
	}
	if s.Now() != 100 {
		t.Errorf("clock moved backward to %d", s.Now())
	}
}
