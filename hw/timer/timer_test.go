package timer

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bbemu/hw/hwerr"
	"bbemu/hw/sched"
)

type recorder struct {
	s     *sched.Scheduler
	fired []int
	when  []int64
}

func (r *recorder) cb(id int) {
	r.fired = append(r.fired, id)
	r.when = append(r.when, r.s.Now())
}

func newTestTimer(tb testing.TB, nalarms int) (*DynamicTimer, *recorder) {
	tb.Helper()
	s := sched.New()
	r := &recorder{s: s}
	t, err := New("test", s, nalarms, r.cb)
	if err != nil {
		tb.Fatal(err)
	}
	return t, r
}

func TestTimerAlarmAndOverflow(t *testing.T) {
	tm, r := newTestTimer(t, 1)
	tm.SetFrequency(1000)
	tm.SetOverflow(1000)
	tm.SetAlarmThreshold(0, 500)
	tm.Start()

	if d, ok := tm.NextDeadline(); !ok || d != 500*int64(time.Millisecond) {
		t.Fatalf("NextDeadline = %d,%t, want 500ms", d, ok)
	}

	tm.sched.RunUntil(500_500_000)
	if diff := cmp.Diff([]int{0}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
	if r.when[0] != 500_000_000 {
		t.Errorf("alarm fired at %d, want 500ms", r.when[0])
	}
	if c := tm.Counter(); c != 500 {
		t.Errorf("Counter = %d, want 500", c)
	}

	tm.sched.RunUntil(1_000_000_000)
	if diff := cmp.Diff([]int{0, Overflow}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
	if c := tm.Counter(); c != 0 {
		t.Errorf("Counter after overflow = %d, want 0", c)
	}

	// The alarm rearms on wraparound.
	tm.sched.RunUntil(1_500_000_000)
	if diff := cmp.Diff([]int{0, Overflow, 0}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
}

func TestTimerNextDeadlineRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewPCG(7, 7))
	for range 200 {
		tm, r := newTestTimer(t, 1)
		freq := uint64(rnd.IntN(50_000_000) + 1)
		tm.SetFrequency(freq)
		tm.SetOverflow(uint64(rnd.IntN(1<<20) + 2))
		tm.SetAlarmThreshold(0, uint64(rnd.IntN(int(tm.Modulus()-1))+1))
		tm.sched.RunFor(time.Duration(rnd.IntN(1000)))
		tm.Start()

		d, ok := tm.NextDeadline()
		if !ok {
			t.Fatalf("no deadline for running timer")
		}
		target := tm.sched.Now() + d
		if d > 0 {
			tm.sched.RunUntil(target - 1)
			if len(r.fired) != 0 {
				t.Fatalf("freq=%d: fired %v before deadline %d", freq, r.fired, target)
			}
		}
		tm.sched.RunUntil(target)
		if len(r.fired) == 0 {
			t.Fatalf("freq=%d: nothing fired at deadline %d", freq, target)
		}
	}
}

func TestTimerFrequencyChange(t *testing.T) {
	tm, _ := newTestTimer(t, 0)
	tm.SetFrequency(1000)
	tm.Start()

	tm.sched.RunFor(100 * time.Millisecond)
	if c := tm.Counter(); c != 100 {
		t.Fatalf("Counter = %d, want 100", c)
	}

	tm.SetFrequency(10)
	if c := tm.Counter(); c != 100 {
		t.Fatalf("Counter jumped to %d on frequency change", c)
	}
	tm.sched.RunFor(time.Second)
	if c := tm.Counter(); c != 110 {
		t.Errorf("Counter = %d, want 110", c)
	}

	tm.SetFrequency(0)
	tm.sched.RunFor(time.Hour)
	if c := tm.Counter(); c != 110 {
		t.Errorf("Counter moved at 0 Hz: %d", c)
	}
	if _, ok := tm.NextDeadline(); ok {
		t.Errorf("deadline armed at 0 Hz")
	}
}

func TestTimerMonotonic(t *testing.T) {
	tm, _ := newTestTimer(t, 0)
	tm.Start()
	rnd := rand.New(rand.NewPCG(1, 1))

	last := uint64(0)
	for range 1000 {
		tm.SetFrequency(uint64(rnd.IntN(3_000_000)))
		tm.sched.RunFor(time.Duration(rnd.IntN(10_000)))
		c := tm.Counter()
		if c < last {
			t.Fatalf("counter went backward: %d -> %d", last, c)
		}
		last = c
	}
}

func TestTimerStopStart(t *testing.T) {
	tm, _ := newTestTimer(t, 0)
	tm.SetFrequency(1000)
	tm.Start()

	for range 10 {
		tm.sched.RunFor(250 * time.Millisecond)
		tm.Stop()
		tm.sched.RunFor(time.Second)
		tm.Start()
	}
	if c := tm.Counter(); c != 2500 {
		t.Errorf("Counter = %d, want 2500", c)
	}

	tm.Stop()
	tm.sched.RunFor(time.Minute)
	if c := tm.Counter(); c != 2500 {
		t.Errorf("counter moved while stopped: %d", c)
	}
	if tm.Running() {
		t.Errorf("Running() after Stop")
	}
}

func TestTimerNoDrift(t *testing.T) {
	tm, r := newTestTimer(t, 0)
	tm.SetFrequency(32768)
	tm.SetOverflow(32768)
	tm.Start()

	tm.sched.RunFor(100 * time.Second)
	if len(r.fired) != 100 {
		t.Fatalf("%d overflows in 100s, want 100", len(r.fired))
	}
	for i, at := range r.when {
		if want := int64(i+1) * int64(time.Second); at != want {
			t.Fatalf("overflow %d at %d, want %d", i, at, want)
		}
	}
}

func TestTimerOverflowClamp(t *testing.T) {
	tm, r := newTestTimer(t, 0)
	tm.SetFrequency(1000)
	tm.Start()
	tm.sched.RunFor(time.Second)

	tm.SetOverflow(500)
	if diff := cmp.Diff([]int{Overflow}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
	if c := tm.Counter(); c != 0 {
		t.Errorf("Counter = %d, want 0", c)
	}

	// Growing the modulus does not touch the counter.
	tm.sched.RunFor(100 * time.Millisecond)
	tm.SetOverflow(1 << 20)
	if c := tm.Counter(); c != 100 {
		t.Errorf("Counter = %d, want 100", c)
	}
}

func TestTimerLatePass(t *testing.T) {
	tm, r := newTestTimer(t, 2)
	tm.SetFrequency(1000)
	tm.SetOverflow(100)
	tm.SetAlarmThreshold(0, 50)
	tm.SetAlarmThreshold(1, 20)
	tm.Start()

	// Counter jumps from 0 to 130 in a single pass.
	tm.baseTS -= 130 * int64(time.Millisecond)
	tm.Tick()
	if diff := cmp.Diff([]int{0, 1, Overflow, 1}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
	if c := tm.Counter(); c != 30 {
		t.Errorf("Counter = %d, want 30", c)
	}
}

func TestTimerPeek(t *testing.T) {
	tm, r := newTestTimer(t, 1)
	tm.SetFrequency(1000)
	tm.SetOverflow(100)
	tm.SetAlarmThreshold(0, 50)
	tm.Start()

	// Alarm and overflow are owed but no scheduling pass ran yet.
	tm.baseTS -= 130 * int64(time.Millisecond)
	if c := tm.Peek(); c != 30 {
		t.Errorf("Peek = %d, want 30", c)
	}
	if len(r.fired) != 0 {
		t.Fatalf("Peek fired %v", r.fired)
	}
	if c := tm.Counter(); c != 30 {
		t.Errorf("Counter = %d, want 30", c)
	}
	if diff := cmp.Diff([]int{0, Overflow}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
}

func TestTimerAlarmAlreadyPassed(t *testing.T) {
	tm, r := newTestTimer(t, 1)
	tm.SetFrequency(1000)
	tm.Start()
	tm.sched.RunFor(300 * time.Millisecond)

	tm.SetAlarmThreshold(0, 200)
	if _, fired := tm.Alarm(0); !fired {
		t.Errorf("alarm behind the counter not marked fired")
	}
	tm.sched.RunFor(time.Second)
	if len(r.fired) != 0 {
		t.Errorf("passed alarm fired: %v", r.fired)
	}

	tm.SetAlarmThreshold(0, 2000)
	tm.sched.RunFor(time.Second)
	if diff := cmp.Diff([]int{0}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}

	tm.DisableAlarm(0)
	tm.SetCounter(0)
	tm.sched.RunFor(10 * time.Second)
	if len(r.fired) != 1 {
		t.Errorf("disabled alarm fired: %v", r.fired)
	}
}

func TestTimerSetCounter(t *testing.T) {
	tm, r := newTestTimer(t, 1)
	tm.SetFrequency(1000)
	tm.SetOverflow(1000)
	tm.SetAlarmThreshold(0, 400)
	tm.SetCounter(900)
	tm.Start()

	tm.sched.RunFor(100 * time.Millisecond)
	if diff := cmp.Diff([]int{Overflow}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
	tm.sched.RunFor(400 * time.Millisecond)
	if diff := cmp.Diff([]int{Overflow, 0}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
}

func TestTimerReset(t *testing.T) {
	tm, r := newTestTimer(t, 1)
	tm.SetFrequency(1000)
	tm.SetAlarmThreshold(0, 100)
	tm.Start()
	tm.sched.RunFor(200 * time.Millisecond)
	if len(r.fired) != 1 {
		t.Fatalf("fired %v", r.fired)
	}

	tm.Reset()
	if c := tm.Counter(); c != 0 {
		t.Errorf("Counter after Reset = %d", c)
	}
	tm.sched.RunFor(100 * time.Millisecond)
	if diff := cmp.Diff([]int{0, 0}, r.fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
}

func TestTimerCallbackReentry(t *testing.T) {
	s := sched.New()
	var tm *DynamicTimer
	var fired []int
	tm, _ = New("reentry", s, 1, func(id int) {
		fired = append(fired, id)
		if id == 0 {
			// Move the alarm forward from inside the callback.
			th, _ := tm.Alarm(0)
			tm.SetAlarmThreshold(0, th+10)
		}
	})
	tm.SetFrequency(1000)
	tm.SetOverflow(35)
	tm.SetAlarmThreshold(0, 10)
	tm.Start()

	s.RunFor(35 * time.Millisecond)
	if diff := cmp.Diff([]int{0, 0, 0, Overflow}, fired); diff != "" {
		t.Fatalf("fired mismatch (-want +got):\n%s", diff)
	}
}

func TestTimerErrors(t *testing.T) {
	s := sched.New()
	if _, err := New("x", nil, 1, func(int) {}); !hwerr.IsConfig(err) {
		t.Errorf("nil scheduler: err = %v", err)
	}
	if _, err := New("x", s, 1, nil); !hwerr.IsConfig(err) {
		t.Errorf("nil callback: err = %v", err)
	}

	tm, _ := newTestTimer(t, 2)
	for _, tc := range []struct {
		name string
		fn   func()
	}{
		{"zero modulus", func() { tm.SetOverflow(0) }},
		{"alarm out of range", func() { tm.SetAlarmThreshold(2, 1) }},
		{"negative alarm", func() { tm.Alarm(-1) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if _, ok := recover().(*hwerr.ProgrammingError); !ok {
					t.Errorf("expected ProgrammingError panic")
				}
			}()
			tc.fn()
		})
	}
}
