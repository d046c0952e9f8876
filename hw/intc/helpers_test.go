package intc

import (
	"fmt"
	"testing"

	"bbemu/hw/irq"
)

// output records the levels driven on a class output.
type output struct {
	levels []uint8
}

func (o *output) SetLevel(level uint8) { o.levels = append(o.levels, level) }

func (o *output) high() bool {
	return len(o.levels) > 0 && o.levels[len(o.levels)-1] != irq.Low
}

type testArbiter struct {
	*Arbiter
	tb  testing.TB
	out [NumClasses]*output
}

// newTestArbiter builds an arbiter with one line per priority, all in the
// normal class unless classes is given.
func newTestArbiter(tb testing.TB, policy Policy, prios []uint8, classes ...Class) *testArbiter {
	tb.Helper()

	table := NewLineTable()
	for i, p := range prios {
		spec := LineSpec{Name: fmt.Sprintf("L%d", i), Priority: p}
		if i < len(classes) {
			spec.Class = classes[i]
		}
		if _, err := table.Add(spec); err != nil {
			tb.Fatal(err)
		}
	}
	ta := &testArbiter{tb: tb, out: [NumClasses]*output{{}, {}}}
	arb, err := New("intc", table, policy, ta.out[Normal], ta.out[Fast])
	if err != nil {
		tb.Fatal(err)
	}
	ta.Arbiter = arb
	return ta
}

// raise drives the inputs of ids high, lower drives them low.
func (ta *testArbiter) raise(ids ...LineID) {
	for _, id := range ids {
		ta.Port(id).SetLevel(irq.High)
	}
}

func (ta *testArbiter) lower(ids ...LineID) {
	for _, id := range ids {
		ta.Port(id).SetLevel(irq.Low)
	}
}

func (ta *testArbiter) wantSelected(c Class, want LineID) {
	ta.tb.Helper()
	if got := ta.Selected(c); got != want {
		ta.tb.Fatalf("Selected(%s) = %d, want %d", c, got, want)
	}
}

func (ta *testArbiter) claimAck(c Class) LineID {
	ta.tb.Helper()
	id, ok := ta.Claim(c)
	if !ok {
		ta.tb.Fatalf("Claim(%s) on idle class", c)
	}
	ta.Ack(c)
	return id
}
