package hwio

import (
	"math/rand/v2"
	"testing"
)

func TestBitset(t *testing.T) {
	const n = 170
	b := NewBitset(n)
	for i := range uint(n) {
		if b.Test(i) {
			t.Fatalf("Bit %d is set", i)
		}
	}

	for i := range uint(n) {
		b.Set(i)
		if !b.Test(i) {
			t.Fatalf("Bit %d is not set", i)
		}
		b.Clear(i)
		if b.Test(i) {
			t.Fatalf("Bit %d is set", i)
		}
	}
	if b.Len() != n {
		t.Errorf("Len() = %d, want %d", b.Len(), n)
	}
}

func TestBitsetEach(t *testing.T) {
	const n = 256
	for range 200 {
		b := NewBitset(n)
		want := map[uint]bool{}
		for range rand.IntN(40) {
			i := rand.UintN(n)
			b.Set(i)
			want[i] = true
		}

		var prev int = -1
		got := 0
		b.Each(func(i uint) {
			if int(i) <= prev {
				t.Fatalf("Each not increasing: %d after %d", i, prev)
			}
			if !want[i] {
				t.Fatalf("Each yielded unset bit %d", i)
			}
			prev = int(i)
			got++
		})
		if got != len(want) || b.Count() != len(want) {
			t.Fatalf("Each yielded %d bits, Count() = %d, want %d", got, b.Count(), len(want))
		}

		b.Reset()
		if b.Count() != 0 {
			t.Fatalf("Count() = %d after Reset", b.Count())
		}
	}
}
