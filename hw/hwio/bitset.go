package hwio

import "math/bits"

const wordSize = 64

// Bitset is a fixed-size set of bits. The zero value is an empty set of
// size 0; use NewBitset.
type Bitset struct {
	n     uint
	words []uint64
}

func NewBitset(n uint) Bitset {
	return Bitset{n: n, words: make([]uint64, (n+wordSize-1)/wordSize)}
}

// Len returns the number of bits in the set.
func (b *Bitset) Len() uint { return b.n }

// Set sets the bit at index i.
func (b *Bitset) Set(i uint) {
	b.words[i/wordSize] |= 1 << (i % wordSize)
}

// Clear clears the bit at index i.
func (b *Bitset) Clear(i uint) {
	b.words[i/wordSize] &^= 1 << (i % wordSize)
}

// SetTo sets or clears the bit at index i.
func (b *Bitset) SetTo(i uint, v bool) {
	if v {
		b.Set(i)
	} else {
		b.Clear(i)
	}
}

// Test returns true if the bit at index i is set.
func (b *Bitset) Test(i uint) bool {
	return b.words[i/wordSize]&(1<<(i%wordSize)) != 0
}

// Reset clears all bits in the Bitset.
func (b *Bitset) Reset() {
	clear(b.words)
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Each calls fn with the index of every set bit, in increasing order.
func (b *Bitset) Each(fn func(i uint)) {
	for wi, w := range b.words {
		for w != 0 {
			tz := uint(bits.TrailingZeros64(w))
			fn(uint(wi)*wordSize + tz)
			w &= w - 1
		}
	}
}
