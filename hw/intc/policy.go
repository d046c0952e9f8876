package intc

import "bbemu/hw/hwerr"

// Policy decides how ties between lines of equal priority are broken.
// Whatever the policy, the last resort is the lowest line id, so that the
// winner is always unique.
type Policy uint8

const (
	// Flat arbitrates on priority only (first and second hardware
	// generations, the latter adding priority masking).
	Flat Policy = iota
	// Nested breaks priority ties on the nesting weight (third
	// generation).
	Nested
)

func (p Policy) String() string {
	if p == Nested {
		return "nested"
	}
	return "flat"
}

// PolicyByName accepts the policy names and the hardware generation
// aliases gen1, gen2 and gen3.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "flat", "gen1", "gen2", "":
		return Flat, nil
	case "nested", "gen3":
		return Nested, nil
	}
	return 0, hwerr.Configf("intc", "unknown arbitration policy %q", name)
}

func (p Policy) weight(l *line) uint8 {
	if p == Flat {
		return 0
	}
	return l.weight
}

// beats reports whether line a (id ida) wins over line b (id idb).
func (p Policy) beats(a *line, ida LineID, b *line, idb LineID) bool {
	if a.prio != b.prio {
		return a.prio > b.prio
	}
	if wa, wb := p.weight(a), p.weight(b); wa != wb {
		return wa > wb
	}
	return ida < idb
}
