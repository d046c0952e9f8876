package hwio

import (
	"fmt"
	"slices"

	"bbemu/emu/log"
)

// log unmapped accesses (noisy with firmware probing absent peripherals)
const logUnmapped = false

type BankIO32 interface {
	Read32(addr uint32) uint32
	// Peek32 reads without side effects (debugging/tracing).
	Peek32(addr uint32) uint32
	Write32(addr uint32, val uint32)
}

type mapping struct {
	begin, end uint32 // inclusive
	io         BankIO32
}

// Table is a 32-bit address space where register banks and devices are
// mapped. Accesses to unmapped addresses go to Unmapped, if set.
type Table struct {
	Name     string
	Unmapped BankIO32

	entries []mapping // sorted by begin, non overlapping
}

func NewTable(name string) *Table {
	return &Table{Name: name}
}

func (t *Table) Reset() {
	t.entries = nil
}

// MapBank maps a register bank, that is a structure whose Reg32 and Device
// fields carry a "hwio" struct tag, at addr. See MustInitRegs for the tag
// format. The bank must have been initialized with MustInitRegs.
func (t *Table) MapBank(addr uint32, bank any) {
	regs, err := bankGetRegs(bank)
	if err != nil {
		panic(err)
	}

	for _, reg := range regs {
		switch r := reg.regPtr.(type) {
		case *Reg32:
			t.MapReg32(addr+reg.offset, r)
		case *Device:
			t.MapDevice(addr+reg.offset, r)
		default:
			panic(fmt.Errorf("invalid reg type: %T", r))
		}
	}
}

func (t *Table) UnmapBank(addr uint32, bank any) {
	regs, err := bankGetRegs(bank)
	if err != nil {
		panic(err)
	}

	for _, reg := range regs {
		switch r := reg.regPtr.(type) {
		case *Reg32:
			t.Unmap(addr+reg.offset, addr+reg.offset+3)
		case *Device:
			t.Unmap(addr+reg.offset, addr+reg.offset+uint32(r.Size)-1)
		}
	}
}

func (t *Table) MapReg32(addr uint32, reg *Reg32) {
	t.mapBus32(addr, 4, reg)
}

func (t *Table) MapDevice(addr uint32, dev *Device) {
	log.ModHwIo.DebugZ("mapping device").
		Hex32("addr", addr).
		Hex32("size", uint32(dev.Size)).
		String("dev", dev.Name).
		String("bus", t.Name).
		End()

	t.mapBus32(addr, uint32(dev.Size), dev)
}

func (t *Table) mapBus32(addr, size uint32, io BankIO32) {
	if size == 0 {
		panic(fmt.Errorf("%s: zero-sized mapping at %08x", t.Name, addr))
	}
	m := mapping{begin: addr, end: addr + size - 1, io: io}
	if m.end < m.begin {
		panic(fmt.Errorf("%s: mapping at %08x wraps around the address space", t.Name, addr))
	}

	idx, _ := slices.BinarySearchFunc(t.entries, addr, func(m mapping, a uint32) int {
		switch {
		case m.begin < a:
			return -1
		case m.begin > a:
			return 1
		}
		return 0
	})
	if idx > 0 && t.entries[idx-1].end >= m.begin {
		panic(fmt.Errorf("%s: mapping [%08x-%08x] overlaps [%08x-%08x]",
			t.Name, m.begin, m.end, t.entries[idx-1].begin, t.entries[idx-1].end))
	}
	if idx < len(t.entries) && t.entries[idx].begin <= m.end {
		panic(fmt.Errorf("%s: mapping [%08x-%08x] overlaps [%08x-%08x]",
			t.Name, m.begin, m.end, t.entries[idx].begin, t.entries[idx].end))
	}
	t.entries = slices.Insert(t.entries, idx, m)
}

// Unmap removes every mapping that intersects [begin, end].
func (t *Table) Unmap(begin, end uint32) {
	t.entries = slices.DeleteFunc(t.entries, func(m mapping) bool {
		return m.begin <= end && m.end >= begin
	})
}

func (t *Table) search(addr uint32) BankIO32 {
	idx, found := slices.BinarySearchFunc(t.entries, addr, func(m mapping, a uint32) int {
		switch {
		case m.end < a:
			return -1
		case m.begin > a:
			return 1
		}
		return 0
	})
	if !found {
		return nil
	}
	return t.entries[idx].io
}

// Read32 forwards the read to the device mapped at addr.
func (t *Table) Read32(addr uint32) uint32 {
	io := t.search(addr)
	if io == nil {
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Read32").
				String("name", t.Name).
				Hex32("addr", addr).
				End()
		}
		if t.Unmapped != nil {
			return t.Unmapped.Read32(addr)
		}
		return 0
	}
	return io.Read32(addr)
}

func (t *Table) Peek32(addr uint32) uint32 {
	io := t.search(addr)
	if io == nil {
		if t.Unmapped != nil {
			return t.Unmapped.Peek32(addr)
		}
		return 0
	}
	return io.Peek32(addr)
}

func (t *Table) Write32(addr uint32, val uint32) {
	io := t.search(addr)
	if io == nil {
		if logUnmapped {
			log.ModHwIo.ErrorZ("unmapped Write32").
				String("name", t.Name).
				Hex32("addr", addr).
				Hex32("val", val).
				End()
		}
		if t.Unmapped != nil {
			t.Unmapped.Write32(addr, val)
		}
		return
	}
	io.Write32(addr, val)
}
