package intc

import (
	"fmt"

	"bbemu/hw/hwerr"
)

// Class is an independent arbitration domain with its own CPU input.
type Class uint8

const (
	Normal Class = iota // IRQ
	Fast                // FIQ

	NumClasses
)

func (c Class) String() string {
	switch c {
	case Normal:
		return "normal"
	case Fast:
		return "fast"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// ClassByName parses "normal"/"irq" or "fast"/"fiq".
func ClassByName(name string) (Class, bool) {
	switch name {
	case "normal", "irq", "":
		return Normal, true
	case "fast", "fiq":
		return Fast, true
	}
	return 0, false
}

// Trigger is the sensitivity of an arbiter input.
type Trigger uint8

const (
	// Edge inputs request service on a rising level and withdraw it on a
	// falling one. Acknowledging the line clears the request.
	Edge Trigger = iota
	// Level inputs are pending as long as the input is high.
	Level
)

func (t Trigger) String() string {
	if t == Level {
		return "level"
	}
	return "edge"
}

// LineID identifies a line of an arbiter, it is the index of the line in
// its LineTable.
type LineID int

// LineSpec is the static description of an arbiter line.
type LineSpec struct {
	Name     string
	Class    Class
	Priority uint8
	Weight   uint8 // nesting weight, ignored by the Flat policy
	Trigger  Trigger

	// Dynamic lines take their priority from the level driven on their
	// port (level-1), as RequestLine does.
	Dynamic bool
}

// LineTable names the lines of an arbiter. It is built once by machine
// assembly and shared by reference with whoever needs to resolve line
// names.
type LineTable struct {
	specs  []LineSpec
	byName map[string]LineID
}

func NewLineTable() *LineTable {
	return &LineTable{byName: make(map[string]LineID)}
}

// Add appends a line, its id is its position in the table.
func (t *LineTable) Add(spec LineSpec) (LineID, error) {
	if spec.Name == "" {
		return 0, hwerr.Configf("linetable", "line %d has no name", len(t.specs))
	}
	if _, dup := t.byName[spec.Name]; dup {
		return 0, hwerr.Configf("linetable", "duplicate line %q", spec.Name)
	}
	if spec.Class >= NumClasses {
		return 0, hwerr.Configf("linetable", "line %q: invalid class %d", spec.Name, spec.Class)
	}
	if len(t.specs) >= MaxLines {
		return 0, hwerr.Configf("linetable", "more than %d lines", MaxLines)
	}
	id := LineID(len(t.specs))
	t.specs = append(t.specs, spec)
	t.byName[spec.Name] = id
	return id, nil
}

func (t *LineTable) Lookup(name string) (LineID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

func (t *LineTable) Len() int { return len(t.specs) }

func (t *LineTable) Name(id LineID) string {
	return t.Spec(id).Name
}

func (t *LineTable) Spec(id LineID) LineSpec {
	if id < 0 || int(id) >= len(t.specs) {
		hwerr.Panicf("linetable", "line %d out of range [0,%d)", id, len(t.specs))
	}
	return t.specs[id]
}

// Specs returns a copy of every line spec, in id order.
func (t *LineTable) Specs() []LineSpec {
	return append([]LineSpec(nil), t.specs...)
}
