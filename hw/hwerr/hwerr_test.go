package hwerr

import (
	"testing"

	"github.com/go-faster/errors"
)

func TestIsConfig(t *testing.T) {
	err := Configf("intc", "missing %s output", "fast")
	if !IsConfig(err) {
		t.Fatalf("IsConfig(%v) = false", err)
	}
	wrapped := errors.Wrap(err, "machine")
	if !IsConfig(wrapped) {
		t.Fatalf("IsConfig(%v) = false", wrapped)
	}
	if IsConfig(errors.New("other")) {
		t.Fatalf("IsConfig on unrelated error")
	}
	if want := "intc: invalid configuration: missing fast output"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestPanicf(t *testing.T) {
	defer func() {
		r := recover()
		perr, ok := r.(*ProgrammingError)
		if !ok {
			t.Fatalf("recovered %T, want *ProgrammingError", r)
		}
		if perr.Component != "timer" {
			t.Errorf("Component = %q", perr.Component)
		}
	}()
	Panicf("timer", "alarm %d out of range", 9)
}
