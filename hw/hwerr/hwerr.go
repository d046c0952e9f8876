// Package hwerr defines the two error classes of the hardware models.
//
// A ConfigError is returned by constructors when a component is wired
// incompletely; it is fatal at startup and never retried. A
// ProgrammingError is raised (as a panic value) when a component is asked
// to address something outside the modelled range: the callers are the
// register decode layer and machine assembly, which validate their inputs,
// so reaching one is a bug.
package hwerr

import (
	"fmt"

	"github.com/go-faster/errors"
)

type ConfigError struct {
	Component string // component being configured, e.g. "intc"
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid configuration: %s", e.Component, e.Reason)
}

// Configf returns a *ConfigError for the named component.
func Configf(component, format string, args ...any) error {
	return &ConfigError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// IsConfig reports whether err, or any error it wraps, is a ConfigError.
func IsConfig(err error) bool {
	var cerr *ConfigError
	return errors.As(err, &cerr)
}

type ProgrammingError struct {
	Component string
	Reason    string
}

func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("%s: programming error: %s", e.Component, e.Reason)
}

// Panicf panics with a *ProgrammingError.
func Panicf(component, format string, args ...any) {
	panic(&ProgrammingError{Component: component, Reason: fmt.Sprintf(format, args...)})
}
