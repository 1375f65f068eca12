package fsm

import (
	"errors"
	"fmt"
)

// UnknownStateError reports a state that has no entry in the dispatch table.
//
// New returns it when the initial state is undeclared. Transition panics with
// it, since a transition to an undeclared state is a programming error that
// no caller could recover from.
type UnknownStateError struct {
	// Machine is the name the machine was built with (may be empty).
	Machine string

	// State is the formatted state value.
	State string
}

// Error implements the error interface.
func (e *UnknownStateError) Error() string {
	if e.Machine != "" {
		return fmt.Sprintf("fsm %s: unknown state %s", e.Machine, e.State)
	}
	return fmt.Sprintf("fsm: unknown state %s", e.State)
}

// IsUnknownState returns true if err is, or wraps, an UnknownStateError.
func IsUnknownState(err error) bool {
	var use *UnknownStateError
	return errors.As(err, &use)
}
