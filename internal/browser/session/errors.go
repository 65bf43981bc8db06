package session

import (
	"fmt"
	"strings"
	"time"
)

// ScriptError is an exception thrown by an evaluated page script. The
// session itself survives; only the evaluation fails.
type ScriptError struct {
	Text string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("session: script threw: %s", e.Text)
}

// ElementNotFoundError reports that every resolver tier was exhausted.
type ElementNotFoundError struct {
	Attempted []string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("session: no visible element for selectors [%s]", strings.Join(e.Attempted, ", "))
}

// WaitTimeoutError reports that an element never became visible within
// the wait budget.
type WaitTimeoutError struct {
	Selector string
	Timeout  time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("session: %q not visible after %v", e.Selector, e.Timeout)
}

// TypeVerificationError reports that a field's value did not match the
// typed text after a type action. Typing must never silently succeed.
type TypeVerificationError struct {
	Selector string
	Want     string
	Got      string
}

func (e *TypeVerificationError) Error() string {
	return fmt.Sprintf("session: typed value mismatch on %q: want %q, got %q", e.Selector, e.Want, e.Got)
}
