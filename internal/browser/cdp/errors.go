package cdp

import (
	"errors"
	"fmt"
	"time"
)

// ErrConnectionClosed reports that the debugging socket is gone. Commands
// pending at close time fail with this error immediately rather than being
// left to time out.
var ErrConnectionClosed = errors.New("cdp: connection closed")

// ProtocolError is an error frame returned by the browser for a command.
type ProtocolError struct {
	Method  string `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("cdp: %s failed: %s (code %d)", e.Method, e.Message, e.Code)
}

// CommandTimeoutError reports that no response arrived for a command
// before its deadline elapsed.
type CommandTimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("cdp: %s timed out after %v", e.Method, e.Timeout)
}
