package wasmvm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBusy is returned by Handle.Invoke when another invocation on the same
// handle has not returned yet. The call is rejected, never queued.
var ErrBusy = errors.New("wasmvm: invocation already in flight")

// ErrClosed is returned when invoking a handle whose module has been closed.
var ErrClosed = errors.New("wasmvm: module closed")

// LinkError reports a guest import or export that cannot be bound to the host
// ABI. It is raised by Runtime.Load before any guest code runs.
type LinkError struct {
	Module string
	Name   string
	Reason string
}

func (e *LinkError) Error() string {
	if e.Module == "" {
		return fmt.Sprintf("link %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("link %s.%s: %s", e.Module, e.Name, e.Reason)
}

// TrapError reports a runtime fault inside the guest (out of bounds memory
// access, unreachable, stack overflow...). The partial Result returned next to
// it still carries every IO entry written before the fault.
type TrapError struct {
	Cause error
}

func (e *TrapError) Error() string {
	return "trap: " + trapMessage(e.Cause)
}

func (e *TrapError) Unwrap() error { return e.Cause }

// trapMessage keeps the first line of a wazero error, dropping the stack trace.
func trapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimPrefix(msg, "wasm error: ")
}
