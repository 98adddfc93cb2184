package sched

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol marks a misuse of the task API: mismatched rendezvous
	// sizes, replying to a task that is not waiting on the caller, waiting on
	// a task that is not a child, and similar logic bugs.
	ErrProtocol = errors.New("sched: protocol violation")

	// ErrContextCorrupt marks a fiber that suspended with a request that
	// does not belong to the task the runner switched to.
	ErrContextCorrupt = errors.New("sched: context corrupt")

	// ErrInvalidConfig is returned by New and LoadConfig.
	ErrInvalidConfig = errors.New("sched: invalid config")
)

// ProtocolError is the panic value raised for unrecoverable misuse. The
// scheduler state cannot be unwound after one of these, so it is never
// returned as an ordinary error.
type ProtocolError struct {
	Op     string
	TaskID TaskID
	Reason string
	Cause  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%v: %s by task %d: %s", e.cause(), e.Op, e.TaskID, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.cause() }

func (e *ProtocolError) cause() error {
	if e.Cause == nil {
		return ErrProtocol
	}
	return e.Cause
}

// violation aborts the current runner.
func violation(op string, id TaskID, format string, args ...any) {
	panic(&ProtocolError{Op: op, TaskID: id, Reason: fmt.Sprintf(format, args...)})
}
