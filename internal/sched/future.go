package sched

import "sync/atomic"

// Completion status of a Future.
const (
	futureIncomplete int32 = iota
	futureClaimed
	futureComplete
)

// Future is a single-completion result cell. It is completed by the exit
// path of the task it was handed to, and may be polled from any goroutine,
// including ones that never touch the scheduler.
//
// The zero value is an incomplete future.
type Future struct {
	status atomic.Int32
	result any
}

// complete stores result and publishes it. Only the first call wins.
func (f *Future) complete(result any) bool {
	if !f.status.CompareAndSwap(futureIncomplete, futureClaimed) {
		return false
	}
	f.result = result
	f.status.Store(futureComplete)
	return true
}

// IsReady reports whether the owning task has exited and published its
// result.
func (f *Future) IsReady() bool {
	return f.status.Load() == futureComplete
}

// Result returns the published value. ok is false until IsReady.
func (f *Future) Result() (any, bool) {
	if !f.IsReady() {
		return nil, false
	}
	return f.result, true
}
