// internal/fiber/fiber.go

// Package fiber provides the one primitive that moves control between
// cooperatively scheduled execution contexts.
//
// A Context is resumed with Switch from the outside and gives control back
// with Suspend from the inside. Values travel in both directions: the value
// passed to Switch becomes the return value of the pending Suspend, and the
// value passed to Suspend becomes the return value of Switch. Switch may be
// called from any goroutine, but never from two at once.
//
// Contexts are backed by the runtime coroutine switch that powers iter.Pull,
// so a switch hands the OS thread directly to the fiber without going through
// the goroutine scheduler.
package fiber

import (
	"errors"
	"iter"
)

// errReleased unwinds a suspended fiber torn down by Release.
var errReleased = errors.New("fiber: released")

// Entry is the body of a fiber.
type Entry func(c *Context, arg any) any

// Exit runs on the fiber after its Entry returns. It is the trampoline that
// turns falling off the end of a body into an explicit exit protocol, and is
// expected to Suspend one last time.
type Exit func(c *Context, ret any)

// Context is the saved execution state of one fiber.
type Context struct {
	next  func() (any, bool)
	stop  func()
	yield func(any) bool
	in    any
	done  bool
}

// New returns a context that begins executing entry(c, arg) on its first
// Switch. exit may be nil.
func New(entry Entry, arg any, exit Exit) *Context {
	c := &Context{}
	seq := func(yield func(any) bool) {
		c.yield = yield
		defer func() {
			if r := recover(); r != nil && r != errReleased {
				panic(r)
			}
		}()
		ret := entry(c, arg)
		if exit != nil {
			exit(c, ret)
		}
	}
	c.next, c.stop = iter.Pull(seq)
	return c
}

// Switch resumes the fiber, delivering v as the result of its pending
// Suspend (v is ignored on the first switch). It returns when the fiber next
// suspends, with the value it suspended with. alive is false once the body
// and its exit trampoline have returned.
//
// A panic raised by the fiber body propagates out of Switch.
func (c *Context) Switch(v any) (out any, alive bool) {
	if c.done {
		return nil, false
	}
	c.in = v
	out, alive = c.next()
	if !alive {
		c.done = true
	}
	return out, alive
}

// Suspend must be called from inside the fiber. It hands out to the caller
// of Switch and blocks until the fiber is switched to again, returning the
// value passed to that Switch.
func (c *Context) Suspend(out any) any {
	if !c.yield(out) {
		panic(errReleased)
	}
	v := c.in
	c.in = nil
	return v
}

// Release tears the fiber down. A suspended body is unwound from its
// pending Suspend, running its deferred calls. Release must not be called
// from inside the fiber, and is a no-op once the fiber has finished.
func (c *Context) Release() {
	if c.done {
		return
	}
	c.done = true
	c.stop()
}

// Done reports whether the fiber has finished or been released.
func (c *Context) Done() bool { return c.done }
