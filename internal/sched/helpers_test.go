package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestScheduler returns a scheduler with no workers, so every task runs
// on the test goroutine in a deterministic order.
func newTestScheduler(t *testing.T, mod func(*Config), opts ...Option) *Scheduler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxTasks = 16
	cfg.StackSize = 1024
	cfg.BigStackSize = 4096
	cfg.Workers = 0
	cfg.BudgetMS = 5000
	cfg.DebugChecks = true
	if mod != nil {
		mod(&cfg)
	}
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

// requireViolation runs fn and returns the *ProtocolError it panicked with.
func requireViolation(t *testing.T, fn func()) *ProtocolError {
	t.Helper()
	var pe *ProtocolError
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a protocol violation")
			var ok bool
			pe, ok = r.(*ProtocolError)
			require.True(t, ok, "unexpected panic value %v", r)
		}()
		fn()
	}()
	return pe
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// runFrames ticks until done reports true or max frames have run.
func runFrames(s *Scheduler, max int, done func() bool) int {
	n := 0
	for n < max && !done() {
		s.StartBackgroundTasks()
		s.Tick()
		n++
	}
	return n
}

// returns is a body that returns v straight away.
func returns(v any) Entry {
	return func(*Task, any) any { return v }
}

// yieldForever counts its runs into *n and yields after each one.
func yieldForever(n *int) Entry {
	return func(t *Task, _ any) any {
		for {
			*n++
			t.Yield()
		}
	}
}
