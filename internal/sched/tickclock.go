// internal/sched/tickclock.go

package sched

import (
	"sync/atomic"
	"time"
)

// TickClock emits timer ticks and counts them atomically. The host drains
// Ch once per frame and posts each tick as EventTimerTick.
type TickClock struct {
	Ch    chan int64
	count atomic.Int64
	stop  chan struct{}
}

// NewTickClock creates a clock but does not start it.
func NewTickClock(buffer int) *TickClock {
	return &TickClock{
		Ch:   make(chan int64, buffer),
		stop: make(chan struct{}),
	}
}

// Start begins emitting ticks at the given interval. A tick the host has
// not drained yet is counted but not queued twice.
func (c *TickClock) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n := c.count.Add(1)
				select {
				case c.Ch <- n:
				default:
				}
			case <-c.stop:
				close(c.Ch)
				return
			}
		}
	}()
}

// Stop signals the clock to stop emitting ticks.
func (c *TickClock) Stop() {
	close(c.stop)
}

// Count returns the current tick count atomically.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}

// Post drains pending ticks into s as EventTimerTick events and returns how
// many were posted. Main goroutine only.
func (c *TickClock) Post(s *Scheduler) int {
	n := 0
	for {
		select {
		case tick, ok := <-c.Ch:
			if !ok {
				return n
			}
			s.HandleEvent(EventTimerTick, tick, SourceEngine, false)
			n++
		default:
			return n
		}
	}
}
