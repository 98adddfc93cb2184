// internal/sched/tick.go

package sched

import (
	"time"

	"github.com/google/uuid"
)

// StartBackgroundTasks opens a frame: tasks that yielded during the last
// frame become eligible again and the workers are woken to drain the general
// queue. Calling it while a frame is already open is a no-op.
func (s *Scheduler) StartBackgroundTasks() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if s.frameOpen && s.active > 0 && !s.drained && !s.quiesce {
		return
	}
	// workers still leaving a drained or quiesced frame
	for s.active > 0 {
		s.mainCond.Wait()
	}
	s.openFrameLocked()

	if s.nworkers == 0 {
		return
	}
	s.frame++
	s.quiesce = false
	s.drained = false
	s.idle = 0
	s.active = s.nworkers
	s.workCond.Broadcast()
}

func (s *Scheduler) openFrameLocked() {
	if s.frameOpen {
		return
	}
	s.frameOpen = true
	for _, t := range s.yielded {
		s.pushLocked(t)
	}
	clear(s.yielded)
	s.yielded = s.yielded[:0]
}

// Tick runs ready tasks on the calling goroutine until the frame budget is
// spent, or until nothing is queued and no worker is active. It then
// quiesces the workers: when Tick returns no task is mid-execution.
func (s *Scheduler) Tick() {
	start := s.now()
	ran := s.drain(start.Add(s.cfg.FrameBudget()), true)
	s.quiesceWorkers()
	s.closeFrame()

	s.log.Trace().Int("ran", ran).Dur("elapsed", s.now().Sub(start)).Msg("tick")
	s.emit(StatusTick, nil, runnerMain)
}

// Flush runs every ready task regardless of the budget and quiesces, so no
// background work is outstanding. Tasks that yield during the flush stay
// queued for the next frame.
func (s *Scheduler) Flush() {
	ran := s.drain(time.Time{}, false)
	s.quiesceWorkers()
	s.closeFrame()
	s.log.Debug().Int("ran", ran).Msg("flushed")
}

func (s *Scheduler) drain(deadline time.Time, bounded bool) int {
	ran := 0
	s.queueMu.Lock()
	s.openFrameLocked()
	for {
		if bounded && !s.now().Before(deadline) {
			break
		}
		if t := s.popMainLocked(); t != nil {
			s.queueMu.Unlock()
			s.run(t, runnerMain)
			ran++
			s.queueMu.Lock()
			continue
		}
		if s.active == 0 || s.drained {
			break
		}
		s.mainCond.Wait()
	}
	s.queueMu.Unlock()
	return ran
}

// quiesceWorkers raises the quiesce flag and blocks until every worker has
// reported idle. Repeated calls are harmless.
func (s *Scheduler) quiesceWorkers() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	s.quiesce = true
	s.workCond.Broadcast()
	for s.active > 0 {
		s.mainCond.Wait()
	}
	s.emit(StatusQuiesce, nil, runnerMain)
}

func (s *Scheduler) closeFrame() {
	s.queueMu.Lock()
	s.frameOpen = false
	s.queueMu.Unlock()
}

// RunSync pulls a READY task out of its queue and runs it to its next
// suspension on the calling goroutine. It returns false if id is not queued.
func (s *Scheduler) RunSync(id TaskID) bool {
	s.reqMu.Lock()
	t := s.slab.live(id)
	s.reqMu.Unlock()
	if t == nil {
		return false
	}

	s.queueMu.Lock()
	if !t.queued {
		s.queueMu.Unlock()
		return false
	}
	switch {
	case t.deferred:
		for i, y := range s.yielded {
			if y == t {
				s.yielded = append(s.yielded[:i], s.yielded[i+1:]...)
				break
			}
		}
		t.deferred = false
	case t.flags&FlagMainThreadPinned != 0:
		s.pinned.remove(t)
	default:
		s.general.remove(t)
	}
	t.queued = false
	s.queueMu.Unlock()

	s.run(t, runnerMain)
	return true
}

// ClearState tears down every task, running destructors and releasing
// retained event arguments, then resets the slab, queues, mailboxes, event
// table and names, and starts a new session.
func (s *Scheduler) ClearState() {
	s.quiesceWorkers()
	n := s.teardownAll()

	id := uuid.New()
	s.session.Store(&id)
	s.emit(StatusClear, nil, runnerMain)
	s.log.Info().Int("torn_down", n).Stringer("session", id).Msg("scheduler state cleared")
}

// teardownAll requires quiesced workers.
func (s *Scheduler) teardownAll() int {
	var doomed []*Task
	s.reqMu.Lock()
	for i := range s.slab.tasks {
		if t := &s.slab.tasks[i]; t.state != StateFree {
			doomed = append(doomed, t)
		}
	}
	s.reqMu.Unlock()

	// unwinding bodies and destructors run user code, keep them unlocked
	for _, t := range doomed {
		if t.ctx != nil {
			t.ctx.Release()
		}
		if t.dtor != nil {
			fn, arg := t.dtor, t.dtorArg
			t.dtor, t.dtorArg = nil, nil
			fn(arg)
		}
		s.releaseEventArg(t)
	}

	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	s.slab.reset()
	clear(s.events)
	s.names.reset()
	s.general.clear()
	s.pinned.clear()
	clear(s.yielded)
	s.yielded = s.yielded[:0]
	for i := range s.slab.tasks {
		t := &s.slab.tasks[i]
		t.queued = false
		t.deferred = false
	}
	return len(doomed)
}
