// internal/sched/worker.go

package sched

import "fmt"

// worker sleeps until a frame starts, then drains the general queue until
// it is empty with every worker idle, or the main goroutine raises quiesce.
func (s *Scheduler) worker(id int) {
	name := fmt.Sprintf("worker-%d", id)
	log := s.log.With().Str("runner", name).Logger()
	log.Debug().Msg("worker started")

	var seen uint64
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	for {
		for s.frame == seen && !s.exiting {
			s.workCond.Wait()
		}
		if s.exiting {
			log.Debug().Msg("worker exiting")
			return
		}
		seen = s.frame

		ran := s.workFrameLocked(name)

		// report idle
		s.active--
		s.mainCond.Broadcast()
		log.Trace().Uint64("frame", seen).Int("ran", ran).Msg("worker idle")
	}
}

// workFrameLocked is entered and left with queueMu held.
func (s *Scheduler) workFrameLocked(runner string) int {
	ran := 0
	for !s.quiesce && !s.drained && !s.exiting {
		if t := s.popGeneralLocked(); t != nil {
			s.queueMu.Unlock()
			s.run(t, runner)
			ran++
			s.queueMu.Lock()
			continue
		}

		s.idle++
		if s.idle == s.nworkers {
			// nothing queued and nobody running anything that could queue more
			s.drained = true
			s.workCond.Broadcast()
			s.mainCond.Broadcast()
		} else {
			s.workCond.Wait()
		}
		s.idle--
	}
	return ran
}

// popGeneralLocked is the worker side of dispatch: workers never touch the
// main-pinned queue.
func (s *Scheduler) popGeneralLocked() *Task {
	t := s.general.peek(s.paused.Load())
	if t == nil {
		return nil
	}
	s.general.remove(t)
	t.queued = false
	return t
}

// popMainLocked picks between the two queues: the strictly higher head
// priority wins, ties go to the general queue.
func (s *Scheduler) popMainLocked() *Task {
	paused := s.paused.Load()
	g := s.general.peek(paused)
	p := s.pinned.peek(paused)

	var t *Task
	var q *readyQueue
	switch {
	case g == nil && p == nil:
		return nil
	case g == nil:
		t, q = p, s.pinned
	case p == nil:
		t, q = g, s.general
	case p.prio > g.prio:
		t, q = p, s.pinned
	default:
		t, q = g, s.general
	}
	q.remove(t)
	t.queued = false
	return t
}
