package sched

import (
	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// EventID identifies an application event. The scheduler only cares about
// identity; the event bus that owns them is external.
type EventID int

// EventTimerTick is posted by the host timer and awaited by Task.Sleep.
const EventTimerTick EventID = -1

// Source says who published an event.
type Source int

const (
	SourceEngine Source = iota
	SourceScript
)

func (s Source) String() string {
	switch s {
	case SourceEngine:
		return "engine"
	case SourceScript:
		return "script"
	default:
		return "unknown"
	}
}

// Retainer is implemented by reference-counted event arguments. Arguments
// of script-sourced events are retained once per woken task and released
// after that task's handler has run, i.e. at its next suspension.
type Retainer interface {
	Retain()
	Release()
}

func (s *Scheduler) awaitEventLocked(t *Task, ev EventID) {
	t.state = StateEventBlocked
	q, ok := s.events[ev]
	if !ok {
		q = linkedlistqueue.New()
		s.events[ev] = q
	}
	q.Enqueue(t.id)
	s.emit(StatusBlock, t, "")
}

// HandleEvent wakes every task blocked on ev, delivering arg as the result
// of their AwaitEvent. With immediate set the woken tasks run to their next
// suspension on the calling goroutine before HandleEvent returns; otherwise
// they are queued for the next dispatch. Main goroutine only.
func (s *Scheduler) HandleEvent(ev EventID, arg any, src Source, immediate bool) {
	var woken []*Task
	n := 0

	s.reqMu.Lock()
	q, ok := s.events[ev]
	if ok {
		delete(s.events, ev)
		for !q.Empty() {
			v, _ := q.Dequeue()
			t := s.slab.live(v.(TaskID))
			if t == nil || t.state != StateEventBlocked {
				continue
			}
			n++
			t.resume = arg
			if r, ok := arg.(Retainer); ok && src == SourceScript {
				r.Retain()
				t.eventArg = r
			}
			if immediate {
				t.state = StateReady
				woken = append(woken, t)
				continue
			}
			s.reactivateLocked(t)
		}
	}
	s.reqMu.Unlock()

	if ev != EventTimerTick {
		s.log.Debug().
			Int("event", int(ev)).
			Stringer("source", src).
			Bool("immediate", immediate).
			Int("woken", n).
			Msg("event dispatched")
	}

	for _, t := range woken {
		s.run(t, runnerMain)
	}
}

// releaseEventArg drops the reference retained for t's last AwaitEvent.
func (s *Scheduler) releaseEventArg(t *Task) {
	if t.eventArg == nil {
		return
	}
	r := t.eventArg
	t.eventArg = nil
	r.Release()
}
