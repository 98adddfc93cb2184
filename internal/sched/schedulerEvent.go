// internal/sched/schedulerEvent.go

package sched

import (
	"time"

	"github.com/google/uuid"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusCreate StatusKind = iota
	StatusDispatch
	StatusBlock
	StatusExit
	StatusFree
	StatusQuiesce
	StatusTick
	StatusClear
)

// StatusEvent is emitted on key scheduler actions when the status stream is
// enabled (Config.StatusBuffer > 0).
type StatusEvent struct {
	Time     time.Time
	Kind     StatusKind
	Session  uuid.UUID
	TaskID   TaskID
	State    State
	Priority float64
	Runner   string
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusCreate:
		return "Create"
	case StatusDispatch:
		return "Dispatch"
	case StatusBlock:
		return "Block"
	case StatusExit:
		return "Exit"
	case StatusFree:
		return "Free"
	case StatusQuiesce:
		return "Quiesce"
	case StatusTick:
		return "Tick"
	case StatusClear:
		return "Clear"
	default:
		return "Unknown"
	}
}

// StatusChannel exposes the read-only stream, or nil when disabled. It is
// closed by Shutdown. Events are dropped rather than block the scheduler
// when the consumer falls behind.
func (s *Scheduler) StatusChannel() <-chan StatusEvent { return s.statusCh }

// Dropped counts status events lost to a full channel.
func (s *Scheduler) Dropped() uint64 { return s.dropped.Load() }

// emit never blocks. t may be nil for scheduler-wide events.
func (s *Scheduler) emit(kind StatusKind, t *Task, runner string) {
	if s.statusCh == nil || s.closed.Load() {
		return
	}
	ev := StatusEvent{
		Time:    s.now(),
		Kind:    kind,
		Session: *s.session.Load(),
		Runner:  runner,
	}
	if t != nil {
		ev.TaskID = t.id
		ev.State = t.state
		ev.Priority = t.prio
	}
	select {
	case s.statusCh <- ev:
	default:
		s.dropped.Add(1)
	}
}
