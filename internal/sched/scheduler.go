// internal/sched/scheduler.go

package sched

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fibersched/internal/fiber"
)

const runnerMain = "main"

// Scheduler runs cooperative tasks on the main goroutine and a pool of
// workers. Methods not on Task must be called from the goroutine that owns
// the scheduler (the "main thread"), except where noted.
type Scheduler struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time

	// reqMu serializes request servicing. It guards the slab, task state,
	// mailboxes, the event table and the name registry.
	reqMu   sync.Mutex
	slab    *slab
	events  map[EventID]*linkedlistqueue.Queue
	names   *registry
	created uint64
	exited  uint64

	// queueMu guards the ready queues and worker signalling. Lock order is
	// reqMu before queueMu.
	queueMu   sync.Mutex
	workCond  *sync.Cond // workers: frame start, new work, quiesce
	mainCond  *sync.Cond // main: new work, worker went idle
	general   *readyQueue
	pinned    *readyQueue
	yielded   []*Task // eligible again at the next frame
	seq       uint64
	frame     uint64
	frameOpen bool
	quiesce   bool
	drained   bool
	exiting   bool
	nworkers  int
	active    int // workers inside the current frame
	idle      int // of those, waiting for work

	paused   atomic.Bool
	session  atomic.Pointer[uuid.UUID]
	workers  errgroup.Group
	statusCh chan StatusEvent
	dropped  atomic.Uint64
	closed   atomic.Bool
	stopOnce sync.Once
}

// New initializes the slab, queues and worker pool. Workers are sized to
// CPU count - 1 unless cfg.Workers is non-negative; zero workers means every
// task runs on the goroutine calling Tick.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.clamp()
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:     cfg,
		now:     o.clock,
		events:  make(map[EventID]*linkedlistqueue.Queue),
		names:   newRegistry(),
		general: newReadyQueue(),
		pinned:  newReadyQueue(),
	}
	s.workCond = sync.NewCond(&s.queueMu)
	s.mainCond = sync.NewCond(&s.queueMu)
	s.slab = newSlab(s, cfg.MaxTasks, cfg.StackSize)
	if cfg.StatusBuffer > 0 {
		s.statusCh = make(chan StatusEvent, cfg.StatusBuffer)
	}

	id := uuid.New()
	s.session.Store(&id)
	s.log = o.logger.With().Str("component", "sched").Logger()

	// on a single-core host every task just runs on the main goroutine
	n := cfg.Workers
	if n < 0 {
		n = runtime.NumCPU() - 1
	}
	s.nworkers = min(max(n, 0), MaxWorkers)
	for i := 0; i < s.nworkers; i++ {
		s.workers.Go(func() error {
			s.worker(i)
			return nil
		})
	}

	s.log.Info().
		Stringer("session", id).
		Int("workers", s.nworkers).
		Int("max_tasks", cfg.MaxTasks).
		Dur("budget", cfg.FrameBudget()).
		Msg("scheduler initialized")
	return s, nil
}

// Shutdown quiesces and stops the workers, tears down every remaining task
// and closes the status stream. It is safe to call more than once.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		s.quiesceWorkers()

		s.queueMu.Lock()
		s.exiting = true
		s.workCond.Broadcast()
		s.queueMu.Unlock()
		_ = s.workers.Wait()

		n := s.teardownAll()
		s.closed.Store(true)
		if s.statusCh != nil {
			close(s.statusCh)
		}
		s.log.Info().Int("torn_down", n).Uint64("status_dropped", s.dropped.Load()).Msg("scheduler shut down")
	})
}

// CreateDetached launches a top-level task from outside task context. The
// task has no parent and is freed as soon as it exits. Returns NullTID when
// the slab is full.
func (s *Scheduler) CreateDetached(prio float64, entry Entry, arg any, fut *Future, flags Flags) TaskID {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	return s.createLocked(prio, entry, arg, fut, flags|FlagDetached, NullTID)
}

func (s *Scheduler) createLocked(prio float64, entry Entry, arg any, fut *Future, flags Flags, parent TaskID) TaskID {
	t, ok := s.slab.alloc()
	if !ok {
		s.log.Warn().Uint32("parent", uint32(parent)).Msg("task slab exhausted")
		return NullTID
	}

	t.prio = prio
	t.flags = flags
	t.parent = parent
	t.future = fut
	if p := s.slab.live(parent); p != nil {
		p.children++
	}
	t.ctx = fiber.New(
		func(_ *fiber.Context, arg any) any { return entry(t, arg) },
		arg,
		// falling off the end of the body issues the exit request
		func(_ *fiber.Context, ret any) { t.request(exitReq{ret: ret}) },
	)
	s.created++

	s.log.Debug().
		Uint32("tid", uint32(t.id)).
		Uint32("parent", uint32(parent)).
		Float64("prio", prio).
		Stringer("flags", flags).
		Msg("task created")
	s.emit(StatusCreate, t, "")

	s.reactivateLocked(t)
	return t.id
}

// run switches into t and services its requests until it leaves the
// runner: requeued, blocked, or exited.
func (s *Scheduler) run(t *Task, runner string) {
	s.reqMu.Lock()
	t.state = StateActive
	s.reqMu.Unlock()
	s.emit(StatusDispatch, t, runner)

	for {
		v := t.resume
		t.resume = nil
		out, alive := t.ctx.Switch(v)
		susp, ok := out.(suspension)
		if !alive || !ok {
			panic(&ProtocolError{Op: "switch", TaskID: t.id, Reason: "fiber returned without a request", Cause: ErrContextCorrupt})
		}
		if s.cfg.DebugChecks && (susp.id != t.id || susp.gen != t.gen) {
			panic(&ProtocolError{
				Op:     "switch",
				TaskID: t.id,
				Reason: fmt.Sprintf("request from task %d (gen %d) on the wrong context", susp.id, susp.gen),
				Cause:  ErrContextCorrupt,
			})
		}

		// the handler that consumed the last event argument has run
		s.releaseEventArg(t)

		if x, ok := susp.req.(exitReq); ok {
			s.exit(t, x.ret, runner)
			return
		}
		if !s.service(t, susp.req) {
			return
		}
	}
}

// service performs the state transition for one request. It returns true
// when the caller should be resumed in place without going through a queue.
func (s *Scheduler) service(t *Task, r request) bool {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	switch r := r.(type) {
	case myIDReq:
		t.resume = t.id
		return true
	case myParentIDReq:
		t.resume = t.parent
		return true
	case setDestructorReq:
		t.dtor, t.dtorArg = r.fn, r.arg
		return true
	case registerReq:
		s.registerLocked(t, r.name)
		return true
	case whoIsReq:
		return s.whoIsLocked(t, r)
	case createReq:
		t.resume = s.createLocked(r.prio, r.entry, r.arg, r.future, r.flags, t.id)
		s.reactivateLocked(t)
	case yieldReq:
		s.yieldLocked(t)
	case sendReq:
		s.sendLocked(t, r)
	case receiveReq:
		s.receiveLocked(t, r)
	case replyReq:
		s.replyLocked(t, r)
	case awaitEventReq:
		s.awaitEventLocked(t, r.event)
	case waitReq:
		return s.waitLocked(t, r.child)
	default:
		violation(r.kind().String(), t.id, "unexpected request")
	}
	return false
}

// exit runs the exit protocol: destructor, future, fiber release, then
// zombie or free depending on the parent.
func (s *Scheduler) exit(t *Task, ret any, runner string) {
	if t.dtor != nil {
		fn, arg := t.dtor, t.dtorArg
		t.dtor, t.dtorArg = nil, nil
		fn(arg)
	}
	if t.future != nil {
		t.future.complete(ret)
	}
	t.ctx.Release()

	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.exited++
	if n := t.mailbox.Size(); n > 0 {
		violation("exit", t.id, "%d senders still queued on its mailbox", n)
	}
	if t.replyWaiters > 0 {
		violation("exit", t.id, "%d senders still waiting for a reply", t.replyWaiters)
	}
	s.names.unregisterLocked(t.id)
	s.orphanChildrenLocked(t)
	t.ctx = nil
	t.stack = nil
	s.emit(StatusExit, t, runner)

	if t.flags&FlagDetached != 0 || t.parent == NullTID {
		s.freeLocked(t)
		return
	}
	if p := s.slab.live(t.parent); p != nil && p.state == StateWaitBlocked && p.waitFor == t.id {
		s.freeLocked(t)
		p.waitFor = NullTID
		p.resume = true
		s.reactivateLocked(p)
		return
	}
	t.state = StateZombie
}

// orphanChildrenLocked reaps t's zombie children and detaches the live ones
// so no id stays pinned by a parent that no longer exists.
func (s *Scheduler) orphanChildrenLocked(t *Task) {
	for i := range s.slab.tasks {
		if t.children == 0 {
			return
		}
		c := &s.slab.tasks[i]
		if c == t || c.state == StateFree || c.parent != t.id {
			continue
		}
		if c.state == StateZombie {
			s.freeLocked(c)
			continue
		}
		c.parent = NullTID
		t.children--
	}
}

func (s *Scheduler) waitLocked(t *Task, child TaskID) bool {
	c, ok := s.slab.lookup(child)
	if !ok {
		violation("wait", t.id, "invalid task id %d", child)
	}
	if c.state == StateFree {
		t.resume = false
		return true
	}
	if c.parent != t.id {
		violation("wait", t.id, "task %d is not a child", child)
	}
	if c.flags&FlagDetached != 0 {
		violation("wait", t.id, "task %d is detached", child)
	}
	if c.state == StateZombie {
		s.freeLocked(c)
		t.resume = true
		s.reactivateLocked(t)
		return false
	}
	t.state = StateWaitBlocked
	t.waitFor = child
	s.emit(StatusBlock, t, "")
	return false
}

func (s *Scheduler) freeLocked(t *Task) {
	if n := t.mailbox.Size(); n > 0 {
		violation("free", t.id, "%d senders still queued on its mailbox", n)
	}
	if p := s.slab.live(t.parent); p != nil {
		p.children--
	}
	s.emit(StatusFree, t, "")
	s.slab.free(t)
}

// reactivateLocked marks t READY and queues it.
func (s *Scheduler) reactivateLocked(t *Task) {
	t.state = StateReady
	s.queueMu.Lock()
	s.pushLocked(t)
	s.queueMu.Unlock()
}

// yieldLocked marks t READY but holds it back until the next frame.
func (s *Scheduler) yieldLocked(t *Task) {
	t.state = StateReady
	s.queueMu.Lock()
	t.queued = true
	t.deferred = true
	s.yielded = append(s.yielded, t)
	s.queueMu.Unlock()
}

// pushLocked requires queueMu.
func (s *Scheduler) pushLocked(t *Task) {
	s.seq++
	t.queued = true
	t.deferred = false
	if t.flags&FlagMainThreadPinned != 0 {
		s.pinned.push(t, s.seq)
	} else {
		s.general.push(t, s.seq)
		s.workCond.Broadcast()
	}
	s.mainCond.Broadcast()
}

// SetPaused toggles the paused simulation state. While paused only tasks
// created with FlagRunDuringPause are dispatched. Safe from any goroutine.
func (s *Scheduler) SetPaused(paused bool) {
	s.paused.Store(paused)
	if !paused {
		s.queueMu.Lock()
		s.workCond.Broadcast()
		s.mainCond.Broadcast()
		s.queueMu.Unlock()
	}
}

// Session identifies the current scheduler session. ClearState starts a
// new one.
func (s *Scheduler) Session() uuid.UUID { return *s.session.Load() }

// StateOf reports the state of the slot named by id.
func (s *Scheduler) StateOf(id TaskID) State {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	t, ok := s.slab.lookup(id)
	if !ok {
		return StateFree
	}
	return t.state
}

// Stats is a point-in-time snapshot of scheduler occupancy.
type Stats struct {
	Live          int
	Zombies       int
	Free          int
	ReadyGeneral  int
	ReadyPinned   int
	Created       uint64
	Exited        uint64
	Workers       int
	ActiveWorkers int
}

// Stats takes both locks; it is meant for diagnostics and tests.
func (s *Scheduler) Stats() Stats {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	st := Stats{
		Live:    s.slab.inUse(),
		Free:    s.slab.nfree,
		Created: s.created,
		Exited:  s.exited,
		Workers: s.nworkers,
	}
	for i := range s.slab.tasks {
		if s.slab.tasks[i].state == StateZombie {
			st.Zombies++
		}
	}

	s.queueMu.Lock()
	st.ReadyGeneral = s.general.len()
	st.ReadyPinned = s.pinned.len()
	for _, t := range s.yielded {
		if t.flags&FlagMainThreadPinned != 0 {
			st.ReadyPinned++
		} else {
			st.ReadyGeneral++
		}
	}
	st.ActiveWorkers = s.active
	s.queueMu.Unlock()
	return st
}
