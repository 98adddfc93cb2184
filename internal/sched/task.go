// internal/sched/task.go

package sched

import (
	"fmt"
	"strings"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"fibersched/internal/fiber"
)

// TaskID uniquely identifies a live task. Ids are slab index + 1 and are
// handed out again only after the task has been freed.
type TaskID uint32

// NullTID is never a valid task. Create returns it when the slab is full.
const NullTID TaskID = 0

// Flags configure a task at creation.
type Flags uint32

const (
	// FlagMainThreadPinned tasks only run from the main-pinned queue,
	// i.e. on the goroutine calling Tick.
	FlagMainThreadPinned Flags = 1 << iota
	// FlagDetached tasks are freed as soon as they exit. They cannot be
	// waited on.
	FlagDetached
	// FlagBigStack tasks get a private BigStackSize scratch buffer instead
	// of the slot's StackSize one.
	FlagBigStack
	// FlagRunDuringPause tasks stay eligible while the scheduler is paused.
	FlagRunDuringPause
)

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, p := range []struct {
		bit  Flags
		name string
	}{
		{FlagMainThreadPinned, "main"},
		{FlagDetached, "detached"},
		{FlagBigStack, "bigstack"},
		{FlagRunDuringPause, "pause"},
	} {
		if f&p.bit != 0 {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, "|")
}

// State is the lifecycle state of a task slot.
type State int

const (
	StateFree State = iota
	StateReady
	StateActive
	StateSendBlocked  // sender queued on a mailbox, no receiver yet
	StateRecvBlocked  // receiver waiting for a sender
	StateReplyBlocked // sender matched with a receiver, waiting for the reply
	StateEventBlocked
	StateWaitBlocked // parent waiting for a child to exit
	StateNameBlocked // blocking WhoIs on an unregistered name
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "Free"
	case StateReady:
		return "Ready"
	case StateActive:
		return "Active"
	case StateSendBlocked:
		return "SendBlocked"
	case StateRecvBlocked:
		return "RecvBlocked"
	case StateReplyBlocked:
		return "ReplyBlocked"
	case StateEventBlocked:
		return "EventBlocked"
	case StateWaitBlocked:
		return "WaitBlocked"
	case StateNameBlocked:
		return "NameBlocked"
	case StateZombie:
		return "Zombie"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry is a task body. The returned value completes the task's future.
type Entry func(t *Task, arg any) any

// Task is one slab slot. A *Task handed to an Entry is the body's only way
// to talk to the scheduler, and is valid until the body returns.
type Task struct {
	sched *Scheduler

	id       TaskID
	gen      uint64 // bumped on every allocation
	nextFree int    // intrusive free list link, -1 terminates
	state    State
	prio     float64
	flags    Flags
	parent   TaskID
	ctx      *fiber.Context
	stack    []byte
	future   *Future
	dtor     func(any)
	dtorArg  any
	resume   any // delivered by the next Switch

	// rendezvous
	mailbox  *linkedlistqueue.Queue // waiting sender ids
	sendMsg  []byte
	replyBuf []byte
	recvBuf  []byte
	peer     TaskID // receiver a reply-blocked sender is waiting on

	waitFor  TaskID // child a wait-blocked parent is waiting on
	eventArg Retainer

	children     int // slots whose parent is this task
	replyWaiters int // ReplyBlocked senders matched with this task

	// guarded by queueMu
	queued   bool
	deferred bool
	qkey     queueKey
}

// suspension is what a task hands to its runner when it switches out.
type suspension struct {
	id  TaskID
	gen uint64
	req request
}

func (t *Task) request(r request) any {
	if t.sched.cfg.DebugChecks && t.state != StateActive {
		panic(&ProtocolError{
			Op:     r.kind().String(),
			TaskID: t.id,
			Reason: fmt.Sprintf("task handle used while %v", t.state),
			Cause:  ErrContextCorrupt,
		})
	}
	return t.ctx.Suspend(suspension{id: t.id, gen: t.gen, req: r})
}

// Create spawns a child task and returns its id, or NullTID when the slab is
// exhausted. Callers typically fall back to running the work inline.
func (t *Task) Create(prio float64, entry Entry, arg any, fut *Future, flags Flags) TaskID {
	return t.request(createReq{prio: prio, entry: entry, arg: arg, future: fut, flags: flags}).(TaskID)
}

// ID returns the calling task's id.
func (t *Task) ID() TaskID {
	return t.request(myIDReq{}).(TaskID)
}

// ParentID returns the id of the task that created the caller, or NullTID
// for top-level and orphaned tasks.
func (t *Task) ParentID() TaskID {
	return t.request(myParentIDReq{}).(TaskID)
}

// Yield gives up the runner. The task becomes eligible again at the next
// frame.
func (t *Task) Yield() {
	t.request(yieldReq{})
}

// Send delivers msg to the task to and blocks until it replies. The reply is
// copied into reply, whose length must equal the replier's payload length.
func (t *Task) Send(to TaskID, msg, reply []byte) {
	t.request(sendReq{to: to, msg: msg, reply: reply})
}

// Receive blocks until a sender arrives, copies its message into msg and
// returns the sender's id. The message length must equal len(msg).
func (t *Task) Receive(msg []byte) TaskID {
	return t.request(receiveReq{buf: msg}).(TaskID)
}

// Reply completes the rendezvous with a sender previously returned by
// Receive, unblocking it.
func (t *Task) Reply(to TaskID, reply []byte) {
	t.request(replyReq{to: to, reply: reply})
}

// AwaitEvent blocks until HandleEvent is called for ev and returns the
// event argument.
func (t *Task) AwaitEvent(ev EventID) any {
	return t.request(awaitEventReq{event: ev})
}

// SetDestructor registers fn to be called with arg exactly once when the
// task exits or is torn down.
func (t *Task) SetDestructor(fn func(any), arg any) {
	t.request(setDestructorReq{fn: fn, arg: arg})
}

// Wait blocks until child has exited and frees it. It returns false if child
// names a free slot.
func (t *Task) Wait(child TaskID) bool {
	return t.request(waitReq{child: child}).(bool)
}

// Sleep blocks for at least d, measured on the scheduler clock, by awaiting
// EventTimerTick.
func (t *Task) Sleep(d time.Duration) {
	deadline := t.sched.now().Add(d)
	for t.sched.now().Before(deadline) {
		t.AwaitEvent(EventTimerTick)
	}
}

// Register binds name to the calling task, replacing any previous binding
// of either. Tasks blocked in WhoIs(name, true) are woken.
func (t *Task) Register(name string) {
	t.request(registerReq{name: name})
}

// WhoIs resolves a registered name. When blocking is set and nobody holds
// the name yet, the caller waits for a Register.
func (t *Task) WhoIs(name string, blocking bool) TaskID {
	return t.request(whoIsReq{name: name, blocking: blocking}).(TaskID)
}

// Stack returns scratch memory owned by the task for large temporaries.
// Bodies themselves run on goroutine stacks; this region is separate and is
// allocated on first use. Small-stack tasks get their slot's StackSize
// buffer, which is reused by later tasks in the same slot. FlagBigStack
// tasks get a private BigStackSize buffer dropped at exit.
func (t *Task) Stack() []byte {
	if t.stack == nil {
		if t.flags&FlagBigStack != 0 {
			t.stack = make([]byte, t.sched.cfg.BigStackSize)
		} else {
			t.stack = t.sched.slab.smallStack(t)
		}
	}
	return t.stack
}
