package sched

import (
	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// slab is a fixed pool of task records. The backing array is allocated once
// and never moved, so *Task pointers stay valid for the scheduler's lifetime.
type slab struct {
	tasks     []Task
	stacks    [][]byte // per-slot scratch, allocated on first Task.Stack
	stackSize int
	freeHead  int
	nfree     int
}

func newSlab(s *Scheduler, max, stackSize int) *slab {
	sl := &slab{
		tasks:     make([]Task, max),
		stacks:    make([][]byte, max),
		stackSize: stackSize,
	}
	for i := range sl.tasks {
		t := &sl.tasks[i]
		t.sched = s
		t.id = TaskID(i + 1)
		t.mailbox = linkedlistqueue.New()
	}
	sl.reset()
	return sl
}

// reset puts every slot back on the free list in index order.
func (sl *slab) reset() {
	for i := range sl.tasks {
		t := &sl.tasks[i]
		t.clear()
		t.nextFree = i + 1
	}
	sl.tasks[len(sl.tasks)-1].nextFree = -1
	sl.freeHead = 0
	sl.nfree = len(sl.tasks)
}

// alloc pops the free list head.
func (sl *slab) alloc() (*Task, bool) {
	if sl.freeHead < 0 {
		return nil, false
	}
	t := &sl.tasks[sl.freeHead]
	sl.freeHead = t.nextFree
	t.nextFree = -1
	t.gen++
	sl.nfree--
	return t, true
}

// free pushes t back on the free list, so its id is the next one handed out.
func (sl *slab) free(t *Task) {
	t.clear()
	i := int(t.id) - 1
	t.nextFree = sl.freeHead
	sl.freeHead = i
	sl.nfree++
}

// lookup returns the slot for id, which may be free. ok is false for ids
// that could never name a task.
func (sl *slab) lookup(id TaskID) (*Task, bool) {
	if id == NullTID || int(id) > len(sl.tasks) {
		return nil, false
	}
	return &sl.tasks[id-1], true
}

// live returns the task for id if the slot is in use.
func (sl *slab) live(id TaskID) *Task {
	t, ok := sl.lookup(id)
	if !ok || t.state == StateFree {
		return nil
	}
	return t
}

// smallStack returns the slot's scratch buffer. It survives the slot being
// freed and reused.
func (sl *slab) smallStack(t *Task) []byte {
	i := int(t.id) - 1
	if sl.stacks[i] == nil {
		sl.stacks[i] = make([]byte, sl.stackSize)
	}
	return sl.stacks[i]
}

func (sl *slab) inUse() int { return len(sl.tasks) - sl.nfree }

// clear drops everything a freed slot must not keep alive. id, gen and the
// mailbox queue survive.
func (t *Task) clear() {
	t.state = StateFree
	t.prio = 0
	t.flags = 0
	t.parent = NullTID
	t.children = 0
	t.replyWaiters = 0
	t.ctx = nil
	t.stack = nil
	t.future = nil
	t.dtor = nil
	t.dtorArg = nil
	t.resume = nil
	t.mailbox.Clear()
	t.sendMsg = nil
	t.replyBuf = nil
	t.recvBuf = nil
	t.peer = NullTID
	t.waitFor = NullTID
	t.eventArg = nil
}
