// internal/sched/queue.go

package sched

import (
	"github.com/emirpasic/gods/trees/redblacktree"
)

// queueKey orders ready tasks: higher priority first, then the order in
// which they became ready.
type queueKey struct {
	prio float64
	seq  uint64
}

// cmp implements the Comparator for queueKey.
func cmp(a, b any) int {
	ka, kb := a.(queueKey), b.(queueKey)
	switch {
	case ka.prio > kb.prio:
		return -1
	case ka.prio < kb.prio:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

// readyQueue is a priority queue of READY tasks. Unlike a heap it supports
// removing an arbitrary task, which RunSync needs.
type readyQueue struct {
	rbt *redblacktree.Tree
}

func newReadyQueue() *readyQueue {
	return &readyQueue{rbt: redblacktree.NewWith(cmp)}
}

func (q *readyQueue) push(t *Task, seq uint64) {
	t.qkey = queueKey{prio: t.prio, seq: seq}
	q.rbt.Put(t.qkey, t)
}

func (q *readyQueue) remove(t *Task) {
	q.rbt.Remove(t.qkey)
}

// peek returns the best eligible task without removing it. While paused only
// FlagRunDuringPause tasks are eligible.
func (q *readyQueue) peek(paused bool) *Task {
	if !paused {
		node := q.rbt.Left()
		if node == nil {
			return nil
		}
		return node.Value.(*Task)
	}
	it := q.rbt.Iterator()
	for it.Next() {
		t := it.Value().(*Task)
		if t.flags&FlagRunDuringPause != 0 {
			return t
		}
	}
	return nil
}

func (q *readyQueue) len() int { return q.rbt.Size() }

func (q *readyQueue) clear() { q.rbt.Clear() }
