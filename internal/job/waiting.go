package job

import (
	"time"

	"fibersched/internal/sched"
)

// SleepWork returns a task body that sleeps for the given duration on the
// scheduler clock and returns how long it actually slept.
func SleepWork(ms int64) sched.Entry {
	d := time.Duration(ms) * time.Millisecond
	return func(t *sched.Task, _ any) any {
		start := time.Now()
		t.Sleep(d)
		return time.Since(start)
	}
}

// SpinWork yields n times and returns n. It stands in for simulation work
// split across frames.
func SpinWork(n int) sched.Entry {
	return func(t *sched.Task, _ any) any {
		for i := 0; i < n; i++ {
			t.Yield()
		}
		return n
	}
}

// FanOut returns a body that creates n children running child and waits on
// each of them. When the slab is full the child body is run inline on the
// parent instead. It returns the number of children that ran either way.
func FanOut(n int, prio float64, child sched.Entry) sched.Entry {
	return func(t *sched.Task, arg any) any {
		ids := make([]sched.TaskID, 0, n)
		inline := 0
		for i := 0; i < n; i++ {
			id := t.Create(prio, child, i, nil, 0)
			if id == sched.NullTID {
				child(t, i)
				inline++
				continue
			}
			ids = append(ids, id)
		}
		collected := 0
		for _, id := range ids {
			if t.Wait(id) {
				collected++
			}
		}
		return collected + inline
	}
}
