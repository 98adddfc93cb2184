package sched

import (
	"github.com/emirpasic/gods/maps/hashbidimap"
	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// registry maps names to tasks, one name per task and one task per name.
type registry struct {
	byName  *hashbidimap.Map                   // string <-> TaskID
	waiters map[string]*linkedlistqueue.Queue // tasks blocked in WhoIs
}

func newRegistry() *registry {
	return &registry{
		byName:  hashbidimap.New(),
		waiters: make(map[string]*linkedlistqueue.Queue),
	}
}

func (r *registry) unregisterLocked(id TaskID) {
	if name, ok := r.byName.GetKey(id); ok {
		r.byName.Remove(name)
	}
}

func (r *registry) reset() {
	r.byName.Clear()
	r.waiters = make(map[string]*linkedlistqueue.Queue)
}

func (s *Scheduler) registerLocked(t *Task, name string) {
	s.names.byName.Put(name, t.id)
	s.log.Debug().Uint32("tid", uint32(t.id)).Str("name", name).Msg("name registered")

	q, ok := s.names.waiters[name]
	if !ok {
		return
	}
	delete(s.names.waiters, name)
	for !q.Empty() {
		v, _ := q.Dequeue()
		w := s.slab.live(v.(TaskID))
		if w == nil || w.state != StateNameBlocked {
			continue
		}
		w.resume = t.id
		s.reactivateLocked(w)
	}
}

func (s *Scheduler) whoIsLocked(t *Task, r whoIsReq) bool {
	if v, ok := s.names.byName.Get(r.name); ok {
		t.resume = v.(TaskID)
		return true
	}
	if !r.blocking {
		t.resume = NullTID
		return true
	}

	t.state = StateNameBlocked
	q, ok := s.names.waiters[r.name]
	if !ok {
		q = linkedlistqueue.New()
		s.names.waiters[r.name] = q
	}
	q.Enqueue(t.id)
	s.emit(StatusBlock, t, "")
	return false
}
