package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhoIsBlocksUntilRegister(t *testing.T) {
	s := newTestScheduler(t, nil)

	var found TaskID
	client := s.CreateDetached(2, func(t *Task, _ any) any {
		found = t.WhoIs("svc", true)
		return nil
	}, nil, nil, 0)
	server := s.CreateDetached(1, func(t *Task, _ any) any {
		t.Yield()
		t.Register("svc")
		t.AwaitEvent(1)
		return nil
	}, nil, nil, 0)

	s.Tick()
	assert.Equal(t, StateNameBlocked, s.StateOf(client))

	s.StartBackgroundTasks()
	s.Tick()
	assert.Equal(t, server, found)
	assert.Equal(t, StateFree, s.StateOf(client))
}

func TestWhoIsNonBlocking(t *testing.T) {
	s := newTestScheduler(t, nil)

	var before, during, after TaskID = 99, 99, 99
	server := s.CreateDetached(3, func(t *Task, _ any) any {
		t.Register("svc")
		t.Yield()
		return nil
	}, nil, nil, 0)
	s.CreateDetached(4, func(t *Task, _ any) any {
		before = t.WhoIs("svc", false)
		t.Yield()
		during = t.WhoIs("svc", false)
		t.Yield()
		after = t.WhoIs("svc", false)
		return nil
	}, nil, nil, 0)

	for i := 0; i < 3; i++ {
		s.StartBackgroundTasks()
		s.Tick()
	}
	assert.Equal(t, NullTID, before)
	assert.Equal(t, server, during)
	assert.Equal(t, NullTID, after, "name released when its holder exits")
}

func TestRegisterRebinds(t *testing.T) {
	s := newTestScheduler(t, nil)

	var first, second TaskID
	s.CreateDetached(1, func(t *Task, _ any) any {
		t.Register("a")
		t.Register("b")
		first = t.WhoIs("a", false)
		second = t.WhoIs("b", false)
		return nil
	}, nil, nil, 0)

	s.Tick()
	assert.Equal(t, NullTID, first)
	assert.Equal(t, TaskID(1), second)
}
