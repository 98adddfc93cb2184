package sched

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainStatus(ch <-chan StatusEvent) []StatusEvent {
	var evs []StatusEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return evs
			}
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestStatusStream(t *testing.T) {
	s := newTestScheduler(t, func(c *Config) { c.StatusBuffer = 64 })

	id := s.CreateDetached(3, func(t *Task, _ any) any {
		t.AwaitEvent(9)
		return nil
	}, nil, nil, 0)
	s.Tick()
	s.HandleEvent(9, nil, SourceEngine, true)

	kinds := make(map[StatusKind]int)
	for _, ev := range drainStatus(s.StatusChannel()) {
		assert.Equal(t, s.Session(), ev.Session)
		if ev.TaskID == id {
			kinds[ev.Kind]++
		}
		if ev.Kind == StatusTick {
			assert.Equal(t, runnerMain, ev.Runner)
		}
	}
	assert.Equal(t, 1, kinds[StatusCreate])
	assert.Equal(t, 2, kinds[StatusDispatch])
	assert.Equal(t, 1, kinds[StatusBlock])
	assert.Equal(t, 1, kinds[StatusExit])
	assert.Equal(t, 1, kinds[StatusFree])
	assert.Zero(t, s.Dropped())
}

func TestStatusStreamDropsWhenFull(t *testing.T) {
	s := newTestScheduler(t, func(c *Config) { c.StatusBuffer = 1 })

	s.CreateDetached(1, returns(nil), nil, nil, 0)
	s.Tick()
	assert.NotZero(t, s.Dropped())
}

func TestStatusStreamDisabled(t *testing.T) {
	s := newTestScheduler(t, nil)
	assert.Nil(t, s.StatusChannel())
}

func TestCSVTrace(t *testing.T) {
	s := newTestScheduler(t, func(c *Config) { c.StatusBuffer = 64 })
	s.CreateDetached(2, returns(nil), nil, nil, FlagMainThreadPinned)
	s.Tick()
	s.Shutdown()

	var buf bytes.Buffer
	tr, err := NewCSVTrace(&buf)
	require.NoError(t, err)
	require.NoError(t, tr.Consume(s.StatusChannel()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"timestamp", "session", "event", "task_id", "state", "priority", "runner"}, rows[0])

	var events []string
	for _, row := range rows[1:] {
		require.Len(t, row, 7)
		events = append(events, row[2])
	}
	assert.Contains(t, events, "Create")
	assert.Contains(t, events, "Dispatch")
	assert.Contains(t, events, "Exit")
	assert.Contains(t, events, "Tick")
	assert.Equal(t, "2.0000", rows[1][5])
}
