package job

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibersched/internal/sched"
)

func newScheduler(t *testing.T, workers, maxTasks int, opts ...sched.Option) *sched.Scheduler {
	t.Helper()
	cfg := sched.DefaultConfig()
	cfg.Workers = workers
	cfg.MaxTasks = maxTasks
	cfg.StackSize = 1024
	cfg.BudgetMS = 5000
	s, err := sched.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func tickUntil(s *sched.Scheduler, max int, futures ...*sched.Future) {
	for i := 0; i < max; i++ {
		ready := true
		for _, f := range futures {
			ready = ready && f.IsReady()
		}
		if ready {
			return
		}
		s.StartBackgroundTasks()
		s.Tick()
	}
}

func TestPingPong(t *testing.T) {
	for _, workers := range []int{0, 2} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			s := newScheduler(t, workers, 16)

			const clients, pings = 3, 5
			server := new(sched.Future)
			s.CreateDetached(10, PingServer, clients*pings, server, sched.FlagMainThreadPinned)

			futures := []*sched.Future{server}
			for i := 0; i < clients; i++ {
				f := new(sched.Future)
				futures = append(futures, f)
				s.CreateDetached(5, PingClient(pings), nil, f, 0)
			}

			tickUntil(s, 100, futures...)
			for _, f := range futures[1:] {
				res, ok := f.Result()
				require.True(t, ok)
				assert.Equal(t, pings, res)
			}
			res, ok := server.Result()
			require.True(t, ok)
			assert.Equal(t, clients*pings, res)
			assert.Zero(t, s.Stats().Live)
		})
	}
}

func TestSpinWork(t *testing.T) {
	s := newScheduler(t, 0, 4)

	f := new(sched.Future)
	s.CreateDetached(1, SpinWork(3), nil, f, 0)

	for i := 0; i < 3; i++ {
		s.StartBackgroundTasks()
		s.Tick()
		assert.False(t, f.IsReady(), "frame %d", i)
	}
	s.StartBackgroundTasks()
	s.Tick()
	res, ok := f.Result()
	require.True(t, ok)
	assert.Equal(t, 3, res)
}

func TestFanOut(t *testing.T) {
	s := newScheduler(t, 2, 32)

	f := new(sched.Future)
	s.CreateDetached(1, FanOut(8, 2, SpinWork(2)), nil, f, sched.FlagBigStack)

	tickUntil(s, 50, f)
	res, ok := f.Result()
	require.True(t, ok)
	assert.Equal(t, 8, res)
	assert.Zero(t, s.Stats().Live)
}

func TestFanOutRunsInlineWhenSlabIsFull(t *testing.T) {
	s := newScheduler(t, 0, 4)

	f := new(sched.Future)
	s.CreateDetached(1, FanOut(6, 1, SpinWork(1)), nil, f, 0)

	tickUntil(s, 50, f)
	res, ok := f.Result()
	require.True(t, ok)
	assert.Equal(t, 6, res)
	assert.Equal(t, uint64(4), s.Stats().Created)
}

func TestSleepWork(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := newScheduler(t, 0, 4, sched.WithClock(clock))

	f := new(sched.Future)
	s.CreateDetached(1, SleepWork(50), nil, f, sched.FlagRunDuringPause)
	s.SetPaused(true)

	s.Tick()
	s.HandleEvent(sched.EventTimerTick, int64(1), sched.SourceEngine, false)
	s.Tick()
	assert.False(t, f.IsReady())

	mu.Lock()
	now = now.Add(50 * time.Millisecond)
	mu.Unlock()
	s.HandleEvent(sched.EventTimerTick, int64(2), sched.SourceEngine, false)
	s.Tick()
	assert.True(t, f.IsReady())
}
