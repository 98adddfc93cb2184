package fiber

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitchPassesValuesBothWays(t *testing.T) {
	c := New(func(c *Context, arg any) any {
		n := arg.(int)
		for {
			n += c.Suspend(n).(int)
		}
	}, 10, nil)

	out, alive := c.Switch(nil)
	require.True(t, alive)
	assert.Equal(t, 10, out)

	out, alive = c.Switch(5)
	require.True(t, alive)
	assert.Equal(t, 15, out)

	out, alive = c.Switch(-20)
	require.True(t, alive)
	assert.Equal(t, -5, out)

	c.Release()
	assert.True(t, c.Done())
}

func TestExitTrampolineRunsAfterEntryReturns(t *testing.T) {
	var got any
	c := New(func(c *Context, arg any) any {
		return arg.(string) + "!"
	}, "done", func(c *Context, ret any) {
		got = ret
		c.Suspend("exiting")
	})

	out, alive := c.Switch(nil)
	require.True(t, alive)
	assert.Equal(t, "exiting", out)
	assert.Equal(t, "done!", got)

	c.Release()
	out, alive = c.Switch(nil)
	assert.False(t, alive)
	assert.Nil(t, out)
}

func TestFallingOffTheEndWithoutExit(t *testing.T) {
	c := New(func(c *Context, arg any) any { return nil }, nil, nil)
	_, alive := c.Switch(nil)
	assert.False(t, alive)
	assert.True(t, c.Done())
	c.Release()
}

func TestReleaseUnwindsSuspendedBody(t *testing.T) {
	var deferred, resumed bool
	c := New(func(c *Context, arg any) any {
		defer func() { deferred = true }()
		c.Suspend(nil)
		resumed = true
		return nil
	}, nil, nil)

	_, alive := c.Switch(nil)
	require.True(t, alive)

	c.Release()
	assert.True(t, deferred)
	assert.False(t, resumed)

	// idempotent
	c.Release()
}

func TestReleaseBeforeFirstSwitch(t *testing.T) {
	ran := false
	c := New(func(c *Context, arg any) any {
		ran = true
		return nil
	}, nil, nil)
	c.Release()
	_, alive := c.Switch(nil)
	assert.False(t, alive)
	assert.False(t, ran)
}

func TestPanicPropagatesToSwitch(t *testing.T) {
	boom := errors.New("boom")
	c := New(func(c *Context, arg any) any {
		c.Suspend(nil)
		panic(boom)
	}, nil, nil)

	_, alive := c.Switch(nil)
	require.True(t, alive)
	assert.PanicsWithValue(t, boom, func() { c.Switch(nil) })
}

func TestSwitchFromDifferentGoroutines(t *testing.T) {
	c := New(func(c *Context, arg any) any {
		sum := 0
		for i := 0; i < 8; i++ {
			sum += c.Suspend(sum).(int)
		}
		return sum
	}, nil, func(c *Context, ret any) {
		c.Suspend(ret)
	})

	_, alive := c.Switch(nil)
	require.True(t, alive)

	// one switch at a time, each from a fresh goroutine
	var last any
	for i := 1; i <= 8; i++ {
		var wg sync.WaitGroup
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			last, _ = c.Switch(v)
		}(i)
		wg.Wait()
	}
	assert.Equal(t, 36, last)
	c.Release()
}
