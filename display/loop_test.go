package display

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestLoop(t *testing.T) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	l := NewLoop()
	started := make(chan struct{})
	go l.Run(ctx)
	l.Post(func() { close(started) })
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("loop didn't start")
	}
	return l
}

func Test_loopCall(t *testing.T) {
	l := startTestLoop(t)
	var order []int
	l.Post(func() { order = append(order, 1) })
	l.Call(func() { order = append(order, 2) })
	assert.Equal(t, []int{1, 2}, order)
}

func Test_loopCallWithoutRun(t *testing.T) {
	l := NewLoop()
	called := false
	l.Call(func() { called = true })
	assert.True(t, called)
}

func Test_loopAfterFunc(t *testing.T) {
	l := startTestLoop(t)
	fired := make(chan time.Duration, 1)
	var timer Timer
	l.Call(func() {
		timer = l.AfterFunc(10*time.Millisecond, func() { fired <- l.Now() })
		assert.True(t, timer.Active())
	})

	select {
	case now := <-fired:
		assert.True(t, now >= 10*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("timer didn't fire")
	}
	l.Call(func() {
		assert.False(t, timer.Active())
		assert.False(t, timer.Stop())
	})
}

func Test_loopTimerStop(t *testing.T) {
	l := startTestLoop(t)
	fired := make(chan struct{}, 1)
	l.Call(func() {
		timer := l.AfterFunc(5*time.Millisecond, func() { fired <- struct{}{} })
		require.True(t, timer.Stop())
		assert.False(t, timer.Stop())
		assert.False(t, timer.Active())
	})

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}
