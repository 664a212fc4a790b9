package display

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Timer is a single-shot deferred action. Stop is idempotent and safe to
// call after the timer fired.
type Timer interface {
	Stop() bool
	Active() bool
}

// Scheduler runs functions on the event loop.
type Scheduler interface {
	Post(fn func())
	AfterFunc(d time.Duration, fn func()) Timer
	// Now returns the monotonic time used for presentation timestamps.
	Now() time.Duration
}

// Loop serializes all pipeline and output mutation on one goroutine.
type Loop struct {
	queue chan func()

	mu      sync.Mutex
	running bool
}

func NewLoop() *Loop {
	return &Loop{
		queue: make(chan func(), 64),
	}
}

// Run processes posted functions until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.queue:
			fn()
		}
	}
}

func (l *Loop) Post(fn func()) {
	l.queue <- fn
}

// Call runs fn on the loop and waits for it to return. It must not be
// called from the loop goroutine.
func (l *Loop) Call(fn func()) {
	l.mu.Lock()
	running := l.running
	l.mu.Unlock()
	if !running {
		fn()
		return
	}

	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	<-done
}

// Now reads CLOCK_MONOTONIC, the clock of page flip timestamps.
func (l *Loop) Now() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		logger.Warning(err)
	}
	return time.Duration(ts.Nano())
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped || t.fired {
				return
			}
			t.fired = true
			fn()
		})
	})
	return t
}

// loopTimer state is only touched on the loop goroutine.
type loopTimer struct {
	timer   *time.Timer
	stopped bool
	fired   bool
}

func (t *loopTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}

func (t *loopTimer) Active() bool {
	return !t.stopped && !t.fired
}
