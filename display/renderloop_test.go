package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestRenderLoop() (*renderLoop, *manualScheduler, *int) {
	sched := &manualScheduler{}
	requests := new(int)
	l := newRenderLoop(sched, func() { *requests++ })
	return l, sched, requests
}

func Test_renderLoopSchedule(t *testing.T) {
	l, sched, requests := newTestRenderLoop()
	assert.Equal(t, uint32(defaultRefreshRate), l.RefreshRate())

	l.ScheduleRepaint()
	l.ScheduleRepaint()
	// one vblank minus the safety margin
	sched.advance(15 * time.Millisecond)
	assert.Equal(t, 0, *requests)
	sched.advance(time.Millisecond)
	assert.Equal(t, 1, *requests)

	// no new frame while one is pending
	l.ScheduleRepaint()
	sched.advance(time.Second)
	assert.Equal(t, 1, *requests)

	l.NotifyFrameCompleted(sched.now, 2*time.Millisecond)
	assert.Equal(t, sched.now, l.LastPresentationTimestamp())
	sched.advance(20 * time.Millisecond)
	assert.Equal(t, 2, *requests)
}

func Test_renderLoopInhibit(t *testing.T) {
	l, sched, requests := newTestRenderLoop()
	l.ScheduleRepaint()
	l.Inhibit()
	l.Inhibit()
	assert.True(t, l.IsInhibited())
	sched.advance(time.Second)
	assert.Equal(t, 0, *requests)

	l.Uninhibit()
	sched.advance(time.Second)
	assert.Equal(t, 0, *requests)

	l.Uninhibit()
	assert.False(t, l.IsInhibited())
	sched.advance(time.Second)
	assert.Equal(t, 1, *requests)

	// unbalanced calls are ignored
	l.Uninhibit()
	assert.False(t, l.IsInhibited())
}

func Test_renderLoopAdaptiveSync(t *testing.T) {
	l, sched, requests := newTestRenderLoop()
	l.SetPresentationMode(PresentationAdaptiveSync)
	assert.Equal(t, PresentationAdaptiveSync, l.PresentationMode())
	l.ScheduleRepaint()
	sched.advance(0)
	assert.Equal(t, 1, *requests)
}

func Test_renderLoopRefreshRate(t *testing.T) {
	l, sched, requests := newTestRenderLoop()
	l.ScheduleRepaint()
	l.SetRefreshRate(144000)
	assert.Equal(t, uint32(144000), l.RefreshRate())
	l.SetRefreshRate(0)
	assert.Equal(t, uint32(144000), l.RefreshRate())

	// 6.94ms vblank minus the safety margin
	sched.advance(5 * time.Millisecond)
	assert.Equal(t, 0, *requests)
	sched.advance(time.Millisecond)
	assert.Equal(t, 1, *requests)
}

func Test_outputFrame(t *testing.T) {
	l, sched, requests := newTestRenderLoop()
	l.ScheduleRepaint()
	sched.advance(time.Second)
	assert.Equal(t, 1, *requests)
	l.ScheduleRepaint()

	frame := NewOutputFrame(l, sched.now)
	frame.Failed()
	assert.True(t, frame.IsFailed())
	assert.False(t, frame.IsPresented())
	// the dropped frame frees the loop for the pending repaint
	sched.advance(time.Second)
	assert.Equal(t, 2, *requests)

	frame = NewOutputFrame(l, sched.now)
	frame.SetRenderDone(sched.now + 3*time.Millisecond)
	frame.Presented(sched.now+10*time.Millisecond, PresentationVSync)
	assert.True(t, frame.IsPresented())
	assert.Equal(t, PresentationVSync, frame.PresentationMode())
	assert.Equal(t, sched.now+10*time.Millisecond, l.LastPresentationTimestamp())
	assert.Equal(t, 3*time.Millisecond, l.journal.Result())
}

func Test_renderJournal(t *testing.T) {
	var j RenderJournal
	assert.Equal(t, time.Duration(0), j.Result())

	j.Add(4*time.Millisecond, 100*time.Millisecond)
	assert.Equal(t, 4*time.Millisecond, j.Result())

	// 5ms average with 9ms variance
	j.Add(14*time.Millisecond, 116*time.Millisecond)
	assert.InDelta(t, float64(23*time.Millisecond), float64(j.Result()), float64(time.Microsecond))

	// a long pause starts over
	j.Add(time.Millisecond, 2*time.Second)
	assert.Equal(t, time.Millisecond, j.Result())
}
