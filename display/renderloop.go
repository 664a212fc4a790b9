package display

import (
	"time"
)

// RenderLoop paces frame production of one output.
type RenderLoop interface {
	SetRefreshRate(mHz uint32)
	RefreshRate() uint32
	ScheduleRepaint()
	Inhibit()
	Uninhibit()
	IsInhibited() bool
	LastPresentationTimestamp() time.Duration
	PresentationMode() PresentationMode
	SetPresentationMode(mode PresentationMode)
	NotifyFrameCompleted(timestamp, renderTime time.Duration)
	NotifyFrameDropped()
}

const (
	defaultRefreshRate = 60000
	// time reserved for the commit after rendering finished
	safetyMargin = 1500 * time.Microsecond
)

type renderLoop struct {
	sched            Scheduler
	refreshRate      uint32
	inhibitCount     int
	pendingFrames    int
	pendingRepaint   bool
	lastPresentation time.Duration
	presentationMode PresentationMode
	journal          RenderJournal
	timer            Timer

	// frameRequested asks the compositor to render and present a frame.
	frameRequested func()
}

func newRenderLoop(sched Scheduler, frameRequested func()) *renderLoop {
	return &renderLoop{
		sched:          sched,
		refreshRate:    defaultRefreshRate,
		frameRequested: frameRequested,
	}
}

func (l *renderLoop) SetRefreshRate(mHz uint32) {
	if mHz == 0 || mHz == l.refreshRate {
		return
	}
	l.refreshRate = mHz
	if l.timer != nil && l.timer.Active() {
		l.timer.Stop()
		l.timer = nil
		l.ScheduleRepaint()
	}
}

func (l *renderLoop) RefreshRate() uint32 {
	return l.refreshRate
}

func (l *renderLoop) vblankInterval() time.Duration {
	return time.Duration(int64(time.Second) * 1000 / int64(l.refreshRate))
}

func (l *renderLoop) ScheduleRepaint() {
	if l.inhibitCount > 0 || l.pendingFrames > 0 {
		l.pendingRepaint = true
		return
	}
	if l.timer != nil && l.timer.Active() {
		return
	}
	l.pendingRepaint = false

	now := l.sched.Now()
	interval := l.vblankInterval()
	next := l.lastPresentation + interval
	if next < now {
		skipped := (now - l.lastPresentation) / interval
		next = l.lastPresentation + (skipped+1)*interval
	}
	fire := next - l.journal.Result() - safetyMargin
	if l.presentationMode != PresentationVSync {
		fire = now
	}
	delay := fire - now
	if delay < 0 {
		delay = 0
	}
	l.timer = l.sched.AfterFunc(delay, l.dispatchFrame)
}

func (l *renderLoop) dispatchFrame() {
	l.timer = nil
	if l.inhibitCount > 0 {
		l.pendingRepaint = true
		return
	}
	l.pendingFrames++
	if l.frameRequested != nil {
		l.frameRequested()
	}
}

func (l *renderLoop) Inhibit() {
	l.inhibitCount++
	if l.inhibitCount == 1 && l.timer != nil {
		if l.timer.Stop() {
			l.pendingRepaint = true
		}
		l.timer = nil
	}
}

func (l *renderLoop) Uninhibit() {
	if l.inhibitCount == 0 {
		logger.Warning("unbalanced render loop uninhibit")
		return
	}
	l.inhibitCount--
	if l.inhibitCount == 0 && l.pendingRepaint {
		l.ScheduleRepaint()
	}
}

func (l *renderLoop) IsInhibited() bool {
	return l.inhibitCount > 0
}

func (l *renderLoop) LastPresentationTimestamp() time.Duration {
	return l.lastPresentation
}

func (l *renderLoop) PresentationMode() PresentationMode {
	return l.presentationMode
}

func (l *renderLoop) SetPresentationMode(mode PresentationMode) {
	l.presentationMode = mode
}

func (l *renderLoop) NotifyFrameCompleted(timestamp, renderTime time.Duration) {
	if l.pendingFrames > 0 {
		l.pendingFrames--
	}
	if timestamp > l.lastPresentation {
		l.lastPresentation = timestamp
	}
	l.journal.Add(renderTime, timestamp)
	if l.pendingRepaint {
		l.ScheduleRepaint()
	}
}

func (l *renderLoop) NotifyFrameDropped() {
	if l.pendingFrames > 0 {
		l.pendingFrames--
	}
	if l.pendingRepaint {
		l.ScheduleRepaint()
	}
}

// OutputFrame is one frame in flight on an output.
type OutputFrame struct {
	loop        RenderLoop
	renderStart time.Duration
	renderEnd   time.Duration
	damage      Region

	failed    bool
	presented bool
	mode      PresentationMode
	timestamp time.Duration
}

func NewOutputFrame(loop RenderLoop, renderStart time.Duration) *OutputFrame {
	return &OutputFrame{
		loop:        loop,
		renderStart: renderStart,
	}
}

// SetRenderDone records when rendering of the frame finished.
func (f *OutputFrame) SetRenderDone(t time.Duration) {
	f.renderEnd = t
}

func (f *OutputFrame) SetDamage(damage Region) {
	f.damage = damage
}

func (f *OutputFrame) Damage() Region {
	return f.damage
}

func (f *OutputFrame) Presented(timestamp time.Duration, mode PresentationMode) {
	f.presented = true
	f.timestamp = timestamp
	f.mode = mode
	var renderTime time.Duration
	if f.renderEnd > f.renderStart {
		renderTime = f.renderEnd - f.renderStart
	}
	if f.loop != nil {
		f.loop.NotifyFrameCompleted(timestamp, renderTime)
	}
}

// Failed reports the frame as not presented.
func (f *OutputFrame) Failed() {
	f.failed = true
	f.discard()
}

// discard releases the frame without reporting a failure.
func (f *OutputFrame) discard() {
	if f.loop != nil {
		f.loop.NotifyFrameDropped()
	}
}

func (f *OutputFrame) IsFailed() bool {
	return f.failed
}

func (f *OutputFrame) IsPresented() bool {
	return f.presented
}

func (f *OutputFrame) PresentationMode() PresentationMode {
	return f.mode
}

func (f *OutputFrame) Timestamp() time.Duration {
	return f.timestamp
}
