package display

import (
	"time"

	"github.com/linuxdeepin/dde-kms/display/kms"
)

const defaultWaitIdleTimeout = 50 * time.Millisecond

// Gpu owns the pipelines of one device and coordinates commits that span
// several of them.
type Gpu struct {
	device    kms.Device
	sched     Scheduler
	resources *kms.Resources
	pipelines []*Pipeline

	flips           chan kms.PageFlipEvent
	waitIdleTimeout time.Duration
}

func NewGpu(device kms.Device, sched Scheduler) *Gpu {
	return &Gpu{
		device:          device,
		sched:           sched,
		flips:           make(chan kms.PageFlipEvent, 16),
		waitIdleTimeout: defaultWaitIdleTimeout,
	}
}

func (g *Gpu) Device() kms.Device {
	return g.device
}

func (g *Gpu) Pipelines() []*Pipeline {
	return g.pipelines
}

func (g *Gpu) SetWaitIdleTimeout(d time.Duration) {
	g.waitIdleTimeout = d
}

func (g *Gpu) AsyncPageflipSupported() bool {
	return g.device.AsyncPageflipSupported()
}

// Start forwards page flip events of the device to the event loop.
func (g *Gpu) Start() {
	go func() {
		for ev := range g.device.Events() {
			g.flips <- ev
			g.sched.Post(g.dispatchEvents)
		}
	}()
}

func (g *Gpu) dispatchEvents() {
	for {
		select {
		case ev := <-g.flips:
			g.handlePageFlip(ev)
		default:
			return
		}
	}
}

func (g *Gpu) handlePageFlip(ev kms.PageFlipEvent) {
	for _, p := range g.pipelines {
		crtc := p.committed.crtc
		if crtc != nil && crtc.ID == ev.CrtcID && p.pageflipPending {
			p.PageFlipped(ev.Timestamp)
			return
		}
	}
	logger.Debugf("unexpected page flip on crtc %d", ev.CrtcID)
}

// UpdateResources rereads the device resources. Pipelines keep their crtcs
// by id.
func (g *Gpu) UpdateResources() (*kms.Resources, error) {
	res, err := g.device.Resources()
	if err != nil {
		return nil, err
	}
	res.AssignPlanes()
	g.resources = res
	for _, p := range g.pipelines {
		if conn := res.Connector(p.connector.ID); conn != nil {
			p.connector = conn
		}
		p.pending.crtc = g.sameCrtc(p.pending.crtc)
		p.active.crtc = g.sameCrtc(p.active.crtc)
		p.committed.crtc = g.sameCrtc(p.committed.crtc)
	}
	return res, nil
}

func (g *Gpu) sameCrtc(crtc *kms.Crtc) *kms.Crtc {
	if crtc == nil {
		return nil
	}
	return g.resources.Crtc(crtc.ID)
}

// AddPipeline creates a pipeline for conn, initialised from what the
// hardware currently shows.
func (g *Gpu) AddPipeline(conn *kms.Connector) *Pipeline {
	p := newPipeline(g, conn)
	var state PipelineState
	if g.resources != nil && conn.CrtcID != 0 {
		state.crtc = g.resources.Crtc(conn.CrtcID)
	}
	if state.crtc != nil {
		mode, err := g.device.CurrentMode(state.crtc.ID)
		if err != nil {
			logger.Warningf("failed to query mode of %v: %v", state.crtc, err)
		}
		state.mode = conn.FindSameTiming(mode)
	}
	if state.mode == nil {
		state.crtc = nil
		state.mode = conn.PreferredMode()
	} else {
		state.enabled = true
		state.active = true
	}
	state.sdrBrightness = defaultSdrBrightness
	p.pending = state
	p.active = state
	p.committed = state
	g.pipelines = append(g.pipelines, p)
	return p
}

func (g *Gpu) RemovePipeline(p *Pipeline) {
	for i, pipeline := range g.pipelines {
		if pipeline == p {
			g.pipelines = append(g.pipelines[:i], g.pipelines[i+1:]...)
			break
		}
	}
	p.primaryLayer.ReleaseBuffers()
	p.cursorLayer.ReleaseBuffers()
}

// commitPipelines returns the pipelines taking part in global commits.
// Leased outputs are driven by the lessee.
func (g *Gpu) commitPipelines() []*Pipeline {
	var result []*Pipeline
	for _, p := range g.pipelines {
		if !p.leased() {
			result = append(result, p)
		}
	}
	return result
}

// NeedsModeset reports whether any pipeline waits for a modeset.
func (g *Gpu) NeedsModeset() bool {
	for _, p := range g.commitPipelines() {
		if p.NeedsModeset() {
			return true
		}
	}
	return false
}

// WaitIdle blocks until no page flip is pending or the timeout expired.
func (g *Gpu) WaitIdle() {
	timer := time.NewTimer(g.waitIdleTimeout)
	defer timer.Stop()
	for g.flipPending() {
		select {
		case ev := <-g.flips:
			g.handlePageFlip(ev)
		case <-timer.C:
			logger.Warning("timed out waiting for pending page flips")
			for _, p := range g.pipelines {
				if p.pageflipPending {
					p.PageFlipped(g.sched.Now())
				}
			}
			return
		}
	}
}

func (g *Gpu) flipPending() bool {
	for _, p := range g.pipelines {
		if p.pageflipPending {
			return true
		}
	}
	return false
}

// TestPendingConfiguration assigns crtcs to the pending configuration and
// tests it. Disabled pipelines release their crtcs first.
func (g *Gpu) TestPendingConfiguration() Error {
	pipelines := g.commitPipelines()
	for _, p := range pipelines {
		if !p.pending.enabled {
			p.pending.crtc = nil
		}
	}
	return g.checkCrtcAssignment(pipelines, pipelines)
}

func (g *Gpu) freeCrtcs() []*kms.Crtc {
	if g.resources == nil {
		return nil
	}
	used := make(map[*kms.Crtc]bool)
	for _, p := range g.pipelines {
		if p.pending.crtc != nil {
			used[p.pending.crtc] = true
		}
	}
	var result []*kms.Crtc
	for _, crtc := range g.resources.Crtcs {
		if !used[crtc] {
			result = append(result, crtc)
		}
	}
	return result
}

func (g *Gpu) checkCrtcAssignment(all, unassigned []*Pipeline) Error {
	if len(unassigned) == 0 {
		return CommitPipelines(all, CommitModeTestAllowModeset)
	}
	p := unassigned[0]
	rest := unassigned[1:]
	if !p.pending.enabled {
		return g.checkCrtcAssignment(all, rest)
	}

	if p.pending.crtc != nil {
		if e := g.checkCrtcAssignment(all, rest); e == ErrorNone {
			return e
		}
	}
	// try the other crtcs, the current one may be what the rest needs
	current := p.pending.crtc
	for _, crtc := range g.freeCrtcs() {
		if !p.connector.CompatibleWith(crtc) || crtc.PrimaryPlane == nil {
			continue
		}
		p.pending.crtc = crtc
		if e := g.checkCrtcAssignment(all, rest); e == ErrorNone {
			return e
		}
	}
	p.pending.crtc = current
	if current == nil {
		logger.Debugf("%v: no crtc found", p)
	}
	return ErrorInvalidArguments
}

// MaybeModeset commits the pending state of all pipelines with a modeset
// and delivers frames waiting for it.
func (g *Gpu) MaybeModeset() bool {
	pipelines := g.commitPipelines()
	g.WaitIdle()
	e := CommitPipelines(pipelines, CommitModeTestAllowModeset)
	if e == ErrorNone {
		e = CommitPipelines(pipelines, CommitModeCommitModeset)
	}
	now := g.sched.Now()
	for _, p := range pipelines {
		if e == ErrorNone {
			p.ApplyPendingChanges()
		} else {
			p.RevertPendingChanges()
		}
		if !p.modesetPresentPending {
			continue
		}
		p.modesetPresentPending = false
		frame := p.frame
		p.frame = nil
		if frame == nil {
			continue
		}
		if e == ErrorNone {
			frame.Presented(now, p.active.presentationMode)
		} else {
			frame.discard()
		}
	}
	if e != ErrorNone {
		logger.Warningf("modeset failed: %v", e)
	}
	return e == ErrorNone
}

// reserveCrtc binds a free crtc to a disabled pipeline so it can be leased.
func (g *Gpu) reserveCrtc(p *Pipeline) bool {
	for _, crtc := range g.freeCrtcs() {
		if !p.connector.CompatibleWith(crtc) {
			continue
		}
		p.pending.crtc = crtc
		p.active.crtc = crtc
		return true
	}
	return false
}

func (g *Gpu) releaseCrtc(p *Pipeline) {
	if p.pending.enabled {
		return
	}
	p.pending.crtc = nil
	p.active.crtc = nil
}
